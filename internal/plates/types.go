// Package plates defines the core types shared across the plate checker subsystems.
package plates

import (
	"fmt"
	"time"
)

// Code is a two-letter probe key drawn from the enumeration space.
type Code string

// Status is the classified outcome of a single probe.
type Status string

// Status values persisted in the result store. The set is closed.
const (
	StatusIssued    Status = "issued"
	StatusAvailable Status = "available"
	StatusBlocked   Status = "blocked"
	StatusError     Status = "error"
	StatusUnknown   Status = "unknown"
)

// Statuses lists every valid Status in display order.
var Statuses = []Status{
	StatusIssued,
	StatusAvailable,
	StatusBlocked,
	StatusError,
	StatusUnknown,
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusIssued, StatusAvailable, StatusBlocked, StatusError, StatusUnknown:
		return true
	default:
		return false
	}
}

// Observation is the durable record of one probe.
type Observation struct {
	Code      Code      `json:"plate"`
	Status    Status    `json:"status"`
	Note      string    `json:"note"`
	CheckedAt time.Time `json:"checked_at"`
}

// Validate performs coarse validation before an observation is persisted.
func (o Observation) Validate() error {
	if o.Code == "" {
		return fmt.Errorf("observation code is required")
	}
	if !o.Status.Valid() {
		return fmt.Errorf("unknown status %q", o.Status)
	}
	if o.CheckedAt.IsZero() {
		return fmt.Errorf("observation timestamp is required")
	}
	return nil
}
