// Package uuid issues run IDs.
package uuid

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator returns UUIDv7 strings, so run IDs sort by start time.
type Generator struct{}

// New returns a Generator.
func New() Generator {
	return Generator{}
}

// NewID implements plates.IDGenerator.
func (Generator) NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("new run id: %w", err)
	}
	return id.String(), nil
}
