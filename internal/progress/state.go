package progress

import (
	"sync"
	"time"

	"github.com/alymdu/shortest-plates/internal/plates"
)

// RunState is the lifecycle position of the enumeration worker.
type RunState string

// Worker lifecycle states.
const (
	RunStateIdle     RunState = "idle"
	RunStateRunning  RunState = "running"
	RunStateStopping RunState = "stopping"
)

// Snapshot is a consistent view of worker liveness and the last observation.
// Nullable fields are pointers so they serialize as null before the first probe.
type Snapshot struct {
	State          RunState       `json:"state"`
	Running        bool           `json:"running"`
	RunID          string         `json:"run_id,omitempty"`
	LastCode       *plates.Code   `json:"last_plate"`
	LastStatus     *plates.Status `json:"last_status"`
	LastCheckedAt  *time.Time     `json:"last_checked_at"`
	QueueRemaining *int           `json:"queue_remaining"`
	Total          int            `json:"total"`
	Processed      int            `json:"processed"`
	StartedAt      *time.Time     `json:"started_at,omitempty"`
	FinishedAt     *time.Time     `json:"finished_at,omitempty"`
	LastError      string         `json:"last_error,omitempty"`
}

// Clone returns a deep copy so callers never share pointer targets with the State.
func (s Snapshot) Clone() Snapshot {
	out := s
	out.LastCode = clonePtr(s.LastCode)
	out.LastStatus = clonePtr(s.LastStatus)
	out.LastCheckedAt = clonePtr(s.LastCheckedAt)
	out.QueueRemaining = clonePtr(s.QueueRemaining)
	out.StartedAt = clonePtr(s.StartedAt)
	out.FinishedAt = clonePtr(s.FinishedAt)
	return out
}

// State holds the latest Snapshot. Get and Update are safe for concurrent use;
// readers never observe a partially applied update.
type State struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewState returns an idle State.
func NewState() *State {
	return &State{snap: Snapshot{State: RunStateIdle}}
}

// Get returns a copy of the current snapshot.
func (s *State) Get() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.Clone()
}

// Update applies fn to a private copy and publishes the result atomically.
func (s *State) Update(fn func(*Snapshot)) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.snap.Clone()
	fn(&next)
	s.snap = next
	return next.Clone()
}

// Ptr returns a pointer to a copy of v.
func Ptr[T any](v T) *T {
	return &v
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
