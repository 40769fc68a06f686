// Package memory provides in-memory store implementations for development/testing.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/alymdu/shortest-plates/internal/plates"
)

// ResultStore keeps observations in a slice guarded by a RWMutex.
type ResultStore struct {
	mu      sync.RWMutex
	records []plates.Observation
	err     error
}

// NewResultStore constructs an empty ResultStore.
func NewResultStore() *ResultStore {
	return &ResultStore{}
}

// Append validates and records the observation.
func (s *ResultStore) Append(_ context.Context, obs plates.Observation) error {
	if err := obs.Validate(); err != nil {
		return fmt.Errorf("invalid observation: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, obs)
	return nil
}

// Scan returns up to limit observations newest-first; limit <= 0 returns all.
func (s *ResultStore) Scan(_ context.Context, limit int) ([]plates.Observation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := len(s.records)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]plates.Observation, 0, n)
	for i := len(s.records) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, s.records[i])
	}
	return out, nil
}

// FailAppends makes every later Append return err; nil restores normal behavior.
func (s *ResultStore) FailAppends(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Len reports how many observations are stored.
func (s *ResultStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
