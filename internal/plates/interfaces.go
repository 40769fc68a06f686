package plates

import (
	"context"
	"time"
)

// Fetcher retrieves the body served for a URL. Transport failures are returned
// as errors; HTTP status codes are not interpreted.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// ResultStore persists observations in append order and returns them newest-first.
type ResultStore interface {
	Append(ctx context.Context, obs Observation) error
	// Scan returns at most limit observations, newest first. A limit <= 0 means all.
	Scan(ctx context.Context, limit int) ([]Observation, error)
}

// Publisher pushes observation notifications to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
