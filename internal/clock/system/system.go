// Package system provides the wall clock used to stamp observations.
package system

import "time"

// Resolution is the precision of stored checked_at values.
const Resolution = time.Second

// Clock reads the host clock in UTC at Resolution.
type Clock struct {
	now func() time.Time
}

// New returns a Clock backed by time.Now.
func New() Clock {
	return Clock{now: time.Now}
}

// Now implements plates.Clock.
func (c Clock) Now() time.Time {
	read := c.now
	if read == nil {
		read = time.Now
	}
	return read().UTC().Truncate(Resolution)
}
