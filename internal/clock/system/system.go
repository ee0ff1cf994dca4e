// Package system provides the wall clock used outside of tests.
package system

import "time"

// Clock implements transcript.Clock. All timestamps are UTC so event dates,
// sync windows, and archive paths compare without location juggling.
type Clock struct{}

// New returns the system clock.
func New() Clock {
	return Clock{}
}

// Now returns the current UTC time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}
