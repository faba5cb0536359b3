// Package system provides the wall clock behind music.Clock.
package system

import "time"

// Clock reads the wall clock in a fixed location.
type Clock struct {
	loc *time.Location
}

// New returns a clock reporting times in loc, or UTC when loc is nil.
func New(loc *time.Location) *Clock {
	if loc == nil {
		loc = time.UTC
	}
	return &Clock{loc: loc}
}

// Now returns the current time in the clock's location.
func (c *Clock) Now() time.Time {
	return time.Now().In(c.loc)
}
