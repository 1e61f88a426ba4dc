// Package clock provides an abstraction over time for testability.
// Production code uses RealClock; tests inject a fixed clock so that
// age computations are deterministic.
package clock

import "time"

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the standard time package.
type RealClock struct{}

// NewRealClock creates a new RealClock.
func NewRealClock() *RealClock {
	return &RealClock{}
}

// Now implements Clock.Now using time.Now.
func (c *RealClock) Now() time.Time {
	return time.Now()
}

// Fixed is a Clock frozen at a specific instant.
type Fixed struct {
	T time.Time
}

// NewFixed returns a Clock that always reports t.
func NewFixed(t time.Time) *Fixed {
	return &Fixed{T: t}
}

// Now returns the frozen instant.
func (f *Fixed) Now() time.Time {
	return f.T
}
