// Package utils provides logging, timing and clock utilities shared across
// the exporter.
package utils

import "time"

// Clock abstracts the time source consumed by Timer so phase durations can
// be driven deterministically in tests.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// Since returns the duration elapsed since t.
	Since(t time.Time) time.Duration
}

// RealClock reads the system time.
type RealClock struct{}

// NewRealClock creates a system-time clock.
func NewRealClock() *RealClock {
	return &RealClock{}
}

func (c *RealClock) Now() time.Time {
	return time.Now()
}

func (c *RealClock) Since(t time.Time) time.Duration {
	return time.Since(t)
}

// MockClock is a manually advanced clock for tests. It never moves on its
// own; callers step it with Advance or Set.
type MockClock struct {
	current time.Time
}

// NewMockClock creates a mock clock frozen at startTime.
func NewMockClock(startTime time.Time) *MockClock {
	return &MockClock{current: startTime}
}

func (c *MockClock) Now() time.Time {
	return c.current
}

func (c *MockClock) Since(t time.Time) time.Duration {
	return c.current.Sub(t)
}

// Advance moves the clock forward by d.
func (c *MockClock) Advance(d time.Duration) {
	c.current = c.current.Add(d)
}

// Set jumps the clock to t.
func (c *MockClock) Set(t time.Time) {
	c.current = t
}
