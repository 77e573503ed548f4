// ABOUTME: Clock abstraction over time.Now for stamping and retry backoff.
// ABOUTME: Mock lets tests pin and advance the current time.
package clock

import (
	"sync"
	"time"
)

// Clock reports the current time.
type Clock interface {
	Now() time.Time
}

type clock struct{}

func (c *clock) Now() time.Time {
	return time.Now()
}

// New returns the real clock.
func New() Clock {
	return &clock{}
}

// Mock is a settable clock for tests.
type Mock struct {
	mu          sync.RWMutex
	currentTime time.Time
}

// NewMock returns a Mock pinned to a fixed instant.
func NewMock() *Mock {
	return &Mock{
		currentTime: time.Date(2024, time.January, 5, 12, 0, 0, 0, time.UTC),
	}
}

// SetNow sets the current time.
func (c *Mock) SetNow(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.currentTime = t
}

// Advance moves the clock forward by d.
func (c *Mock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.currentTime = c.currentTime.Add(d)
}

// Now returns the current mock time.
func (c *Mock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.currentTime
}
