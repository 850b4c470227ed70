package testfixtures

import (
	"sync"
	"time"

	"github.com/example/agenda/internal/calendar"
)

var referenceTime = time.Date(2025, time.March, 10, 14, 30, 0, 0, time.UTC)

// ReferenceTime returns the baseline instant used by fixtures: a Monday
// afternoon, so that "today" still has bookable days ahead of it.
func ReferenceTime() time.Time {
	return referenceTime
}

// Clock provides a controllable time source for tests.
type Clock struct {
	mu      sync.Mutex
	current time.Time
}

// NewClock returns a clock initialised to start, or to ReferenceTime when
// start is the zero value.
func NewClock(start time.Time) *Clock {
	if start.IsZero() {
		start = ReferenceTime()
	}
	return &Clock{current: start}
}

// Now returns the current instant tracked by the clock.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// NowFunc exposes Now for dependency injection. A nil clock yields time.Now.
func (c *Clock) NowFunc() func() time.Time {
	if c == nil {
		return time.Now
	}
	return c.Now
}

// Set moves the clock to t.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	c.current = t
	c.mu.Unlock()
}

// AdvanceDays moves the clock forward by whole calendar days.
func (c *Clock) AdvanceDays(days int) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.AddDate(0, 0, days)
	return c.current
}

// DateKey returns the DateKey of the day offset days away from the clock's
// current day.
func (c *Clock) DateKey(offset int) string {
	return calendar.DateKey(c.Now().AddDate(0, 0, offset))
}
