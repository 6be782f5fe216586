package calendar

import (
	"sync"
	"time"
)

// Clock is the source of "now" for everything time-driven.
type Clock interface {
	Now() time.Time
}

// SystemClock reads wall-clock time in a fixed location.
type SystemClock struct {
	Loc *time.Location
}

// NewSystemClock loads the named time zone. An empty name means UTC.
func NewSystemClock(tz string) (SystemClock, error) {
	if tz == "" {
		return SystemClock{Loc: time.UTC}, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return SystemClock{}, err
	}
	return SystemClock{Loc: loc}, nil
}

func (c SystemClock) Now() time.Time {
	if c.Loc == nil {
		return time.Now().UTC()
	}
	return time.Now().In(c.Loc)
}

// FixedClock returns a settable instant. Safe for concurrent use.
type FixedClock struct {
	mu sync.Mutex
	t  time.Time
}

func NewFixedClock(t time.Time) *FixedClock {
	return &FixedClock{t: t}
}

func (c *FixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *FixedClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

func (c *FixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}
