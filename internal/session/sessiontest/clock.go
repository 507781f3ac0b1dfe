// Package sessiontest provides a virtual-time clock for tests of anything
// that schedules through session timers.
package sessiontest

import (
	"sort"
	"sync"
	"time"

	"spectreon/internal/session"
)

// Clock drives timers with virtual time. Advance fires due callbacks
// synchronously, outside the clock lock, so callbacks may schedule new
// timers.
type Clock struct {
	mu     sync.Mutex
	now    time.Time
	nextID int
	timers map[int]*timer
}

type timer struct {
	clock   *Clock
	id      int
	at      time.Time
	f       func()
	stopped bool
}

// NewClock starts virtual time at a fixed instant.
func NewClock() *Clock {
	return &Clock{
		now:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		timers: make(map[int]*timer),
	}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) AfterFunc(d time.Duration, f func()) session.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &timer{clock: c, id: c.nextID, at: c.now.Add(d), f: f}
	c.nextID++
	c.timers[t.id] = t
	return t
}

func (t *timer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped {
		return false
	}
	t.stopped = true
	_, pending := t.clock.timers[t.id]
	delete(t.clock.timers, t.id)
	return pending
}

// Advance moves virtual time forward, firing due timers in deadline order.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		var due []*timer
		for _, t := range c.timers {
			if !t.at.After(target) {
				due = append(due, t)
			}
		}
		if len(due) == 0 {
			c.now = target
			c.mu.Unlock()
			return
		}
		sort.Slice(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
		next := due[0]
		c.now = next.at
		delete(c.timers, next.id)
		next.stopped = true
		c.mu.Unlock()

		next.f()
	}
}
