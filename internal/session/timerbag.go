package session

import (
	"sync"
	"time"
)

// Bag owns every timer created for one session. Stopping the session clears
// the bag, so no callback scheduled through it can fire after the session is
// gone. Cancellation actually cancels: a cleared handle is unreachable, not
// merely flagged.
type Bag struct {
	clock Clock

	mu      sync.Mutex
	timers  map[int]Timer
	nextID  int
	stopped bool
}

// NewBag builds an empty bag on the given clock.
func NewBag(clock Clock) *Bag {
	return &Bag{clock: clock, timers: make(map[int]Timer)}
}

// Handle identifies one scheduled callback and can cancel it early.
type Handle struct {
	bag *Bag
	id  int
}

// Stop cancels the pending callback. Safe to call more than once.
func (h Handle) Stop() {
	h.bag.mu.Lock()
	t, ok := h.bag.timers[h.id]
	delete(h.bag.timers, h.id)
	h.bag.mu.Unlock()
	if ok {
		t.Stop()
	}
}

// AfterFunc schedules f to run once after d. The callback unregisters itself
// before running, so a bag cleared mid-flight never re-sees it.
func (b *Bag) AfterFunc(d time.Duration, f func()) Handle {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	if b.stopped {
		return Handle{bag: b, id: id}
	}

	b.timers[id] = b.clock.AfterFunc(d, func() {
		b.mu.Lock()
		_, live := b.timers[id]
		delete(b.timers, id)
		b.mu.Unlock()
		if live {
			f()
		}
	})
	return Handle{bag: b, id: id}
}

// Every schedules f to run repeatedly with period d until the handle or the
// bag is cleared. Re-arming happens under the bag lock, so ClearAll cannot
// race a tick into a fresh timer.
func (b *Bag) Every(d time.Duration, f func()) Handle {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	if b.stopped {
		return Handle{bag: b, id: id}
	}

	var arm func()
	arm = func() {
		b.timers[id] = b.clock.AfterFunc(d, func() {
			b.mu.Lock()
			_, live := b.timers[id]
			b.mu.Unlock()
			if !live {
				return
			}
			f()
			b.mu.Lock()
			if _, still := b.timers[id]; still && !b.stopped {
				arm()
			}
			b.mu.Unlock()
		})
	}
	arm()
	return Handle{bag: b, id: id}
}

// ClearAll cancels every pending timer but leaves the bag usable. Games use
// this to kill round timers without ending the whole session.
func (b *Bag) ClearAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clearLocked()
}

// shutdown cancels everything and refuses future scheduling. Called by the
// manager when the session ends.
func (b *Bag) shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopped = true
	b.clearLocked()
}

func (b *Bag) clearLocked() {
	for id, t := range b.timers {
		t.Stop()
		delete(b.timers, id)
	}
}

// Len reports how many timers are pending.
func (b *Bag) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.timers)
}
