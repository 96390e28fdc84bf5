package engine

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Clock is the time source used by users, spawned tasks and the spawn
// controller. Sleep returns ctx.Err() if ctx is done before d elapses.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// RealClock is the wall clock.
type RealClock struct{}

// Now returns time.Now().
func (RealClock) Now() time.Time {
	return time.Now()
}

// Sleep blocks for d or until ctx is done.
func (RealClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// VirtualClock is a Clock that only moves when told to.
//
// Sleepers block until Advance (or AdvanceToNext) moves the clock past
// their deadline, which makes multi-minute waits instant and exact.
type VirtualClock struct {
	mu      sync.Mutex
	now     time.Time
	waiters []*sleeper
}

type sleeper struct {
	until time.Time
	ch    chan struct{}
}

// NewVirtualClock creates a virtual clock reading start.
func NewVirtualClock(start time.Time) *VirtualClock {
	return &VirtualClock{now: start}
}

// Now returns the virtual time.
func (c *VirtualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Sleep blocks until the clock has been advanced by d or ctx is done.
func (c *VirtualClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	c.mu.Lock()
	s := &sleeper{until: c.now.Add(d), ch: make(chan struct{})}
	c.waiters = append(c.waiters, s)
	c.mu.Unlock()

	select {
	case <-ctx.Done():
		c.remove(s)
		return ctx.Err()
	case <-s.ch:
		return nil
	}
}

func (c *VirtualClock) remove(s *sleeper) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, w := range c.waiters {
		if w == s {
			c.waiters = append(c.waiters[:i], c.waiters[i+1:]...)
			return
		}
	}
}

// Advance moves the clock forward by d and wakes every sleeper whose
// deadline has been reached.
func (c *VirtualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.advanceTo(c.now.Add(d))
}

// AdvanceToNext moves the clock to the earliest sleeper deadline.
// It reports false if nobody is sleeping.
func (c *VirtualClock) AdvanceToNext() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.waiters) == 0 {
		return false
	}
	next := c.waiters[0].until
	for _, w := range c.waiters[1:] {
		if w.until.Before(next) {
			next = w.until
		}
	}
	if next.After(c.now) {
		c.advanceTo(next)
	} else {
		c.advanceTo(c.now)
	}
	return true
}

func (c *VirtualClock) advanceTo(t time.Time) {
	c.now = t

	sort.SliceStable(c.waiters, func(i, j int) bool {
		return c.waiters[i].until.Before(c.waiters[j].until)
	})

	n := 0
	for _, w := range c.waiters {
		if w.until.After(t) {
			break
		}
		close(w.ch)
		n++
	}
	c.waiters = c.waiters[n:]
}

// Sleepers returns the number of goroutines blocked in Sleep.
func (c *VirtualClock) Sleepers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}

// RunUntil keeps advancing the clock to the next sleeper deadline until
// done is closed. Goroutines that are busy (not sleeping) are given real
// time to make progress in between.
func (c *VirtualClock) RunUntil(done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		default:
		}
		if !c.AdvanceToNext() {
			time.Sleep(time.Millisecond)
		}
	}
}
