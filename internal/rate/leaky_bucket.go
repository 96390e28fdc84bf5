// Package rate paces user spawning.
package rate

import (
	"sync"
	"sync/atomic"
	"time"
)

// LeakyBucket hands out evenly spaced slots at a fixed rate.
//
// The scheduler asks the bucket when the next user may be spawned rather
// than how many users it may spawn, so a change of spawn rate between
// stages never releases a burst of users.
//
// # Algorithm
//
// The bucket keeps a drip time that advances by 1/rate per slot. Next
// returns the drip time; if the caller is behind schedule the slot is due
// immediately. At most one slot is owed at once.
//
// # Thread Safety
//
// LeakyBucket is safe for concurrent use.
type LeakyBucket struct {
	rate        float64
	lastDrip    time.Time
	accumulated float64
	now         func() time.Time
	mu          sync.Mutex

	slots    atomic.Int64
	waitTime atomic.Int64
}

// Option configures a LeakyBucket.
type Option func(*LeakyBucket)

// WithClock replaces time.Now as the bucket's time source.
func WithClock(now func() time.Time) Option {
	return func(lb *LeakyBucket) {
		lb.now = now
	}
}

// NewLeakyBucket creates a bucket releasing rate slots per second.
// A non-positive rate is treated as 1. The first slot is due immediately.
func NewLeakyBucket(rate float64, opts ...Option) *LeakyBucket {
	if rate <= 0 {
		rate = 1.0
	}
	lb := &LeakyBucket{
		rate: rate,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(lb)
	}
	lb.lastDrip = lb.now()
	lb.accumulated = 1.0
	return lb
}

// Next reserves a slot and returns when it is due.
// The returned time may be in the past when the caller is behind schedule.
func (lb *LeakyBucket) Next() time.Time {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	now := lb.now()
	elapsed := now.Sub(lb.lastDrip).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}

	lb.accumulated += elapsed * lb.rate
	if lb.accumulated > 1.0 {
		lb.accumulated = 1.0
	}
	lb.slots.Add(1)

	if lb.accumulated >= 1.0 {
		lb.accumulated -= 1.0
		lb.lastDrip = now
		return now
	}

	wait := time.Duration((1.0 - lb.accumulated) / lb.rate * float64(time.Second))
	lb.accumulated = 0

	// Slots reserved ahead of time queue behind each other. The drip moves
	// to the slot time so that waking up at it does not also accumulate
	// the slept interval.
	base := now
	if lb.lastDrip.After(now) {
		base = lb.lastDrip
	}
	next := base.Add(wait)
	lb.lastDrip = next
	lb.waitTime.Add(int64(next.Sub(now)))
	return next
}

// SetRate changes the rate. Owed slots are dropped so that the new rate
// starts from a clean schedule; a non-positive rate is treated as 1.
func (lb *LeakyBucket) SetRate(rate float64) {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	if rate <= 0 {
		rate = 1.0
	}
	if rate == lb.rate {
		return
	}
	lb.rate = rate
	lb.accumulated = 0
	now := lb.now()
	if lb.lastDrip.Before(now) {
		lb.lastDrip = now
	}
}

// Stats returns how the bucket has paced its callers so far.
func (lb *LeakyBucket) Stats() Stats {
	lb.mu.Lock()
	rate := lb.rate
	lb.mu.Unlock()

	return Stats{
		Rate:     rate,
		Slots:    lb.slots.Load(),
		WaitTime: time.Duration(lb.waitTime.Load()),
	}
}

// Stats describes a LeakyBucket.
type Stats struct {
	// Rate is the rate in effect, in slots per second.
	Rate float64 `json:"rate"`

	// Slots is the number of slots handed out.
	Slots int64 `json:"slots"`

	// WaitTime is the total time callers were scheduled to wait for their
	// slots.
	WaitTime time.Duration `json:"waitTime"`
}
