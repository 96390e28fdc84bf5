package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/swaranjalilamkane/Scalable-Ride-Booking-System/internal/logging"
	"github.com/swaranjalilamkane/Scalable-Ride-Booking-System/internal/metrics"
	"github.com/swaranjalilamkane/Scalable-Ride-Booking-System/internal/rate"
)

// Target is the user count a shape asks for and the rate, in users per
// second, at which the scheduler should move towards it.
type Target struct {
	Users     int
	SpawnRate float64
}

// Shape tells the runner how many users it wants at a point in the run.
// Tick reports false once the shape is over, which ends the run.
type Shape interface {
	Tick(elapsed time.Duration) (Target, bool)
}

// SpawnShape ramps to Users at SpawnRate and holds there.
type SpawnShape struct {
	Users     int
	SpawnRate float64
}

// Tick implements Shape.
func (s SpawnShape) Tick(time.Duration) (Target, bool) {
	return Target{Users: s.Users, SpawnRate: s.SpawnRate}, true
}

// Stage is one step of a StagesShape.
type Stage struct {
	Duration  time.Duration
	Users     int
	SpawnRate float64
}

// StagesShape runs its stages in order. Each stage lasts Duration and
// moves the user count to Users at SpawnRate.
//
// Example:
//
//	stages:
//	  - duration: 1m
//	    users: 10
//	    spawnRate: 1
//	  - duration: 5m
//	    users: 50
//	    spawnRate: 5
//	  - duration: 30s
//	    users: 0
//	    spawnRate: 10
type StagesShape struct {
	Stages []Stage
}

// Tick implements Shape.
func (s StagesShape) Tick(elapsed time.Duration) (Target, bool) {
	var end time.Duration
	for _, stage := range s.Stages {
		end += stage.Duration
		if elapsed < end {
			return Target{Users: stage.Users, SpawnRate: stage.SpawnRate}, true
		}
	}
	return Target{}, false
}

// TotalDuration returns the sum of all stage durations.
func (s StagesShape) TotalDuration() time.Duration {
	var total time.Duration
	for _, stage := range s.Stages {
		total += stage.Duration
	}
	return total
}

// defaultTick is how often the controller re-reads the shape while the
// user count is on target.
const defaultTick = 100 * time.Millisecond

// controller moves the scheduler's user count towards the shape's target,
// one user per leaky bucket slot.
type controller struct {
	shape     Shape
	scheduler *Scheduler
	clock     Clock
	metrics   *metrics.Engine
	bucket    *rate.LeakyBucket
	tick      time.Duration
	logger    *slog.Logger
}

func newController(shape Shape, scheduler *Scheduler, clock Clock, m *metrics.Engine, logger *slog.Logger) *controller {
	if logger == nil {
		logger = logging.Discard()
	}
	initial, _ := shape.Tick(0)
	return &controller{
		shape:     shape,
		scheduler: scheduler,
		clock:     clock,
		metrics:   m,
		bucket:    rate.NewLeakyBucket(initial.SpawnRate, rate.WithClock(clock.Now)),
		tick:      defaultTick,
		logger:    logger,
	}
}

// run drives the scheduler until the shape ends (nil) or ctx is done
// (ctx.Err()).
func (c *controller) run(ctx context.Context) error {
	start := c.clock.Now()
	last := Target{Users: -1}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		target, ok := c.shape.Tick(c.clock.Now().Sub(start))
		if !ok {
			c.logger.Debug("load shape finished")
			return nil
		}
		if target != last {
			c.logger.Debug("new spawn target", "users", target.Users, "spawnRate", target.SpawnRate)
			c.bucket.SetRate(target.SpawnRate)
			last = target
		}

		current := c.scheduler.ActiveUsers()
		switch {
		case current == target.Users:
			c.setPhase(metrics.PhaseSteady)
			if err := c.clock.Sleep(ctx, c.tick); err != nil {
				return err
			}
			continue
		case current < target.Users:
			c.setPhase(metrics.PhaseRampUp)
		default:
			c.setPhase(metrics.PhaseRampDown)
		}

		if err := c.clock.Sleep(ctx, c.bucket.Next().Sub(c.clock.Now())); err != nil {
			return err
		}

		if current < target.Users {
			if _, err := c.scheduler.Spawn(); err != nil {
				return err
			}
		} else {
			c.scheduler.Stop()
		}
	}
}

// pacing reports how the spawn bucket has paced user starts and stops.
func (c *controller) pacing() rate.Stats {
	return c.bucket.Stats()
}

func (c *controller) setPhase(p metrics.Phase) {
	if c.metrics != nil {
		c.metrics.SetPhase(p)
	}
}
