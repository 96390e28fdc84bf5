package engine

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/swaranjalilamkane/Scalable-Ride-Booking-System/internal/logging"
	"github.com/swaranjalilamkane/Scalable-Ride-Booking-System/internal/metrics"
)

// ErrSchedulerClosed is returned when spawning after Shutdown.
var ErrSchedulerClosed = errors.New("scheduler is shut down")

// WaitTime is the pause a user takes between two tasks, drawn uniformly
// from [Min, Max]. The zero value means no pause.
type WaitTime struct {
	Min time.Duration
	Max time.Duration
}

func (w WaitTime) pick(rng *rand.Rand) time.Duration {
	if w.Max <= w.Min {
		return w.Min
	}
	return w.Min + time.Duration(rng.Int63n(int64(w.Max-w.Min)+1))
}

// SchedulerConfig configures a Scheduler.
type SchedulerConfig struct {
	Classes []UserClass
	Client  *Client
	Metrics *metrics.Engine
	Clock   Clock
	Wait    WaitTime

	// Seed makes task selection and user randomness reproducible.
	// Zero seeds from the wall clock.
	Seed int64

	Logger *slog.Logger
}

// Scheduler manages the lifecycle of simulated users.
//
// It provides:
//   - class selection that keeps user counts proportional to class weights
//   - the per-user task loop
//   - stopping users without breaking the class distribution
//   - the group that detached follow-up tasks run in
type Scheduler struct {
	cfg SchedulerConfig

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	active []*User
	closed bool

	// finishedTasks holds the task counts of users that have exited.
	finishedTasks map[string]int64

	nextID  atomic.Int32
	seedMu  sync.Mutex
	seedRng *rand.Rand

	usersWg sync.WaitGroup
	tasks   *TaskGroup
	logger  *slog.Logger
}

// NewScheduler creates a scheduler. At least one class with a positive
// weight is required.
func NewScheduler(cfg SchedulerConfig) (*Scheduler, error) {
	total := 0
	for _, c := range cfg.Classes {
		if c.New == nil {
			return nil, errors.New("user class " + c.Name + " has no constructor")
		}
		if c.Weight > 0 {
			total += c.Weight
		}
	}
	if total == 0 {
		return nil, errors.New("no user class with a positive weight")
	}

	if cfg.Clock == nil {
		cfg.Clock = RealClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cfg:           cfg,
		ctx:           ctx,
		cancel:        cancel,
		finishedTasks: make(map[string]int64, len(cfg.Classes)),
		seedRng:       rand.New(rand.NewSource(seed)),
		tasks:         NewTaskGroup(cfg.Metrics, cfg.Logger),
		logger:        cfg.Logger,
	}, nil
}

// Spawn creates one user of the class furthest below its share and starts it.
func (s *Scheduler) Spawn() (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrSchedulerClosed
	}

	class := s.pickClassLocked()
	u := NewUser(int(s.nextID.Add(1)), class.Name, UserConfig{
		Client: s.cfg.Client,
		Clock:  s.cfg.Clock,
		Tasks:  s.tasks,
		Rand:   s.newRand(),
		Logger: s.logger,
	})
	s.active = append(s.active, u)
	s.publishLocked()

	s.usersWg.Add(1)
	go s.run(u, class.New())

	s.logger.Debug("spawned user", "user", u.ID, "class", u.Class, "active", len(s.active))
	return u, nil
}

// Stop asks one user to stop, taken from the class furthest above its
// share. It reports false if there was nobody to stop.
func (s *Scheduler) Stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.pickVictimLocked()
	if idx < 0 {
		return false
	}
	u := s.active[idx]
	s.active = append(s.active[:idx], s.active[idx+1:]...)
	s.publishLocked()

	u.RequestStop()
	s.logger.Debug("stopping user", "user", u.ID, "class", u.Class, "active", len(s.active))
	return true
}

// ActiveUsers returns the number of users that have not been asked to stop.
func (s *Scheduler) ActiveUsers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// UsersByClass returns the active user count per class.
func (s *Scheduler) UsersByClass() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.countsLocked()
}

// TasksByClass returns how many tasks the users of each class have
// completed, counting users that already exited.
func (s *Scheduler) TasksByClass() map[string]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[string]int64, len(s.cfg.Classes))
	for _, c := range s.cfg.Classes {
		counts[c.Name] = s.finishedTasks[c.Name]
	}
	for _, u := range s.active {
		counts[u.Class] += u.Iterations()
	}
	return counts
}

// ShutdownStats describes how a shutdown went.
type ShutdownStats struct {
	// Graceful is true when every user finished its task within the timeout.
	Graceful bool `json:"graceful"`

	// CancelledTasks is the number of detached tasks still running when
	// they were cancelled.
	CancelledTasks int `json:"cancelledTasks"`
}

// Shutdown stops every user, waiting up to timeout for in-flight tasks to
// finish, then cancels whatever is still running, detached tasks included.
func (s *Scheduler) Shutdown(timeout time.Duration) ShutdownStats {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ShutdownStats{Graceful: true}
	}
	s.closed = true
	users := s.active
	s.active = nil
	s.publishLocked()
	s.mu.Unlock()

	for _, u := range users {
		u.RequestStop()
	}

	usersDone := make(chan struct{})
	go func() {
		s.usersWg.Wait()
		close(usersDone)
	}()

	stats := ShutdownStats{Graceful: waitTimeout(usersDone, timeout)}
	if s.cfg.Metrics != nil {
		stats.CancelledTasks = s.cfg.Metrics.GetSpawnedTasks()
	}

	s.cancel()
	s.tasks.Cancel(timeout)
	waitTimeout(usersDone, timeout)

	if s.cfg.Client != nil {
		s.cfg.Client.CloseIdleConnections()
	}
	return stats
}

// run is the goroutine of one user.
func (s *Scheduler) run(u *User, b Behavior) {
	defer s.usersWg.Done()
	defer u.markStopped()
	defer s.forget(u)

	ctx := s.ctx
	u.state.CompareAndSwap(int32(UserStateIdle), int32(UserStateRunning))

	if err := b.OnStart(ctx, u); err != nil {
		u.Logger().Warn("on_start failed, user stops", "error", err)
		return
	}

	tasks := b.Tasks()
	for {
		if ctx.Err() != nil || u.stopRequested() {
			return
		}

		task, ok := pickTask(u.rng, tasks)
		if !ok {
			// Nothing to do; hold the slot until stopped.
			select {
			case <-ctx.Done():
			case <-u.stopCh:
			}
			return
		}

		task.Fn(ctx, u)
		u.iterations.Add(1)

		if wait := s.cfg.Wait.pick(u.rng); wait > 0 {
			if err := u.pause(ctx, wait); err != nil {
				return
			}
		}
	}
}

// forget records an exited user's task count and removes it from the
// active set. Users stopped by the scheduler are already gone; this catches
// the ones that ended on their own.
func (s *Scheduler) forget(u *User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finishedTasks[u.Class] += u.Iterations()
	for i, a := range s.active {
		if a == u {
			s.active = append(s.active[:i], s.active[i+1:]...)
			s.publishLocked()
			return
		}
	}
}

func (s *Scheduler) newRand() *rand.Rand {
	s.seedMu.Lock()
	defer s.seedMu.Unlock()
	return rand.New(rand.NewSource(s.seedRng.Int63()))
}

func (s *Scheduler) countsLocked() map[string]int {
	counts := make(map[string]int, len(s.cfg.Classes))
	for _, c := range s.cfg.Classes {
		counts[c.Name] = 0
	}
	for _, u := range s.active {
		counts[u.Class]++
	}
	return counts
}

// pickClassLocked returns the class with the lowest count/weight ratio.
// Ties go to the class listed first.
func (s *Scheduler) pickClassLocked() UserClass {
	counts := s.countsLocked()

	best := -1
	var bestRatio float64
	for i, c := range s.cfg.Classes {
		if c.Weight <= 0 {
			continue
		}
		ratio := float64(counts[c.Name]) / float64(c.Weight)
		if best < 0 || ratio < bestRatio {
			best, bestRatio = i, ratio
		}
	}
	return s.cfg.Classes[best]
}

// pickVictimLocked returns the index of the newest user of the class with
// the highest count/weight ratio, or -1.
func (s *Scheduler) pickVictimLocked() int {
	if len(s.active) == 0 {
		return -1
	}
	counts := s.countsLocked()

	victimClass := ""
	var worst float64
	for _, c := range s.cfg.Classes {
		if counts[c.Name] == 0 {
			continue
		}
		weight := c.Weight
		if weight <= 0 {
			weight = 1
		}
		ratio := float64(counts[c.Name]) / float64(weight)
		if victimClass == "" || ratio > worst {
			victimClass, worst = c.Name, ratio
		}
	}

	for i := len(s.active) - 1; i >= 0; i-- {
		if s.active[i].Class == victimClass {
			return i
		}
	}
	return len(s.active) - 1
}

func (s *Scheduler) publishLocked() {
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.SetActiveUsers(len(s.active))
	}
}
