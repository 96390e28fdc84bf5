// Package engine runs simulated users against an HTTP service.
package engine

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/swaranjalilamkane/Scalable-Ride-Booking-System/internal/logging"
)

// UserState represents the lifecycle state of a simulated user.
type UserState int32

const (
	// UserStateIdle indicates the user has been created but not started.
	UserStateIdle UserState = iota
	// UserStateRunning indicates the user is executing tasks.
	UserStateRunning
	// UserStateStopping indicates the user will stop after its current task.
	UserStateStopping
	// UserStateStopped indicates the user's goroutine has exited.
	UserStateStopped
)

func (s UserState) String() string {
	switch s {
	case UserStateIdle:
		return "idle"
	case UserStateRunning:
		return "running"
	case UserStateStopping:
		return "stopping"
	case UserStateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Behavior is what a user class does. One Behavior value is created per
// simulated user, so it may keep per-user state.
type Behavior interface {
	// OnStart runs once before the user's first task.
	OnStart(ctx context.Context, u *User) error

	// Tasks lists the tasks the user picks from.
	Tasks() []Task
}

// Task is one weighted unit of user behaviour.
type Task struct {
	Name   string
	Weight int
	Fn     func(ctx context.Context, u *User)
}

// UserClass describes a kind of simulated user.
type UserClass struct {
	Name   string
	Weight int
	New    func() Behavior
}

// UserConfig holds the collaborators of a User.
type UserConfig struct {
	Client *Client
	Clock  Clock
	Tasks  *TaskGroup
	Rand   *rand.Rand
	Logger *slog.Logger
}

// User is a single simulated user.
//
// Each user has its own:
//   - client (the shared connection pool, possibly with its own credentials)
//   - random source
//   - data scope
//   - lifecycle state
//
// Users are created by the Scheduler. A user's random source is meant for
// its own goroutine only; spawned tasks must not use it.
type User struct {
	ID    int
	Class string

	client *Client
	clock  Clock
	tasks  *TaskGroup
	rng    *rand.Rand
	logger *slog.Logger

	state      atomic.Int32
	iterations atomic.Int64
	stopCh     chan struct{}
	doneCh     chan struct{}
	stopOnce   sync.Once
	doneOnce   sync.Once

	data   map[string]any
	dataMu sync.RWMutex
}

// NewUser creates a user. Missing collaborators get defaults.
func NewUser(id int, class string, cfg UserConfig) *User {
	if cfg.Clock == nil {
		cfg.Clock = RealClock{}
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewSource(time.Now().UnixNano() + int64(id)))
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	if cfg.Tasks == nil {
		cfg.Tasks = NewTaskGroup(nil, cfg.Logger)
	}

	return &User{
		ID:     id,
		Class:  class,
		client: cfg.Client,
		clock:  cfg.Clock,
		tasks:  cfg.Tasks,
		rng:    cfg.Rand,
		logger: cfg.Logger.With("user", id, "class", class),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
		data:   make(map[string]any),
	}
}

// State returns the current lifecycle state.
func (u *User) State() UserState {
	return UserState(u.state.Load())
}

// Iterations returns the number of tasks the user has completed.
func (u *User) Iterations() int64 {
	return u.iterations.Load()
}

// Client returns the user's HTTP client.
func (u *User) Client() *Client {
	return u.client
}

// SetClient replaces the user's HTTP client, for example to attach
// credentials obtained in OnStart.
func (u *User) SetClient(c *Client) {
	u.client = c
}

// Clock returns the user's time source.
func (u *User) Clock() Clock {
	return u.clock
}

// Rand returns the user's random source.
func (u *User) Rand() *rand.Rand {
	return u.rng
}

// Logger returns a logger tagged with the user's id and class.
func (u *User) Logger() *slog.Logger {
	return u.logger
}

// Sleep waits for d on the user's clock.
func (u *User) Sleep(ctx context.Context, d time.Duration) error {
	return u.clock.Sleep(ctx, d)
}

// Spawn starts fn as a detached task. The user does not wait for it and
// stopping the user does not stop it.
func (u *User) Spawn(name string, fn func(ctx context.Context)) {
	u.tasks.Go(name, fn)
}

// SetData stores a value in the user's data scope.
func (u *User) SetData(key string, value any) {
	u.dataMu.Lock()
	defer u.dataMu.Unlock()
	u.data[key] = value
}

// GetData retrieves a value from the user's data scope.
func (u *User) GetData(key string) (any, bool) {
	u.dataMu.RLock()
	defer u.dataMu.RUnlock()
	val, ok := u.data[key]
	return val, ok
}

// RequestStop asks the user to stop after its current task.
func (u *User) RequestStop() {
	if u.State() == UserStateStopped {
		return
	}
	u.stopOnce.Do(func() {
		u.state.CompareAndSwap(int32(UserStateRunning), int32(UserStateStopping))
		u.state.CompareAndSwap(int32(UserStateIdle), int32(UserStateStopping))
		close(u.stopCh)
	})
}

// Stopping returns a channel closed once a stop has been requested.
func (u *User) Stopping() <-chan struct{} {
	return u.stopCh
}

// Done returns a channel closed once the user has stopped.
func (u *User) Done() <-chan struct{} {
	return u.doneCh
}

// WaitForStop waits for the user to stop with a timeout.
func (u *User) WaitForStop(timeout time.Duration) bool {
	return waitTimeout(u.doneCh, timeout)
}

func (u *User) stopRequested() bool {
	select {
	case <-u.stopCh:
		return true
	default:
		return false
	}
}

func (u *User) markStopped() {
	u.state.Store(int32(UserStateStopped))
	u.doneOnce.Do(func() { close(u.doneCh) })
}

// pause sleeps between tasks, waking early when a stop is requested.
func (u *User) pause(ctx context.Context, d time.Duration) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case <-u.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	return u.clock.Sleep(ctx, d)
}

// pickTask selects a task with probability proportional to its weight.
func pickTask(rng *rand.Rand, tasks []Task) (Task, bool) {
	total := 0
	for _, t := range tasks {
		if t.Weight > 0 {
			total += t.Weight
		}
	}
	if total == 0 {
		return Task{}, false
	}

	n := rng.Intn(total)
	for _, t := range tasks {
		if t.Weight <= 0 {
			continue
		}
		if n < t.Weight {
			return t, true
		}
		n -= t.Weight
	}
	return tasks[len(tasks)-1], true
}
