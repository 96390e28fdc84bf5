package engine

import (
	"context"
	"errors"
	"math/rand"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swaranjalilamkane/Scalable-Ride-Booking-System/internal/metrics"
)

// idleBehavior runs a task that blocks until the user is stopped.
type idleBehavior struct {
	started *atomic.Int32
}

func (b idleBehavior) OnStart(context.Context, *User) error {
	if b.started != nil {
		b.started.Add(1)
	}
	return nil
}

func (b idleBehavior) Tasks() []Task {
	return []Task{{Name: "idle", Weight: 1, Fn: func(ctx context.Context, u *User) {
		select {
		case <-ctx.Done():
		case <-u.Stopping():
		}
	}}}
}

func idleClass(name string, weight int) UserClass {
	return UserClass{Name: name, Weight: weight, New: func() Behavior { return idleBehavior{} }}
}

func newTestScheduler(t *testing.T, classes ...UserClass) (*Scheduler, *metrics.Engine) {
	t.Helper()
	m := metrics.NewEngine()
	t.Cleanup(m.Stop)

	s, err := NewScheduler(SchedulerConfig{Classes: classes, Metrics: m, Seed: 1})
	require.NoError(t, err)
	t.Cleanup(func() { s.Shutdown(time.Second) })
	return s, m
}

func TestNewScheduler_Validation(t *testing.T) {
	_, err := NewScheduler(SchedulerConfig{})
	assert.Error(t, err)

	_, err = NewScheduler(SchedulerConfig{Classes: []UserClass{{Name: "x", Weight: 0, New: func() Behavior { return idleBehavior{} }}}})
	assert.Error(t, err)

	_, err = NewScheduler(SchedulerConfig{Classes: []UserClass{{Name: "x", Weight: 1}}})
	assert.Error(t, err)
}

func TestScheduler_ClassDistribution(t *testing.T) {
	tests := []struct {
		name    string
		classes []UserClass
		spawn   int
		want    map[string]int
	}{
		{"equal weights", []UserClass{idleClass("rider", 1), idleClass("driver", 1)}, 4, map[string]int{"rider": 2, "driver": 2}},
		{"odd count goes to first class", []UserClass{idleClass("rider", 1), idleClass("driver", 1)}, 3, map[string]int{"rider": 2, "driver": 1}},
		{"three to one", []UserClass{idleClass("rider", 3), idleClass("driver", 1)}, 8, map[string]int{"rider": 6, "driver": 2}},
		{"zero weight never spawned", []UserClass{idleClass("rider", 1), idleClass("driver", 0)}, 3, map[string]int{"rider": 3, "driver": 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, m := newTestScheduler(t, tt.classes...)
			for i := 0; i < tt.spawn; i++ {
				_, err := s.Spawn()
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, s.UsersByClass())
			assert.Equal(t, tt.spawn, m.GetActiveUsers())
		})
	}
}

func TestScheduler_StopKeepsDistribution(t *testing.T) {
	s, _ := newTestScheduler(t, idleClass("rider", 1), idleClass("driver", 1))

	var users []*User
	for i := 0; i < 6; i++ {
		u, err := s.Spawn()
		require.NoError(t, err)
		users = append(users, u)
	}

	require.True(t, s.Stop())
	require.True(t, s.Stop())
	assert.Equal(t, map[string]int{"rider": 2, "driver": 2}, s.UsersByClass())

	// The newest users go first.
	for _, u := range users[4:] {
		assert.True(t, u.WaitForStop(time.Second), "user %d should have stopped", u.ID)
	}
	for _, u := range users[:4] {
		assert.NotEqual(t, UserStateStopped, u.State())
	}
}

func TestScheduler_StopEmpty(t *testing.T) {
	s, _ := newTestScheduler(t, idleClass("rider", 1))
	assert.False(t, s.Stop())
}

func TestScheduler_OnStartErrorStopsUser(t *testing.T) {
	class := UserClass{Name: "broken", Weight: 1, New: func() Behavior { return failingBehavior{} }}
	s, _ := newTestScheduler(t, class)

	u, err := s.Spawn()
	require.NoError(t, err)
	require.True(t, u.WaitForStop(time.Second))
	assert.Equal(t, 0, s.ActiveUsers())
}

type failingBehavior struct{}

func (failingBehavior) OnStart(context.Context, *User) error { return errors.New("signup refused") }
func (failingBehavior) Tasks() []Task                        { return nil }

func TestScheduler_SpawnedTasksOutliveUser(t *testing.T) {
	var finished, cancelled atomic.Int32
	release := make(chan struct{})

	behavior := funcBehavior(func(ctx context.Context, u *User) {
		u.Spawn("follow-up", func(ctx context.Context) {
			select {
			case <-release:
				finished.Add(1)
			case <-ctx.Done():
				cancelled.Add(1)
			}
		})
		u.RequestStop()
	})
	s, m := newTestScheduler(t, UserClass{Name: "x", Weight: 1, New: func() Behavior { return behavior }})

	u, err := s.Spawn()
	require.NoError(t, err)
	require.True(t, u.WaitForStop(time.Second))

	assert.Equal(t, 1, m.GetSpawnedTasks(), "follow-up must survive its user")

	stats := s.Shutdown(time.Second)
	assert.True(t, stats.Graceful)
	assert.Equal(t, 1, stats.CancelledTasks)
	assert.EqualValues(t, 1, cancelled.Load())
	assert.EqualValues(t, 0, finished.Load())
	assert.Equal(t, 0, m.GetSpawnedTasks())

	close(release)
	_, err = s.Spawn()
	assert.ErrorIs(t, err, ErrSchedulerClosed)
}

// funcBehavior is a single-task behavior.
type funcBehavior func(ctx context.Context, u *User)

func (f funcBehavior) OnStart(context.Context, *User) error { return nil }
func (f funcBehavior) Tasks() []Task {
	return []Task{{Name: "task", Weight: 1, Fn: f}}
}

func TestScheduler_TasksByClass(t *testing.T) {
	quitter := funcBehavior(func(ctx context.Context, u *User) {
		if u.Iterations() == 2 {
			u.RequestStop()
		}
	})
	s, _ := newTestScheduler(t,
		UserClass{Name: "quitter", Weight: 1, New: func() Behavior { return quitter }},
		idleClass("idle", 1),
	)

	q, err := s.Spawn()
	require.NoError(t, err)
	_, err = s.Spawn()
	require.NoError(t, err)

	require.True(t, q.WaitForStop(time.Second))
	assert.EqualValues(t, 3, q.Iterations())
	assert.Equal(t, map[string]int64{"quitter": 3, "idle": 0}, s.TasksByClass())

	// The idle task returns once its user is told to stop.
	s.Shutdown(time.Second)
	assert.Equal(t, map[string]int64{"quitter": 3, "idle": 1}, s.TasksByClass())
}

func TestScheduler_WaitTimeBetweenTasks(t *testing.T) {
	clock := NewVirtualClock(epoch)
	var runs atomic.Int32

	behavior := funcBehavior(func(context.Context, *User) { runs.Add(1) })
	s, err := NewScheduler(SchedulerConfig{
		Classes: []UserClass{{Name: "x", Weight: 1, New: func() Behavior { return behavior }}},
		Clock:   clock,
		Wait:    WaitTime{Min: time.Second, Max: time.Second},
	})
	require.NoError(t, err)

	_, err = s.Spawn()
	require.NoError(t, err)

	waitForSleepers(t, clock, 1)
	assert.EqualValues(t, 1, runs.Load())

	clock.Advance(time.Second)
	waitForSleepers(t, clock, 1)
	assert.EqualValues(t, 2, runs.Load())

	stats := s.Shutdown(time.Second)
	assert.True(t, stats.Graceful, "a stop request must interrupt the pause")
}

func TestPickTask_Weights(t *testing.T) {
	tasks := []Task{
		{Name: "request_ride", Weight: 3},
		{Name: "never", Weight: 0},
		{Name: "other", Weight: 1},
	}
	rng := rand.New(rand.NewSource(42))

	counts := map[string]int{}
	const draws = 20000
	for i := 0; i < draws; i++ {
		task, ok := pickTask(rng, tasks)
		require.True(t, ok)
		counts[task.Name]++
	}

	assert.Zero(t, counts["never"])
	share := float64(counts["request_ride"]) / draws
	assert.InDelta(t, 0.75, share, 0.02)

	_, ok := pickTask(rng, []Task{{Name: "none", Weight: 0}})
	assert.False(t, ok)
}

func TestWaitTime_Pick(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	assert.Equal(t, time.Duration(0), WaitTime{}.pick(rng))
	assert.Equal(t, time.Second, WaitTime{Min: time.Second}.pick(rng))

	w := WaitTime{Min: time.Second, Max: 2 * time.Second}
	for i := 0; i < 100; i++ {
		d := w.pick(rng)
		assert.GreaterOrEqual(t, d, time.Second)
		assert.LessOrEqual(t, d, 2*time.Second)
	}
}

func TestUser_Data(t *testing.T) {
	u := NewUser(1, "rider", UserConfig{})

	u.SetData("ride_id", "abc")
	v, ok := u.GetData("ride_id")
	assert.True(t, ok)
	assert.Equal(t, "abc", v)

	_, ok = u.GetData("missing")
	assert.False(t, ok)

	assert.Equal(t, UserStateIdle, u.State())
	u.RequestStop()
	u.RequestStop()
	assert.Equal(t, UserStateStopping, u.State())
	assert.Equal(t, "stopping", u.State().String())
}
