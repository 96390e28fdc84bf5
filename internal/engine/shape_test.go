package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swaranjalilamkane/Scalable-Ride-Booking-System/internal/metrics"
)

func TestStagesShape_Tick(t *testing.T) {
	shape := StagesShape{Stages: []Stage{
		{Duration: 10 * time.Second, Users: 4, SpawnRate: 2},
		{Duration: 5 * time.Second, Users: 1, SpawnRate: 10},
	}}

	tests := []struct {
		elapsed time.Duration
		want    Target
		ok      bool
	}{
		{0, Target{Users: 4, SpawnRate: 2}, true},
		{9 * time.Second, Target{Users: 4, SpawnRate: 2}, true},
		{10 * time.Second, Target{Users: 1, SpawnRate: 10}, true},
		{14 * time.Second, Target{Users: 1, SpawnRate: 10}, true},
		{15 * time.Second, Target{}, false},
	}

	for _, tt := range tests {
		got, ok := shape.Tick(tt.elapsed)
		if ok != tt.ok || got != tt.want {
			t.Errorf("Tick(%v) = %+v, %v; want %+v, %v", tt.elapsed, got, ok, tt.want, tt.ok)
		}
	}

	if got := shape.TotalDuration(); got != 15*time.Second {
		t.Errorf("TotalDuration() = %v, want 15s", got)
	}
}

func TestSpawnShape_Tick(t *testing.T) {
	shape := SpawnShape{Users: 10, SpawnRate: 2}
	got, ok := shape.Tick(time.Hour)
	if !ok || got.Users != 10 || got.SpawnRate != 2 {
		t.Errorf("Tick() = %+v, %v", got, ok)
	}
}

func TestController_FollowsStages(t *testing.T) {
	clock := NewVirtualClock(epoch)
	m := metrics.NewEngine()
	defer m.Stop()

	s, err := NewScheduler(SchedulerConfig{
		Classes: []UserClass{idleClass("rider", 1), idleClass("driver", 1)},
		Metrics: m,
		Clock:   clock,
	})
	require.NoError(t, err)
	defer s.Shutdown(time.Second)

	shape := StagesShape{Stages: []Stage{
		{Duration: 10 * time.Second, Users: 4, SpawnRate: 2},
		{Duration: 5 * time.Second, Users: 1, SpawnRate: 10},
	}}
	ctrl := newController(shape, s, clock, m, nil)

	done := make(chan struct{})
	var runErr error
	go func() {
		defer close(done)
		runErr = ctrl.run(context.Background())
	}()
	clock.RunUntil(done)

	require.NoError(t, runErr)
	assert.Equal(t, 1, s.ActiveUsers())

	elapsed := clock.Now().Sub(epoch)
	assert.GreaterOrEqual(t, elapsed, 15*time.Second)
	assert.Less(t, elapsed, 15*time.Second+2*defaultTick)

	var phases []metrics.Phase
	for _, pc := range m.GetPhaseHistory() {
		phases = append(phases, pc.Phase)
	}
	assert.Equal(t, []metrics.Phase{
		metrics.PhaseRampUp,
		metrics.PhaseSteady,
		metrics.PhaseRampDown,
		metrics.PhaseSteady,
	}, phases)
}

func TestController_SpawnPacing(t *testing.T) {
	clock := NewVirtualClock(epoch)

	s, err := NewScheduler(SchedulerConfig{
		Classes: []UserClass{idleClass("rider", 1)},
		Clock:   clock,
	})
	require.NoError(t, err)
	defer s.Shutdown(time.Second)

	ctrl := newController(SpawnShape{Users: 5, SpawnRate: 2}, s, clock, nil, s.logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = ctrl.run(ctx)
	}()

	// The first user is spawned immediately, then one every 500ms.
	waitForSleepers(t, clock, 1)
	assert.Equal(t, 1, s.ActiveUsers())

	clock.Advance(500 * time.Millisecond)
	waitForSleepers(t, clock, 1)
	assert.Equal(t, 2, s.ActiveUsers())

	clock.Advance(1500 * time.Millisecond)
	for s.ActiveUsers() < 5 {
		waitForSleepers(t, clock, 1)
		clock.AdvanceToNext()
	}
	assert.Equal(t, 5, s.ActiveUsers())
	assert.LessOrEqual(t, clock.Now().Sub(epoch), 2500*time.Millisecond+defaultTick)

	cancel()
	<-done
}
