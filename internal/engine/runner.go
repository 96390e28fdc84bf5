package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/swaranjalilamkane/Scalable-Ride-Booking-System/internal/logging"
	"github.com/swaranjalilamkane/Scalable-Ride-Booking-System/internal/metrics"
	"github.com/swaranjalilamkane/Scalable-Ride-Booking-System/internal/rate"
)

// Options configures a Runner.
type Options struct {
	Name string
	Host string

	Classes []UserClass
	Shape   Shape

	// RunTime stops the run after this long. Zero runs until the shape
	// ends or the context is cancelled.
	RunTime time.Duration

	// StopTimeout is how long users get to finish their current task
	// when the run stops.
	StopTimeout time.Duration

	Wait       WaitTime
	HTTP       HTTPConfig
	Thresholds *Thresholds

	Clock  Clock
	Seed   int64
	Logger *slog.Logger

	// Metrics, when set, is used instead of a fresh engine.
	Metrics *metrics.Engine
}

// Runner is the main orchestrator of a load test.
//
// It coordinates:
//   - the scheduler and the users it runs
//   - the spawn controller that follows the load shape
//   - metrics collection
//   - threshold evaluation
//
// Example usage:
//
//	runner, _ := NewRunner(opts)
//	result, _ := runner.Run(ctx)
//	fmt.Printf("Test passed: %v\n", result.Passed)
type Runner struct {
	opts    Options
	metrics *metrics.Engine

	mu        sync.RWMutex
	running   bool
	startTime time.Time
	scheduler *Scheduler
}

// TestResult contains the complete test results.
type TestResult struct {
	Name      string        `json:"name"`
	Host      string        `json:"host"`
	StartTime time.Time     `json:"startTime"`
	EndTime   time.Time     `json:"endTime"`
	Duration  time.Duration `json:"duration"`

	Metrics    *metrics.Snapshot      `json:"metrics"`
	Requests   []metrics.RequestStats `json:"requests"`
	TimeSeries []*metrics.TimeBucket  `json:"timeSeries,omitempty"`
	Phases     []metrics.PhaseChange  `json:"phases,omitempty"`

	// UsersByClass is the class distribution at the moment the run stopped.
	UsersByClass map[string]int `json:"usersByClass"`

	// TasksByClass is the number of tasks completed per class.
	TasksByClass map[string]int64 `json:"tasksByClass"`

	// SpawnPacing describes how user starts and stops were spread out.
	SpawnPacing rate.Stats `json:"spawnPacing"`

	Shutdown ShutdownStats `json:"shutdown"`

	// Interrupted is true when the run was cancelled from outside.
	Interrupted bool `json:"interrupted"`

	Passed     bool              `json:"passed"`
	Thresholds []ThresholdResult `json:"thresholds,omitempty"`
}

// NewRunner validates opts and creates a runner.
func NewRunner(opts Options) (*Runner, error) {
	if opts.Host == "" {
		return nil, errors.New("host is required")
	}
	if len(opts.Classes) == 0 {
		return nil, errors.New("at least one user class is required")
	}
	if opts.Shape == nil {
		return nil, errors.New("a load shape is required")
	}
	if opts.RunTime < 0 {
		return nil, fmt.Errorf("run time must not be negative, got %s", opts.RunTime)
	}
	if opts.Thresholds != nil {
		for _, exprs := range [][]string{opts.Thresholds.HTTPReqDuration, opts.Thresholds.HTTPReqFailed, opts.Thresholds.HTTPReqs} {
			for _, expr := range exprs {
				if err := ValidateThreshold(expr); err != nil {
					return nil, fmt.Errorf("invalid threshold: %w", err)
				}
			}
		}
	}

	if opts.Clock == nil {
		opts.Clock = RealClock{}
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = 30 * time.Second
	}
	if opts.HTTP == (HTTPConfig{}) {
		opts.HTTP = DefaultHTTPConfig()
	}

	m := opts.Metrics
	if m == nil {
		m = metrics.NewEngine()
	}

	return &Runner{opts: opts, metrics: m}, nil
}

// Metrics returns the metrics engine the run records into.
func (r *Runner) Metrics() *metrics.Engine {
	return r.metrics
}

// Run executes the load test and returns its results.
//
// Cancelling ctx stops the run early; the result is still returned, with
// Interrupted set.
func (r *Runner) Run(ctx context.Context) (*TestResult, error) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil, errors.New("runner is already running")
	}

	client := NewClient(r.opts.Host, NewHTTPClient(r.opts.HTTP), r.metrics)
	scheduler, err := NewScheduler(SchedulerConfig{
		Classes: r.opts.Classes,
		Client:  client,
		Metrics: r.metrics,
		Clock:   r.opts.Clock,
		Wait:    r.opts.Wait,
		Seed:    r.opts.Seed,
		Logger:  r.opts.Logger,
	})
	if err != nil {
		r.mu.Unlock()
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	r.running = true
	r.startTime = r.opts.Clock.Now()
	r.scheduler = scheduler
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
	}()

	log := r.opts.Logger.With("test", r.opts.Name)
	log.Info("starting load test", "host", r.opts.Host, "runTime", r.opts.RunTime)
	r.metrics.SetPhase(metrics.PhaseInit)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if r.opts.RunTime > 0 {
		go func() {
			if r.opts.Clock.Sleep(runCtx, r.opts.RunTime) == nil {
				log.Info("run time elapsed, stopping")
				cancel()
			}
		}()
	}

	ctrl := newController(r.opts.Shape, scheduler, r.opts.Clock, r.metrics, log)
	ctrlErr := ctrl.run(runCtx)
	cancel()

	interrupted := ctx.Err() != nil
	if ctrlErr != nil && !errors.Is(ctrlErr, context.Canceled) && !errors.Is(ctrlErr, context.DeadlineExceeded) {
		log.Error("spawn controller failed", "error", ctrlErr)
	}

	usersByClass := scheduler.UsersByClass()
	r.metrics.SetPhase(metrics.PhaseRampDown)
	shutdown := scheduler.Shutdown(r.opts.StopTimeout)
	if !shutdown.Graceful {
		log.Warn("users did not stop within the stop timeout", "stopTimeout", r.opts.StopTimeout)
	}
	tasksByClass := scheduler.TasksByClass()
	pacing := ctrl.pacing()
	r.metrics.SetPhase(metrics.PhaseDone)
	r.metrics.Stop()

	end := r.opts.Clock.Now()
	snapshot := r.metrics.GetSnapshot()
	thresholds := EvaluateThresholds(r.opts.Thresholds, snapshot)
	passed := true
	for _, tr := range thresholds {
		if !tr.Passed {
			passed = false
			break
		}
	}

	log.Info("load test finished",
		"requests", snapshot.TotalRequests,
		"failures", snapshot.FailedRequests,
		"cancelledTasks", shutdown.CancelledTasks,
		"spawnSlots", pacing.Slots,
		"passed", passed,
	)

	return &TestResult{
		Name:         r.opts.Name,
		Host:         r.opts.Host,
		StartTime:    r.startTime,
		EndTime:      end,
		Duration:     end.Sub(r.startTime),
		Metrics:      snapshot,
		Requests:     r.metrics.GetRequestStats(),
		TimeSeries:   r.metrics.GetTimeSeries(),
		Phases:       r.metrics.GetPhaseHistory(),
		UsersByClass: usersByClass,
		TasksByClass: tasksByClass,
		SpawnPacing:  pacing,
		Shutdown:     shutdown,
		Interrupted:  interrupted,
		Passed:       passed,
		Thresholds:   thresholds,
	}, nil
}

// IsRunning returns true if the runner is currently running.
func (r *Runner) IsRunning() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.running
}

// Progress returns the run's progress from 0 to 1, or 0 if the run has no
// known end.
func (r *Runner) Progress() float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.running {
		return 0
	}

	total := r.TotalDuration()
	if total <= 0 {
		return 0
	}

	p := float64(r.opts.Clock.Now().Sub(r.startTime)) / float64(total)
	if p > 1 {
		p = 1
	}
	return p
}

// TotalDuration returns how long the run is planned to last: the shorter
// of RunTime and the stages, or 0 when neither bounds it.
func (r *Runner) TotalDuration() time.Duration {
	total := r.opts.RunTime
	if stages, ok := r.opts.Shape.(StagesShape); ok {
		if d := stages.TotalDuration(); total == 0 || d < total {
			total = d
		}
	}
	return total
}

// Elapsed returns the time since the run started.
func (r *Runner) Elapsed() time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.startTime.IsZero() {
		return 0
	}
	return r.opts.Clock.Now().Sub(r.startTime)
}
