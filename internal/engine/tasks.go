package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/swaranjalilamkane/Scalable-Ride-Booking-System/internal/logging"
	"github.com/swaranjalilamkane/Scalable-Ride-Booking-System/internal/metrics"
)

// TaskGroup runs detached follow-up tasks.
//
// A spawned task is never joined by the user that started it. Its context
// is cancelled only when the group is cancelled at the end of the run, and
// the number of live tasks is published to the metrics engine.
type TaskGroup struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup

	metrics *metrics.Engine
	logger  *slog.Logger
}

// NewTaskGroup creates an empty task group.
func NewTaskGroup(metricsEngine *metrics.Engine, logger *slog.Logger) *TaskGroup {
	if logger == nil {
		logger = logging.Discard()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &TaskGroup{
		ctx:     ctx,
		cancel:  cancel,
		metrics: metricsEngine,
		logger:  logger,
	}
}

// Go starts fn in its own goroutine. It reports false, without running fn,
// once the group has been cancelled.
func (g *TaskGroup) Go(name string, fn func(ctx context.Context)) bool {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		g.logger.Debug("dropping task spawned after shutdown", "task", name)
		return false
	}
	g.wg.Add(1)
	g.mu.Unlock()

	if g.metrics != nil {
		g.metrics.TaskSpawned()
	}

	go func() {
		defer g.wg.Done()
		if g.metrics != nil {
			defer g.metrics.TaskFinished()
		}
		fn(g.ctx)
	}()
	return true
}

// Done returns a channel closed once every task started so far has returned.
func (g *TaskGroup) Done() <-chan struct{} {
	ch := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(ch)
	}()
	return ch
}

// Cancel refuses new tasks and cancels the context of running ones.
// It then waits up to timeout for them to return and reports whether
// they all did.
func (g *TaskGroup) Cancel(timeout time.Duration) bool {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()

	g.cancel()
	return waitTimeout(g.Done(), timeout)
}

func waitTimeout(done <-chan struct{}, timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}
