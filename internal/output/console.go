// Package output renders the live view and the end-of-run summary.
package output

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/swaranjalilamkane/Scalable-Ride-Booking-System/internal/engine"
	"github.com/swaranjalilamkane/Scalable-Ride-Booking-System/internal/metrics"
)

// Cursor control
const (
	cursorUp  = "\033[%dA"
	clearLine = "\033[2K"
)

const (
	boxHorizontal  = "━"
	boxVertical    = "│"
	boxTopLeft     = "┌"
	boxTopRight    = "┐"
	boxBottomLeft  = "└"
	boxBottomRight = "┘"
	progressFilled = "█"
	progressEmpty  = "░"

	ruleWidth = 72
)

// LiveStats contains real-time statistics for display.
type LiveStats struct {
	Progress  float64 // 0.0 to 1.0, 0 for open-ended runs
	Elapsed   time.Duration
	Remaining time.Duration

	ActiveUsers  int
	TargetUsers  int
	SpawnedTasks int // follow-ups (status pollers, delayed completions) in flight

	CurrentRPS    float64
	TotalRequests int64
	Failures      int64
	FailureRate   float64

	LatencyP95 time.Duration
	LatencyAvg time.Duration

	Phase string
}

// StatsFromSnapshot creates LiveStats from a metrics snapshot.
func StatsFromSnapshot(snap *metrics.Snapshot, progress float64, totalDuration time.Duration, targetUsers int) *LiveStats {
	if snap == nil {
		return &LiveStats{Progress: progress, TargetUsers: targetUsers, Phase: string(metrics.PhaseInit)}
	}

	remaining := time.Duration(0)
	if totalDuration > snap.Elapsed {
		remaining = totalDuration - snap.Elapsed
	}

	return &LiveStats{
		Progress:      progress,
		Elapsed:       snap.Elapsed,
		Remaining:     remaining,
		ActiveUsers:   snap.ActiveUsers,
		TargetUsers:   targetUsers,
		SpawnedTasks:  snap.SpawnedTasks,
		CurrentRPS:    snap.RPS,
		TotalRequests: snap.TotalRequests,
		Failures:      snap.FailedRequests,
		FailureRate:   snap.ErrorRate,
		LatencyP95:    snap.Latency.P95,
		LatencyAvg:    snap.Latency.Mean,
		Phase:         string(snap.CurrentPhase),
	}
}

// setElapsed replaces the elapsed time and recomputes what remains of a
// run planned to last total.
func (s *LiveStats) setElapsed(elapsed, total time.Duration) {
	s.Elapsed = elapsed
	s.Remaining = 0
	if total > elapsed {
		s.Remaining = total - elapsed
	}
}

// ConsoleConfig contains configuration for Console.
type ConsoleConfig struct {
	TestName      string
	Host          string
	TotalDuration time.Duration
	TargetUsers   int
	Writer        io.Writer
	Quiet         bool
	NoColor       bool
	ForceColors   bool
	ForceTTY      bool
}

// Console manages console output during and after a run.
//
// On a terminal the live view is redrawn in place; otherwise one status
// line is printed per update.
type Console struct {
	cfg    ConsoleConfig
	writer io.Writer
	isTTY  bool
	colors *ColorScheme

	mu          sync.Mutex
	linesOutput int
}

// NewConsole creates a new console.
func NewConsole(cfg ConsoleConfig) *Console {
	if cfg.Writer == nil {
		cfg.Writer = os.Stdout
	}

	isTTY := cfg.ForceTTY || isTerminal(cfg.Writer)

	colors := NoColorScheme()
	switch {
	case cfg.ForceColors:
		colors = DefaultColorScheme()
		colors.forceColors()
	case !cfg.NoColor && isTTY && supportsColors():
		colors = DefaultColorScheme()
	}

	return &Console{cfg: cfg, writer: cfg.Writer, isTTY: isTTY, colors: colors}
}

// IsTTY returns whether the output is a terminal.
func (c *Console) IsTTY() bool {
	return c.isTTY
}

// PrintHeader prints the run header.
func (c *Console) PrintHeader() {
	if c.cfg.Quiet {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	rule := c.colors.Title.Sprint(strings.Repeat(boxHorizontal, ruleWidth))
	c.writeln(rule)
	c.writeln(c.colors.Heading.Sprintf("%s - Running", c.cfg.TestName))
	if c.cfg.Host != "" {
		c.writeln("Target: " + c.colors.Value.Sprint(c.cfg.Host))
	}
	c.writeln(rule)
	c.writeln("")
}

// Update shows new live statistics.
func (c *Console) Update(stats *LiveStats) {
	if c.cfg.Quiet {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.isTTY {
		c.writeln(c.statusLine(stats))
		return
	}

	c.clearLive()
	lines := c.renderLiveStats(stats)
	c.linesOutput = len(lines)
	for _, line := range lines {
		c.writeln(line)
	}
}

// Watch updates the console every interval from the runner until ctx is
// done.
func (c *Console) Watch(ctx context.Context, runner *engine.Runner, interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := runner.Metrics().GetSnapshot()
			stats := StatsFromSnapshot(snap, runner.Progress(), runner.TotalDuration(), c.cfg.TargetUsers)
			stats.setElapsed(runner.Elapsed(), runner.TotalDuration())
			c.Update(stats)
		}
	}
}

func (c *Console) statusLine(stats *LiveStats) string {
	return fmt.Sprintf("[%s] %s | Users: %d | Reqs: %d | RPS: %.1f | Fails: %d (%.1f%%) | P95: %s | Follow-ups: %d",
		formatDuration(stats.Elapsed),
		stats.Phase,
		stats.ActiveUsers,
		stats.TotalRequests,
		stats.CurrentRPS,
		stats.Failures,
		stats.FailureRate*100,
		formatDurationShort(stats.LatencyP95),
		stats.SpawnedTasks)
}

func (c *Console) renderLiveStats(stats *LiveStats) []string {
	var lines []string

	if c.cfg.TotalDuration > 0 {
		lines = append(lines, fmt.Sprintf("Progress: %s %s | %s",
			c.colors.Progress.Sprint(renderProgressBar(stats.Progress, 40)),
			c.colors.Heading.Sprintf("%.0f%%", stats.Progress*100),
			c.colors.Dim.Sprintf("%s / %s", formatDuration(stats.Elapsed), formatDuration(stats.Elapsed+stats.Remaining))))
	} else {
		lines = append(lines, fmt.Sprintf("Elapsed:  %s", c.colors.Heading.Sprint(formatDuration(stats.Elapsed))))
	}
	lines = append(lines, fmt.Sprintf("Phase:    %s", c.colors.Phase.Sprint(stats.Phase)))
	lines = append(lines, "")

	const boxWidth = 57
	lines = append(lines, c.colors.Dim.Sprint(boxTopLeft+strings.Repeat(boxHorizontal, boxWidth-2)+boxTopRight))

	failColor := c.colors.rate(stats.FailureRate)
	rows := [][2]string{
		{
			fmt.Sprintf("Users:   %s / %d", c.colors.Value.Sprint(stats.ActiveUsers), stats.TargetUsers),
			fmt.Sprintf("Requests:   %s", c.colors.Value.Sprint(formatNumber(stats.TotalRequests))),
		},
		{
			fmt.Sprintf("RPS:     %s", c.colors.Success.Sprintf("%.1f", stats.CurrentRPS)),
			fmt.Sprintf("Failures:   %s (%s)", failColor.Sprint(stats.Failures), failColor.Sprintf("%.1f%%", stats.FailureRate*100)),
		},
		{
			fmt.Sprintf("P95:     %s", c.colors.Latency.Sprint(formatDurationShort(stats.LatencyP95))),
			fmt.Sprintf("Avg:        %s", c.colors.Latency.Sprint(formatDurationShort(stats.LatencyAvg))),
		},
		{
			fmt.Sprintf("Follow-ups in flight: %s", c.colors.Value.Sprint(stats.SpawnedTasks)),
			"",
		},
	}
	for _, row := range rows {
		lines = append(lines, c.formatBoxRow(row[0], row[1], boxWidth))
	}

	lines = append(lines, c.colors.Dim.Sprint(boxBottomLeft+strings.Repeat(boxHorizontal, boxWidth-2)+boxBottomRight))
	return lines
}

// formatBoxRow formats a row inside the stats box with two columns.
func (c *Console) formatBoxRow(left, right string, boxWidth int) string {
	colWidth := (boxWidth - 4) / 2
	bar := c.colors.Dim.Sprint(boxVertical)
	return fmt.Sprintf("%s %s%s %s%s",
		bar, padRight(left, colWidth),
		bar, padRight(right, colWidth),
		bar)
}

func renderProgressBar(progress float64, width int) string {
	if progress < 0 {
		progress = 0
	}
	if progress > 1 {
		progress = 1
	}

	filled := int(progress * float64(width))
	return "[" + strings.Repeat(progressFilled, filled) + strings.Repeat(progressEmpty, width-filled) + "]"
}

// clearLive erases the live view. The caller holds c.mu.
func (c *Console) clearLive() {
	if !c.isTTY || c.linesOutput == 0 {
		return
	}
	c.write(fmt.Sprintf(cursorUp, c.linesOutput))
	for i := 0; i < c.linesOutput; i++ {
		c.write(clearLine + "\n")
	}
	c.write(fmt.Sprintf(cursorUp, c.linesOutput))
	c.linesOutput = 0
}

// PrintSummary prints the final summary: totals, the latency
// distribution, the per-label table and threshold results.
func (c *Console) PrintSummary(result *engine.TestResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cfg.Quiet {
		if result.Passed {
			c.writeln(c.colors.Success.Sprint("PASSED"))
		} else {
			c.writeln(c.colors.Error.Sprint("FAILED"))
		}
		return
	}

	c.clearLive()

	status := c.colors.Success.Sprint("Completed ✓")
	switch {
	case !result.Passed:
		status = c.colors.Error.Sprint("Failed ✗")
	case result.Interrupted:
		status = c.colors.Warn.Sprint("Interrupted")
	}

	rule := c.colors.Title.Sprint(strings.Repeat(boxHorizontal, ruleWidth))
	c.writeln("")
	c.writeln(rule)
	c.writeln(fmt.Sprintf("%s - %s", c.colors.Heading.Sprint(result.Name), status))
	c.writeln(rule)
	c.writeln("")

	c.writeln(fmt.Sprintf("Duration:      %s", c.colors.Value.Sprint(formatDuration(result.Duration))))
	if m := result.Metrics; m != nil {
		c.writeln(fmt.Sprintf("Total Reqs:    %s", c.colors.Value.Sprint(formatNumber(m.TotalRequests))))
		c.writeln(fmt.Sprintf("Failures:      %s", c.colors.rate(m.ErrorRate).Sprintf("%s (%.1f%%)", formatNumber(m.FailedRequests), m.ErrorRate*100)))
		c.writeln(fmt.Sprintf("Average RPS:   %s", c.colors.Value.Sprintf("%.1f", m.RPS)))
	}
	if len(result.UsersByClass) > 0 {
		c.writeln(fmt.Sprintf("Users:         %s", formatClasses(result.UsersByClass)))
	}
	if len(result.TasksByClass) > 0 {
		c.writeln(fmt.Sprintf("Tasks:         %s", formatClasses(result.TasksByClass)))
	}
	if p := result.SpawnPacing; p.Slots > 0 {
		c.writeln(fmt.Sprintf("Spawn pacing:  %d slots at %.1f/s, %s waited",
			p.Slots, p.Rate, formatDurationShort(p.WaitTime)))
	}
	if result.Shutdown.CancelledTasks > 0 {
		c.writeln(fmt.Sprintf("Follow-ups cancelled at shutdown: %d", result.Shutdown.CancelledTasks))
	}
	c.writeln("")

	if m := result.Metrics; m != nil && m.Latency.Count > 0 {
		c.writeln(c.colors.Heading.Sprint("Latency Distribution:"))
		c.writeln(fmt.Sprintf("  Min:       %s", formatDurationShort(m.Latency.Min)))
		c.writeln(fmt.Sprintf("  P50:       %s", formatDurationShort(m.Latency.P50)))
		c.writeln(fmt.Sprintf("  P90:       %s", formatDurationShort(m.Latency.P90)))
		c.writeln(fmt.Sprintf("  P95:       %s", formatDurationShort(m.Latency.P95)))
		c.writeln(fmt.Sprintf("  P99:       %s", formatDurationShort(m.Latency.P99)))
		c.writeln(fmt.Sprintf("  Max:       %s", formatDurationShort(m.Latency.Max)))
		c.writeln("")
	}

	if len(result.Requests) > 0 {
		c.writeRequestTable(result.Requests)
		c.writeln("")
	}

	if len(result.Thresholds) > 0 {
		c.writeln(c.colors.Heading.Sprint("Thresholds:"))
		for _, t := range result.Thresholds {
			icon := c.colors.SuccessIcon()
			if !t.Passed {
				icon = c.colors.ErrorIcon()
			}
			c.writeln(fmt.Sprintf("  %s %s %s (actual: %s)", icon, t.Metric, t.Expression, t.Value))
		}
		c.writeln("")
	}
}

// writeRequestTable writes one row per report label.
func (c *Console) writeRequestTable(rows []metrics.RequestStats) {
	nameWidth := len("Name")
	for _, r := range rows {
		if len(r.Name) > nameWidth {
			nameWidth = len(r.Name)
		}
	}

	header := []string{"# reqs", "# fails", "Median", "P95", "Max", "req/s"}
	var sb strings.Builder
	sb.WriteString(padRight("Name", nameWidth))
	for _, h := range header {
		sb.WriteString(padLeft(h, 10))
	}
	c.writeln(c.colors.Heading.Sprint(sb.String()))
	c.writeln(c.colors.Dim.Sprint(strings.Repeat("-", nameWidth+10*len(header))))

	for _, r := range rows {
		sb.Reset()
		sb.WriteString(padRight(r.Name, nameWidth))
		sb.WriteString(padLeft(formatNumber(r.Requests), 10))
		sb.WriteString(padLeft(c.colors.rate(r.FailureRate()).Sprint(formatNumber(r.Failures)), 10))
		sb.WriteString(padLeft(formatDurationShort(r.Latency.P50), 10))
		sb.WriteString(padLeft(formatDurationShort(r.Latency.P95), 10))
		sb.WriteString(padLeft(formatDurationShort(r.Latency.Max), 10))
		sb.WriteString(padLeft(fmt.Sprintf("%.2f", r.RPS), 10))
		c.writeln(sb.String())
	}
}

func formatClasses[N int | int64](byClass map[string]N) string {
	names := make([]string, 0, len(byClass))
	for name := range byClass {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s=%d", name, byClass[name]))
	}
	return strings.Join(parts, " ")
}

func (c *Console) write(s string) {
	fmt.Fprint(c.writer, s)
}

func (c *Console) writeln(s string) {
	fmt.Fprintln(c.writer, s)
}
