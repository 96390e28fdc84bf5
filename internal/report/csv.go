package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/swaranjalilamkane/Scalable-Ride-Booking-System/internal/engine"
	"github.com/swaranjalilamkane/Scalable-Ride-Booking-System/internal/metrics"
)

// AggregatedName names the totals row of the stats CSV.
const AggregatedName = "Aggregated"

var statsHeader = []string{
	"Type", "Name", "Request Count", "Failure Count",
	"Median Response Time", "Average Response Time", "Min Response Time", "Max Response Time",
	"Average Content Size", "Requests/s", "Failures/s",
	"50%", "90%", "95%", "99%", "100%",
}

var historyHeader = []string{
	"Timestamp", "User Count", "Type", "Name", "Requests/s", "Failures/s",
	"50%", "95%", "99%", "Total Request Count", "Total Failure Count",
}

// WriteStatsCSV writes one row per report label followed by an
// Aggregated row covering every request, unlabelled ones included.
// Times are in milliseconds.
func WriteStatsCSV(w io.Writer, result *engine.TestResult) error {
	if result == nil {
		return fmt.Errorf("result cannot be nil")
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(statsHeader); err != nil {
		return err
	}

	seconds := result.Duration.Seconds()
	for _, r := range result.Requests {
		row := statsRow(r.Name, r.Requests, r.Failures, r.Bytes, r.Latency, seconds)
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	if m := result.Metrics; m != nil {
		row := statsRow(AggregatedName, m.TotalRequests, m.FailedRequests, m.TotalBytes, m.Latency, seconds)
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

func statsRow(name string, requests, failures, bytes int64, lat metrics.LatencyStats, seconds float64) []string {
	avgSize := 0.0
	if requests > 0 {
		avgSize = float64(bytes) / float64(requests)
	}

	return []string{
		"",
		name,
		strconv.FormatInt(requests, 10),
		strconv.FormatInt(failures, 10),
		millis(lat.P50),
		millisFloat(lat.Mean),
		millis(lat.Min),
		millis(lat.Max),
		strconv.FormatFloat(avgSize, 'f', 2, 64),
		perSecond(requests, seconds),
		perSecond(failures, seconds),
		millis(lat.P50),
		millis(lat.P90),
		millis(lat.P95),
		millis(lat.P99),
		millis(lat.Max),
	}
}

// WriteHistoryCSV writes the per-interval time series of the run.
func WriteHistoryCSV(w io.Writer, result *engine.TestResult) error {
	if result == nil {
		return fmt.Errorf("result cannot be nil")
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(historyHeader); err != nil {
		return err
	}

	for _, b := range result.TimeSeries {
		failuresPerSec := b.IntervalRPS * b.IntervalErrorRate
		row := []string{
			strconv.FormatInt(b.Timestamp.Unix(), 10),
			strconv.Itoa(b.ActiveUsers),
			"",
			AggregatedName,
			strconv.FormatFloat(b.IntervalRPS, 'f', 2, 64),
			strconv.FormatFloat(failuresPerSec, 'f', 2, 64),
			millis(b.LatencyP50),
			millis(b.LatencyP95),
			millis(b.LatencyP99),
			strconv.FormatInt(b.TotalRequests, 10),
			strconv.FormatInt(b.TotalFailures, 10),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// SaveCSV writes prefix_stats.csv and prefix_stats_history.csv.
func SaveCSV(result *engine.TestResult, prefix string) error {
	if err := writeFile(prefix+"_stats.csv", result, WriteStatsCSV); err != nil {
		return err
	}
	return writeFile(prefix+"_stats_history.csv", result, WriteHistoryCSV)
}

func writeFile(path string, result *engine.TestResult, write func(io.Writer, *engine.TestResult) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := write(f, result); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

func millis(d time.Duration) string {
	return strconv.FormatInt(d.Milliseconds(), 10)
}

func millisFloat(d time.Duration) string {
	return strconv.FormatFloat(float64(d)/float64(time.Millisecond), 'f', 2, 64)
}

func perSecond(n int64, seconds float64) string {
	if seconds <= 0 {
		return "0.00"
	}
	return strconv.FormatFloat(float64(n)/seconds, 'f', 2, 64)
}
