package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "ridesim"

// Collector exposes an Engine to Prometheus.
//
// Values are read from the engine at scrape time, so the collector holds
// no state of its own and can be registered once per run.
type Collector struct {
	engine *Engine

	requests     *prometheus.Desc
	outcomes     *prometheus.Desc
	failures     *prometheus.Desc
	latency      *prometheus.Desc
	activeUsers  *prometheus.Desc
	spawnedTasks *prometheus.Desc
}

// NewCollector creates a collector reading from engine.
func NewCollector(engine *Engine) *Collector {
	return &Collector{
		engine: engine,
		requests: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "requests_total"),
			"Requests issued per report label.",
			[]string{"name"}, nil,
		),
		outcomes: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "requests_all_total"),
			"All requests issued, including unlabelled ones, by outcome.",
			[]string{"outcome"}, nil,
		),
		failures: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "request_failures_total"),
			"Failed requests per report label.",
			[]string{"name"}, nil,
		),
		latency: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "request_duration_seconds"),
			"Request latency per report label.",
			[]string{"name"}, nil,
		),
		activeUsers: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "active_users"),
			"Simulated users currently running.",
			nil, nil,
		),
		spawnedTasks: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "spawned_tasks"),
			"Detached follow-up tasks in flight.",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.requests
	ch <- c.outcomes
	ch <- c.failures
	ch <- c.latency
	ch <- c.activeUsers
	ch <- c.spawnedTasks
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snap := c.engine.GetSnapshot()

	ch <- prometheus.MustNewConstMetric(c.outcomes, prometheus.CounterValue, float64(snap.SuccessRequests), "success")
	ch <- prometheus.MustNewConstMetric(c.outcomes, prometheus.CounterValue, float64(snap.FailedRequests), "failure")
	ch <- prometheus.MustNewConstMetric(c.activeUsers, prometheus.GaugeValue, float64(snap.ActiveUsers))
	ch <- prometheus.MustNewConstMetric(c.spawnedTasks, prometheus.GaugeValue, float64(snap.SpawnedTasks))

	for _, row := range c.engine.GetRequestStats() {
		ch <- prometheus.MustNewConstMetric(c.requests, prometheus.CounterValue, float64(row.Requests), row.Name)
		ch <- prometheus.MustNewConstMetric(c.failures, prometheus.CounterValue, float64(row.Failures), row.Name)

		count := uint64(row.Latency.Count)
		sum := row.Latency.Mean.Seconds() * float64(count)
		quantiles := map[float64]float64{
			0.5:  row.Latency.P50.Seconds(),
			0.9:  row.Latency.P90.Seconds(),
			0.95: row.Latency.P95.Seconds(),
			0.99: row.Latency.P99.Seconds(),
		}
		ch <- prometheus.MustNewConstSummary(c.latency, count, sum, quantiles, row.Name)
	}
}

var _ prometheus.Collector = (*Collector)(nil)
