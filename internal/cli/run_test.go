package cli

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/swaranjalilamkane/Scalable-Ride-Booking-System/internal/config"
	"github.com/swaranjalilamkane/Scalable-Ride-Booking-System/internal/engine"
	"github.com/swaranjalilamkane/Scalable-Ride-Booking-System/internal/logging"
	"github.com/swaranjalilamkane/Scalable-Ride-Booking-System/internal/metrics"
	"github.com/swaranjalilamkane/Scalable-Ride-Booking-System/internal/mockserver"
)

func changedSet(names ...string) func(string) bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return func(name string) bool { return set[name] }
}

func envMap(vars map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestBuildConfig_Precedence(t *testing.T) {
	path := writeFile(t, "ride.yaml", `
name: from-file
host: http://file.example:8080
users: 5
spawnRate: 2
runTime: 1m
`)

	o := &runOptions{
		configPath: path,
		host:       "http://flag.example:9090",
		runTime:    "90s",
	}
	cfg, err := o.buildConfig(
		changedSet("host", "run-time"),
		envMap(map[string]string{
			"RIDESIM_HOST":  "http://env.example:7070",
			"RIDESIM_USERS": "7",
		}),
	)
	require.NoError(t, err)

	assert.Equal(t, "from-file", cfg.Name)
	assert.Equal(t, "http://flag.example:9090", cfg.Host, "flags win over env and file")
	assert.Equal(t, 7, cfg.Users, "env wins over file")
	assert.Equal(t, 2.0, cfg.SpawnRate)
	assert.Equal(t, 90*time.Second, cfg.RunTime.Std())
}

func TestBuildConfig_FlagsOnly(t *testing.T) {
	o := &runOptions{host: "http://localhost:8080", riderWeight: 3}
	cfg, err := o.buildConfig(changedSet("host", "rider-weight"), envMap(nil))
	require.NoError(t, err)

	assert.Equal(t, config.DefaultName, cfg.Name)
	assert.Equal(t, config.DefaultUsers, cfg.Users)
	assert.Equal(t, config.DefaultSpawnRate, cfg.SpawnRate)
	assert.Equal(t, 3, cfg.UserClasses["rider"].Weight)
	assert.Equal(t, 1, cfg.UserClasses["driver"].Weight)
}

func TestBuildConfig_Errors(t *testing.T) {
	tests := []struct {
		name    string
		opts    runOptions
		changed []string
		env     map[string]string
	}{
		{name: "no host", changed: nil},
		{name: "bad run time", opts: runOptions{host: "http://x", runTime: "soon"}, changed: []string{"host", "run-time"}},
		{name: "bad env", opts: runOptions{host: "http://x"}, changed: []string{"host"}, env: map[string]string{"RIDESIM_USERS": "many"}},
		{name: "negative users", opts: runOptions{host: "http://x", users: -1}, changed: []string{"host", "users"}},
		{name: "missing file", opts: runOptions{configPath: "does-not-exist.yaml"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := tt.opts
			_, err := o.buildConfig(changedSet(tt.changed...), envMap(tt.env))
			assert.Error(t, err)
		})
	}
}

func TestTargetUsers(t *testing.T) {
	assert.Equal(t, 4, targetUsers(&config.Config{Users: 4}))
	assert.Equal(t, 30, targetUsers(&config.Config{Stages: []config.StageConfig{{Users: 10}, {Users: 30}, {Users: 0}}}))
}

func sampleResult() *engine.TestResult {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return &engine.TestResult{
		Name:      "sample",
		Host:      "http://localhost:8080",
		StartTime: start,
		EndTime:   start.Add(time.Minute),
		Duration:  time.Minute,
		Metrics:   &metrics.Snapshot{TotalRequests: 10, SuccessRequests: 10},
		Requests: []metrics.RequestStats{
			{Name: "Rides Requested", Requests: 10},
		},
		Passed: true,
	}
}

func TestWriteReports(t *testing.T) {
	dir := t.TempDir()
	var stdout, info bytes.Buffer

	o := &runOptions{
		jsonOut:    true,
		outputPath: filepath.Join(dir, "reports", "run"),
		csvPrefix:  filepath.Join(dir, "csv", "ride"),
	}
	require.NoError(t, writeReports(&stdout, &info, sampleResult(), o))

	assert.Equal(t, "sample", gjson.Get(stdout.String(), "name").String())
	for _, f := range []string{"reports/run.html", "reports/run.json", "csv/ride_stats.csv", "csv/ride_stats_history.csv"} {
		assert.FileExists(t, filepath.Join(dir, f))
	}
	assert.Contains(t, info.String(), "Report: ")
	assert.Contains(t, info.String(), "ride_stats.csv")
}

func TestWriteReports_SingleFormat(t *testing.T) {
	dir := t.TempDir()
	var stdout, info bytes.Buffer

	o := &runOptions{outputPath: filepath.Join(dir, "result.json")}
	require.NoError(t, writeReports(&stdout, &info, sampleResult(), o))
	assert.FileExists(t, filepath.Join(dir, "result.json"))
	assert.NoFileExists(t, filepath.Join(dir, "result.json.html"))
	assert.Empty(t, stdout.String())

	o = &runOptions{outputPath: filepath.Join(dir, "result.txt")}
	assert.Error(t, writeReports(&stdout, &info, sampleResult(), o))
}

func TestServeMetrics(t *testing.T) {
	m := metrics.NewEngine()
	defer m.Stop()
	m.RecordRequest(15*time.Millisecond, "Rides Requested", true, 20)

	addr, stop, err := serveMetrics("127.0.0.1:0", m, logging.Discard())
	require.NoError(t, err)
	defer stop()

	resp, err := http.Get("http://" + addr + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `ridesim_requests_total{name="Rides Requested"} 1`)
	assert.Contains(t, string(body), "go_goroutines")

	_, _, err = serveMetrics(addr, m, logging.Discard())
	assert.Error(t, err, "address already in use")
}

func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func TestRunCommand_AgainstMockServer(t *testing.T) {
	if testing.Short() {
		t.Skip("runs a live load test")
	}
	srv, err := mockserver.New(mockserver.Config{Drivers: 3, Seed: 1})
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	stdout, stderr, err := runCLI(t, "run",
		"--host", ts.URL,
		"-u", "2", "-r", "100", "-t", "300ms",
		"--stop-timeout", "1s",
		"--seed", "3",
		"--quiet", "--no-color", "--json",
	)
	require.NoError(t, err, stderr)

	assert.Equal(t, config.DefaultName, gjson.Get(stdout, "name").String())
	assert.Equal(t, int64(1), gjson.Get(stdout, "usersByClass.rider").Int())
	assert.Equal(t, int64(1), gjson.Get(stdout, "usersByClass.driver").Int())
	assert.Positive(t, gjson.Get(stdout, "metrics.totalRequests").Int())
	assert.Contains(t, stderr, "PASSED")

	riders, _, _ := srv.Store().Counts()
	assert.Equal(t, 1, riders)
}

func TestRunCommand_FailedThreshold(t *testing.T) {
	if testing.Short() {
		t.Skip("runs a live load test")
	}
	srv, err := mockserver.New(mockserver.Config{Drivers: 1, Seed: 1})
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	path := writeFile(t, "ride.json", `{
  "host": "`+ts.URL+`",
  "users": 1,
  "spawnRate": 100,
  "runTime": "200ms",
  "stopTimeout": "1s",
  "thresholds": {"http_reqs": ["count > 1000000"]}
}`)

	_, _, err = runCLI(t, "run", "--config", path, "--quiet", "--no-color")
	assert.ErrorIs(t, err, ErrThresholdsFailed)
}

func TestRunCommand_InvalidConfig(t *testing.T) {
	_, _, err := runCLI(t, "run", "--users", "3")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "host")
}

func TestRunCommand_BadLogLevel(t *testing.T) {
	_, _, err := runCLI(t, "run", "--host", "http://localhost:1", "--log-level", "chatty")
	assert.Error(t, err)
}
