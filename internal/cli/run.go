package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/swaranjalilamkane/Scalable-Ride-Booking-System/internal/config"
	"github.com/swaranjalilamkane/Scalable-Ride-Booking-System/internal/engine"
	"github.com/swaranjalilamkane/Scalable-Ride-Booking-System/internal/metrics"
	"github.com/swaranjalilamkane/Scalable-Ride-Booking-System/internal/output"
	"github.com/swaranjalilamkane/Scalable-Ride-Booking-System/internal/report"
)

// runOptions holds the run command's flags.
type runOptions struct {
	configPath   string
	envFiles     []string
	host         string
	name         string
	users        int
	spawnRate    float64
	runTime      string
	stopTimeout  string
	riderWeight  int
	driverWeight int
	jwtSecret    string
	seed         int64

	jsonOut     bool
	outputPath  string
	csvPrefix   string
	quiet       bool
	noColor     bool
	metricsAddr string
}

func newRunCmd() *cobra.Command {
	o := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a load test against a ride service",
		Long: `Run simulated riders and drivers against a ride service.

Settings come from a YAML or JSON file (--config), then RIDESIM_*
environment variables (also read from .env files), then flags.

Examples:
  ridesim run --host http://localhost:8080 -u 50 -r 5 -t 5m
  ridesim run --config ride-test.yaml --csv results/ride
  ridesim run --config ride-test.yaml --output report.html --quiet`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(cmd)
			if err != nil {
				return err
			}
			if err := config.LoadEnvFiles(o.envFiles...); err != nil {
				return err
			}

			cfg, err := o.buildConfig(cmd.Flags().Changed, os.LookupEnv)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runLoadTest(ctx, cmd, o, cfg, logger)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&o.configPath, "config", "c", "", "Configuration file (.yaml, .yml or .json)")
	f.StringSliceVar(&o.envFiles, "env-file", nil, "Env files to load (default: .env if present)")
	f.StringVarP(&o.host, "host", "H", "", "Base URL of the ride service")
	f.StringVar(&o.name, "name", "", "Test name used in reports")
	f.IntVarP(&o.users, "users", "u", 0, "Number of simulated users")
	f.Float64VarP(&o.spawnRate, "spawn-rate", "r", 0, "Users started per second")
	f.StringVarP(&o.runTime, "run-time", "t", "", "Stop after this long, e.g. 90s, 5m, 1h30m")
	f.StringVar(&o.stopTimeout, "stop-timeout", "", "Time users get to finish their task at shutdown")
	f.IntVar(&o.riderWeight, "rider-weight", 0, "Weight of the rider class")
	f.IntVar(&o.driverWeight, "driver-weight", 0, "Weight of the driver class")
	f.StringVar(&o.jwtSecret, "jwt-secret", "", "Sign a bearer token for every user with this HS256 secret")
	f.Int64Var(&o.seed, "seed", 0, "Random seed for reproducible runs")

	f.BoolVar(&o.jsonOut, "json", false, "Print the result as JSON on stdout")
	f.StringVarP(&o.outputPath, "output", "o", "", "Write a report file (.json, .html, or both without extension)")
	f.StringVar(&o.csvPrefix, "csv", "", "Write PREFIX_stats.csv and PREFIX_stats_history.csv")
	f.BoolVarP(&o.quiet, "quiet", "q", false, "Disable live progress, show only the final summary")
	f.BoolVar(&o.noColor, "no-color", false, "Disable colored output")
	f.StringVar(&o.metricsAddr, "metrics-addr", "", "Serve live Prometheus metrics on this address, e.g. :9646")

	return cmd
}

// buildConfig layers the configuration file, the environment and the
// flags that were set, then fills defaults and validates the result.
func (o *runOptions) buildConfig(changed func(string) bool, lookup func(string) (string, bool)) (*config.Config, error) {
	cfg := &config.Config{}
	if o.configPath != "" {
		loaded, err := config.LoadConfig(o.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if err := config.ApplyEnv(cfg, lookup); err != nil {
		return nil, err
	}
	if err := o.applyFlags(cfg, changed); err != nil {
		return nil, err
	}

	config.ApplyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (o *runOptions) applyFlags(cfg *config.Config, changed func(string) bool) error {
	if changed("host") {
		cfg.Host = o.host
	}
	if changed("name") {
		cfg.Name = o.name
	}
	if changed("users") {
		cfg.Users = o.users
	}
	if changed("spawn-rate") {
		cfg.SpawnRate = o.spawnRate
	}
	if changed("seed") {
		cfg.Seed = o.seed
	}
	if changed("jwt-secret") {
		cfg.Auth.JWTSecret = o.jwtSecret
	}
	if changed("rider-weight") {
		cfg.SetClassWeight("rider", o.riderWeight)
	}
	if changed("driver-weight") {
		cfg.SetClassWeight("driver", o.driverWeight)
	}

	for _, d := range []struct {
		flag string
		src  string
		dst  *config.Duration
	}{
		{"run-time", o.runTime, &cfg.RunTime},
		{"stop-timeout", o.stopTimeout, &cfg.StopTimeout},
	} {
		if !changed(d.flag) {
			continue
		}
		v, err := config.ParseDuration(d.src)
		if err != nil {
			return fmt.Errorf("invalid --%s: %w", d.flag, err)
		}
		*d.dst = config.Duration(v)
	}
	return nil
}

// runLoadTest runs the test described by cfg and writes its results.
func runLoadTest(ctx context.Context, cmd *cobra.Command, o *runOptions, cfg *config.Config, logger *slog.Logger) error {
	opts, err := cfg.RunnerOptions(logger)
	if err != nil {
		return err
	}
	runner, err := engine.NewRunner(opts)
	if err != nil {
		return fmt.Errorf("failed to create runner: %w", err)
	}

	if o.metricsAddr != "" {
		_, stopMetrics, err := serveMetrics(o.metricsAddr, runner.Metrics(), logger)
		if err != nil {
			return err
		}
		defer stopMetrics()
	}

	// With --json, stdout carries only the result.
	consoleOut := cmd.OutOrStdout()
	if o.jsonOut {
		consoleOut = cmd.ErrOrStderr()
	}
	console := output.NewConsole(output.ConsoleConfig{
		TestName:      cfg.Name,
		Host:          cfg.Host,
		TotalDuration: runner.TotalDuration(),
		TargetUsers:   targetUsers(cfg),
		Writer:        consoleOut,
		Quiet:         o.quiet,
		NoColor:       o.noColor,
	})
	console.PrintHeader()

	watchCtx, stopWatch := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		console.Watch(watchCtx, runner, time.Second)
	}()

	result, err := runner.Run(ctx)
	stopWatch()
	wg.Wait()
	if err != nil {
		return fmt.Errorf("failed to run test: %w", err)
	}

	console.PrintSummary(result)

	if err := writeReports(cmd.OutOrStdout(), cmd.ErrOrStderr(), result, o); err != nil {
		return err
	}
	if !result.Passed {
		return ErrThresholdsFailed
	}
	return nil
}

// targetUsers is the highest user count the shape asks for.
func targetUsers(cfg *config.Config) int {
	target := cfg.Users
	for _, s := range cfg.Stages {
		if s.Users > target {
			target = s.Users
		}
	}
	return target
}

// writeReports writes every report the flags ask for. JSON requested with
// --json goes to stdout; file locations are announced on info.
func writeReports(stdout, info io.Writer, result *engine.TestResult, o *runOptions) error {
	if o.jsonOut {
		if err := report.WriteJSON(stdout, result); err != nil {
			return err
		}
	}

	if o.outputPath != "" {
		var paths []string
		switch strings.ToLower(filepath.Ext(o.outputPath)) {
		case ".json", ".html":
			paths = []string{o.outputPath}
		case "":
			paths = []string{o.outputPath + ".html", o.outputPath + ".json"}
		default:
			return fmt.Errorf("unsupported report extension %q (want .json or .html)", filepath.Ext(o.outputPath))
		}

		for _, path := range paths {
			if err := ensureDir(path); err != nil {
				return err
			}
			var err error
			if strings.EqualFold(filepath.Ext(path), ".html") {
				err = report.GenerateHTML(result, path)
			} else {
				err = report.SaveJSON(result, path)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(info, "Report: %s\n", path)
		}
	}

	if o.csvPrefix != "" {
		if err := ensureDir(o.csvPrefix); err != nil {
			return err
		}
		if err := report.SaveCSV(result, o.csvPrefix); err != nil {
			return err
		}
		fmt.Fprintf(info, "CSV: %s_stats.csv, %s_stats_history.csv\n", o.csvPrefix, o.csvPrefix)
	}
	return nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	return nil
}

// serveMetrics exposes the run's statistics on addr until the returned
// function is called. It returns the address it listens on.
func serveMetrics(addr string, m *metrics.Engine, logger *slog.Logger) (string, func(), error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		metrics.NewCollector(m),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	bound := ln.Addr().String()
	logger.Info("serving metrics", "addr", bound)

	return bound, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
