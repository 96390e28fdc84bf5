package config

import (
	"log/slog"

	"github.com/swaranjalilamkane/Scalable-Ride-Booking-System/internal/engine"
	"github.com/swaranjalilamkane/Scalable-Ride-Booking-System/internal/ridehail"
)

// RunnerOptions turns a validated configuration into runner options with
// the rider and driver classes wired in.
func (c *Config) RunnerOptions(logger *slog.Logger) (engine.Options, error) {
	var signer *ridehail.TokenSigner
	if c.Auth.JWTSecret != "" {
		s, err := ridehail.NewTokenSigner(c.Auth.JWTSecret, c.Auth.Issuer, c.Auth.TTL.Std())
		if err != nil {
			return engine.Options{}, err
		}
		signer = s
	}

	classes := ridehail.UserClasses(ridehail.ClassOptions{
		RiderWeight:  c.UserClasses[ridehail.ClassRider].Weight,
		DriverWeight: c.UserClasses[ridehail.ClassDriver].Weight,
		Signer:       signer,
	})

	httpCfg := engine.DefaultHTTPConfig()
	if c.HTTP.Timeout > 0 {
		httpCfg.Timeout = c.HTTP.Timeout.Std()
	}
	if c.HTTP.MaxIdleConnsPerHost > 0 {
		httpCfg.MaxIdleConnsPerHost = c.HTTP.MaxIdleConnsPerHost
	}
	httpCfg.MaxConnsPerHost = c.HTTP.MaxConnsPerHost
	httpCfg.InsecureSkipVerify = c.HTTP.InsecureSkipVerify

	var thresholds *engine.Thresholds
	if c.Thresholds != nil {
		thresholds = &engine.Thresholds{
			HTTPReqDuration: c.Thresholds.HTTPReqDuration,
			HTTPReqFailed:   c.Thresholds.HTTPReqFailed,
			HTTPReqs:        c.Thresholds.HTTPReqs,
		}
	}

	return engine.Options{
		Name:        c.Name,
		Host:        c.Host,
		Classes:     classes,
		Shape:       c.Shape(),
		RunTime:     c.RunTime.Std(),
		StopTimeout: c.StopTimeout.Std(),
		Wait:        engine.WaitTime{Min: c.Wait.Min.Std(), Max: c.Wait.Max.Std()},
		HTTP:        httpCfg,
		Thresholds:  thresholds,
		Seed:        c.Seed,
		Logger:      logger,
	}, nil
}

// Shape returns the load shape: the stages if any are configured, else a
// ramp to Users at SpawnRate.
func (c *Config) Shape() engine.Shape {
	if len(c.Stages) == 0 {
		return engine.SpawnShape{Users: c.Users, SpawnRate: c.SpawnRate}
	}

	stages := make([]engine.Stage, len(c.Stages))
	for i, s := range c.Stages {
		stages[i] = engine.Stage{Duration: s.Duration.Std(), Users: s.Users, SpawnRate: s.SpawnRate}
	}
	return engine.StagesShape{Stages: stages}
}
