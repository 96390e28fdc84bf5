// Package config loads and validates ridesim test configurations.
package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration of a load test.
//
// Example YAML:
//
//	name: "Ride service smoke"
//	host: "http://localhost:8080"
//	users: 50
//	spawnRate: 5
//	runTime: 5m
//	userClasses:
//	  rider: {weight: 3}
//	  driver: {weight: 1}
//	thresholds:
//	  http_req_duration: ["p95 < 500ms"]
type Config struct {
	// Name of the test (for reporting)
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Host is the base URL of the ride service
	Host string `json:"host,omitempty" yaml:"host,omitempty"`

	// Users is the number of simulated users to hold
	Users int `json:"users,omitempty" yaml:"users,omitempty"`

	// SpawnRate is how many users are started (or stopped) per second
	SpawnRate float64 `json:"spawnRate,omitempty" yaml:"spawnRate,omitempty"`

	// RunTime stops the test after this long; zero runs until interrupted
	RunTime Duration `json:"runTime,omitempty" yaml:"runTime,omitempty"`

	// StopTimeout is how long users get to finish their task at shutdown
	StopTimeout Duration `json:"stopTimeout,omitempty" yaml:"stopTimeout,omitempty"`

	// Wait is the pause between two tasks of the same user
	Wait WaitConfig `json:"wait,omitempty" yaml:"wait,omitempty"`

	// UserClasses sets the weight of each user class ("rider", "driver")
	UserClasses map[string]ClassConfig `json:"userClasses,omitempty" yaml:"userClasses,omitempty"`

	// Stages replaces Users/SpawnRate with a staged load shape
	Stages []StageConfig `json:"stages,omitempty" yaml:"stages,omitempty"`

	Thresholds *ThresholdsConfig `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`
	HTTP       HTTPSettings      `json:"http,omitempty" yaml:"http,omitempty"`
	Auth       AuthConfig        `json:"auth,omitempty" yaml:"auth,omitempty"`

	// Seed makes class choice, task choice and generated locations
	// reproducible; zero seeds from the clock
	Seed int64 `json:"seed,omitempty" yaml:"seed,omitempty"`
}

// WaitConfig is a uniform [Min, Max] pause.
type WaitConfig struct {
	Min Duration `json:"min,omitempty" yaml:"min,omitempty"`
	Max Duration `json:"max,omitempty" yaml:"max,omitempty"`
}

// ClassConfig configures one user class.
type ClassConfig struct {
	Weight int `json:"weight" yaml:"weight"`
}

// StageConfig is one stage of a staged run.
type StageConfig struct {
	Duration  Duration `json:"duration" yaml:"duration"`
	Users     int      `json:"users" yaml:"users"`
	SpawnRate float64  `json:"spawnRate" yaml:"spawnRate"`
}

// ThresholdsConfig defines pass/fail criteria for the test.
type ThresholdsConfig struct {
	// e.g. ["p95 < 500ms", "avg < 200ms"]
	HTTPReqDuration []string `json:"http_req_duration,omitempty" yaml:"http_req_duration,omitempty"`

	// e.g. ["rate < 0.01"]
	HTTPReqFailed []string `json:"http_req_failed,omitempty" yaml:"http_req_failed,omitempty"`

	// e.g. ["count > 1000", "rate > 100"]
	HTTPReqs []string `json:"http_reqs,omitempty" yaml:"http_reqs,omitempty"`
}

// HTTPSettings tunes the shared HTTP client.
type HTTPSettings struct {
	Timeout             Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	MaxIdleConnsPerHost int      `json:"maxIdleConnsPerHost,omitempty" yaml:"maxIdleConnsPerHost,omitempty"`
	MaxConnsPerHost     int      `json:"maxConnsPerHost,omitempty" yaml:"maxConnsPerHost,omitempty"`
	InsecureSkipVerify  bool     `json:"insecureSkipVerify,omitempty" yaml:"insecureSkipVerify,omitempty"`
}

// AuthConfig enables bearer tokens for simulated users.
type AuthConfig struct {
	JWTSecret string   `json:"jwtSecret,omitempty" yaml:"jwtSecret,omitempty"`
	Issuer    string   `json:"issuer,omitempty" yaml:"issuer,omitempty"`
	TTL       Duration `json:"ttl,omitempty" yaml:"ttl,omitempty"`
}

// Duration is a time.Duration that unmarshals from Go duration strings
// ("30s", "1h30m") or bare seconds (30, "30", 1.5).
type Duration time.Duration

// ParseDuration parses a duration in either accepted form.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}

	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}

	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}

	return 0, fmt.Errorf("invalid duration format: %s", s)
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// String returns the duration as a string.
func (d Duration) String() string {
	return time.Duration(d).String()
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	s := string(b)
	if s == "null" {
		*d = 0
		return nil
	}
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
	}

	dur, err := ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", value.Line)
	}
	if value.Tag == "!!null" {
		*d = 0
		return nil
	}

	dur, err := ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*d = Duration(dur)
	return nil
}
