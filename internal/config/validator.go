package config

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/swaranjalilamkane/Scalable-Ride-Booking-System/internal/engine"
	"github.com/swaranjalilamkane/Scalable-Ride-Booking-System/internal/ridehail"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors struct {
	Errors []*ValidationError
}

func (e *ValidationErrors) Error() string {
	if len(e.Errors) == 0 {
		return "no validation errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e.Errors)))
	for i, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Add adds an error to the collection.
func (e *ValidationErrors) Add(field, message string) {
	e.Errors = append(e.Errors, &ValidationError{Field: field, Message: message})
}

// HasErrors returns true if there are any errors.
func (e *ValidationErrors) HasErrors() bool {
	return len(e.Errors) > 0
}

var knownClasses = map[string]bool{
	ridehail.ClassRider:  true,
	ridehail.ClassDriver: true,
}

// Validate checks the final configuration, after files, environment and
// flags have been merged and defaults applied.
//
// Returns nil if valid, or a ValidationErrors containing all validation errors.
func (c *Config) Validate() error {
	errs := &ValidationErrors{}

	validateHost(c.Host, errs)

	if c.Users < 0 {
		errs.Add("users", "users cannot be negative")
	}
	if c.SpawnRate <= 0 {
		errs.Add("spawnRate", "spawnRate must be greater than 0")
	}
	if c.RunTime < 0 {
		errs.Add("runTime", "runTime cannot be negative")
	}
	if c.StopTimeout < 0 {
		errs.Add("stopTimeout", "stopTimeout cannot be negative")
	}

	if c.Wait.Min < 0 || c.Wait.Max < 0 {
		errs.Add("wait", "wait times cannot be negative")
	} else if c.Wait.Max > 0 && c.Wait.Min > c.Wait.Max {
		errs.Add("wait", fmt.Sprintf("min (%s) is greater than max (%s)", c.Wait.Min, c.Wait.Max))
	}

	validateClasses(c.UserClasses, errs)

	for i, stage := range c.Stages {
		prefix := fmt.Sprintf("stages[%d]", i)
		if stage.Duration <= 0 {
			errs.Add(prefix+".duration", "duration must be greater than 0")
		}
		if stage.Users < 0 {
			errs.Add(prefix+".users", "users cannot be negative")
		}
		if stage.SpawnRate <= 0 {
			errs.Add(prefix+".spawnRate", "spawnRate must be greater than 0")
		}
	}

	if c.Thresholds != nil {
		validateThresholds(c.Thresholds, errs)
	}

	if c.HTTP.Timeout < 0 {
		errs.Add("http.timeout", "timeout cannot be negative")
	}
	if c.HTTP.MaxConnsPerHost < 0 {
		errs.Add("http.maxConnsPerHost", "maxConnsPerHost cannot be negative")
	}
	if c.HTTP.MaxIdleConnsPerHost < 0 {
		errs.Add("http.maxIdleConnsPerHost", "maxIdleConnsPerHost cannot be negative")
	}
	if c.Auth.TTL < 0 {
		errs.Add("auth.ttl", "ttl cannot be negative")
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

func validateHost(host string, errs *ValidationErrors) {
	if host == "" {
		errs.Add("host", "host is required (set it in the config, RIDESIM_HOST or --host)")
		return
	}

	u, err := url.Parse(host)
	if err != nil {
		errs.Add("host", fmt.Sprintf("invalid URL: %v", err))
		return
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		errs.Add("host", fmt.Sprintf("scheme must be http or https, got %q", u.Scheme))
	}
	if u.Host == "" {
		errs.Add("host", "URL has no host")
	}
}

func validateClasses(classes map[string]ClassConfig, errs *ValidationErrors) {
	names := make([]string, 0, len(classes))
	for name := range classes {
		names = append(names, name)
	}
	sort.Strings(names)

	total := 0
	for _, name := range names {
		weight := classes[name].Weight
		field := "userClasses." + name
		switch {
		case !knownClasses[name]:
			errs.Add(field, "unknown user class (want rider or driver)")
		case weight < 0:
			errs.Add(field+".weight", "weight cannot be negative")
		default:
			total += weight
		}
	}
	if total == 0 {
		errs.Add("userClasses", "at least one user class needs a positive weight")
	}
}

func validateThresholds(t *ThresholdsConfig, errs *ValidationErrors) {
	groups := []struct {
		field string
		exprs []string
	}{
		{"thresholds.http_req_duration", t.HTTPReqDuration},
		{"thresholds.http_req_failed", t.HTTPReqFailed},
		{"thresholds.http_reqs", t.HTTPReqs},
	}

	for _, g := range groups {
		for i, expr := range g.exprs {
			if err := engine.ValidateThreshold(expr); err != nil {
				errs.Add(fmt.Sprintf("%s[%d]", g.field, i), err.Error())
			}
		}
	}
}
