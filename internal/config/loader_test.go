package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
name: "Ride service smoke"
host: "http://localhost:8080"
users: 20
spawnRate: 2.5
runTime: 5m
stopTimeout: 10
wait:
  min: 500ms
  max: 1.5
userClasses:
  rider: {weight: 3}
  driver: {weight: 1}
thresholds:
  http_req_duration: ["p95 < 500ms"]
  http_req_failed: ["rate < 0.01"]
http:
  timeout: 5s
  maxConnsPerHost: 50
auth:
  jwtSecret: s3cret
  ttl: 1h
seed: 42
`

func TestParseConfig_YAML(t *testing.T) {
	cfg, err := ParseConfig([]byte(sampleYAML), "test.yaml")
	require.NoError(t, err)

	assert.Equal(t, "Ride service smoke", cfg.Name)
	assert.Equal(t, "http://localhost:8080", cfg.Host)
	assert.Equal(t, 20, cfg.Users)
	assert.Equal(t, 2.5, cfg.SpawnRate)
	assert.Equal(t, 5*time.Minute, cfg.RunTime.Std())
	assert.Equal(t, 10*time.Second, cfg.StopTimeout.Std())
	assert.Equal(t, 500*time.Millisecond, cfg.Wait.Min.Std())
	assert.Equal(t, 1500*time.Millisecond, cfg.Wait.Max.Std())
	assert.Equal(t, 3, cfg.UserClasses["rider"].Weight)
	assert.Equal(t, 1, cfg.UserClasses["driver"].Weight)
	assert.Equal(t, []string{"p95 < 500ms"}, cfg.Thresholds.HTTPReqDuration)
	assert.Equal(t, 5*time.Second, cfg.HTTP.Timeout.Std())
	assert.Equal(t, 50, cfg.HTTP.MaxConnsPerHost)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
	assert.Equal(t, time.Hour, cfg.Auth.TTL.Std())
	assert.EqualValues(t, 42, cfg.Seed)
}

func TestParseConfig_JSON(t *testing.T) {
	data := `{
		"host": "https://rides.example.com",
		"users": 5,
		"runTime": "30s",
		"stages": [
			{"duration": "1m", "users": 10, "spawnRate": 1},
			{"duration": 30, "users": 0}
		]
	}`

	cfg, err := ParseConfig([]byte(data), "test.json")
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.RunTime.Std())
	require.Len(t, cfg.Stages, 2)
	assert.Equal(t, time.Minute, cfg.Stages[0].Duration.Std())
	assert.Equal(t, 30*time.Second, cfg.Stages[1].Duration.Std())
	assert.Equal(t, 0.0, cfg.Stages[1].SpawnRate)
}

func TestParseConfig_Empty(t *testing.T) {
	cfg, err := ParseConfig([]byte(""), "empty.yaml")
	require.NoError(t, err)
	assert.Equal(t, &Config{}, cfg)
}

func TestParseConfig_SchemaErrors(t *testing.T) {
	tests := []struct {
		name  string
		data  string
		field string
	}{
		{"unknown key", "host: http://x\nvus: 3\n", ""},
		{"wrong type", "users: many\n", "users"},
		{"negative users", "users: -1\n", "users"},
		{"unknown class", "userClasses:\n  pilot: {weight: 1}\n", "userClasses"},
		{"bad duration", "runTime: soon\n", "runTime"},
		{"stage without users", "stages:\n  - duration: 1m\n", "stages.0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tt.data), "c.yaml")
			require.Error(t, err)

			var verrs *ValidationErrors
			require.True(t, errors.As(err, &verrs), "got %T: %v", err, err)
			require.NotEmpty(t, verrs.Errors)

			if tt.field != "" {
				found := false
				for _, e := range verrs.Errors {
					if e.Field == tt.field || len(e.Field) > len(tt.field) && e.Field[:len(tt.field)] == tt.field {
						found = true
					}
				}
				assert.True(t, found, "no error on %q in %v", tt.field, err)
			}
		})
	}
}

func TestParseConfig_Malformed(t *testing.T) {
	_, err := ParseConfig([]byte("{"), "c.json")
	assert.ErrorContains(t, err, "failed to parse JSON config")

	_, err = ParseConfig([]byte("users: [1"), "c.yml")
	assert.ErrorContains(t, err, "failed to parse YAML config")
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ridesim.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.Users)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"", 0, false},
		{"30s", 30 * time.Second, false},
		{"1h30m", 90 * time.Minute, false},
		{"45", 45 * time.Second, false},
		{" 2.5 ", 2500 * time.Millisecond, false},
		{"soon", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseDuration(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseDuration(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseDuration(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestDuration_JSONRoundTrip(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalJSON([]byte(`"1m"`)))
	assert.Equal(t, time.Minute, d.Std())

	require.NoError(t, d.UnmarshalJSON([]byte(`90`)))
	assert.Equal(t, 90*time.Second, d.Std())

	require.NoError(t, d.UnmarshalJSON([]byte(`null`)))
	assert.Equal(t, Duration(0), d)

	out, err := Duration(1500 * time.Millisecond).MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"1.5s"`, string(out))
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"RIDESIM_HOST":          "http://env-host:9000",
		"RIDESIM_USERS":         "7",
		"RIDESIM_SPAWN_RATE":    "0.5",
		"RIDESIM_RUN_TIME":      "2m",
		"RIDESIM_DRIVER_WEIGHT": "4",
		"RIDESIM_JWT_SECRET":    "from-env",
		"RIDESIM_SEED":          "9",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := &Config{Host: "http://file-host", Users: 3}
	require.NoError(t, ApplyEnv(cfg, lookup))

	assert.Equal(t, "http://env-host:9000", cfg.Host)
	assert.Equal(t, 7, cfg.Users)
	assert.Equal(t, 0.5, cfg.SpawnRate)
	assert.Equal(t, 2*time.Minute, cfg.RunTime.Std())
	assert.Equal(t, map[string]ClassConfig{"rider": {Weight: 1}, "driver": {Weight: 4}}, cfg.UserClasses)
	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
	assert.EqualValues(t, 9, cfg.Seed)
}

func TestApplyEnv_Invalid(t *testing.T) {
	env := map[string]string{
		"RIDESIM_USERS":    "lots",
		"RIDESIM_RUN_TIME": "later",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	err := ApplyEnv(&Config{}, lookup)
	var verrs *ValidationErrors
	require.True(t, errors.As(err, &verrs))
	assert.Len(t, verrs.Errors, 2)
}

func TestConfig_SetClassWeight(t *testing.T) {
	c := &Config{}
	c.SetClassWeight("driver", 4)
	assert.Equal(t, map[string]ClassConfig{"rider": {Weight: 1}, "driver": {Weight: 4}}, c.UserClasses)

	c = &Config{UserClasses: map[string]ClassConfig{"rider": {Weight: 2}}}
	c.SetClassWeight("rider", 5)
	assert.Equal(t, map[string]ClassConfig{"rider": {Weight: 5}}, c.UserClasses)
}

func TestLoadEnvFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("RIDESIM_TEST_ONLY_HOST=http://dotenv:1\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("RIDESIM_TEST_ONLY_HOST") })

	require.NoError(t, LoadEnvFiles(path))
	assert.Equal(t, "http://dotenv:1", os.Getenv("RIDESIM_TEST_ONLY_HOST"))

	assert.Error(t, LoadEnvFiles(filepath.Join(t.TempDir(), "missing.env")))
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{Stages: []StageConfig{{Duration: Duration(time.Minute), Users: 5}}}
	ApplyDefaults(cfg)

	assert.Equal(t, DefaultName, cfg.Name)
	assert.Equal(t, 0, cfg.Users, "staged runs keep users unset")
	assert.Equal(t, DefaultSpawnRate, cfg.SpawnRate)
	assert.Equal(t, DefaultSpawnRate, cfg.Stages[0].SpawnRate)
	assert.Equal(t, DefaultStopTimeout, cfg.StopTimeout.Std())
	assert.Equal(t, DefaultHTTPTimeout, cfg.HTTP.Timeout.Std())
	assert.Equal(t, 1, cfg.UserClasses["rider"].Weight)
	assert.Equal(t, 1, cfg.UserClasses["driver"].Weight)
	assert.Equal(t, DefaultIssuer, cfg.Auth.Issuer)
	assert.Equal(t, DefaultTokenTTL, cfg.Auth.TTL.Std())

	plain := &Config{}
	ApplyDefaults(plain)
	assert.Equal(t, DefaultUsers, plain.Users)
}
