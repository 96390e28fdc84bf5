package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "RIDESIM_"

// Defaults applied by ApplyDefaults.
const (
	DefaultName        = "ridesim"
	DefaultUsers       = 1
	DefaultSpawnRate   = 1.0
	DefaultStopTimeout = 30 * time.Second
	DefaultHTTPTimeout = 30 * time.Second
	DefaultIssuer      = "ridesim"
	DefaultTokenTTL    = 24 * time.Hour
)

//go:embed schema.json
var schemaJSON []byte

var compileSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(schemaJSON)); err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}
	return compiler.Compile("schema.json")
})

// LoadConfig loads a test configuration from a file.
//
// The file format is determined by extension:
//   - .yaml, .yml -> YAML
//   - .json -> JSON
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return ParseConfig(data, path)
}

// ParseConfig checks data against the configuration schema and decodes it.
//
// The format is determined by the file extension in path, or defaults to YAML
// if the path is empty or has an unknown extension.
func ParseConfig(data []byte, path string) (*Config, error) {
	isJSON := strings.ToLower(filepath.Ext(path)) == ".json"

	doc, err := decodeDocument(data, isJSON)
	if err != nil {
		return nil, err
	}
	if err := checkSchema(doc); err != nil {
		return nil, err
	}

	var config Config
	if isJSON {
		err = json.Unmarshal(data, &config)
	} else {
		err = yaml.Unmarshal(data, &config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return &config, nil
}

// decodeDocument returns data as plain JSON values for schema validation.
func decodeDocument(data []byte, isJSON bool) (interface{}, error) {
	var doc interface{}

	if isJSON {
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
		return doc, nil
	}

	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if doc == nil {
		return map[string]interface{}{}, nil
	}

	// YAML yields ints and typed maps; the schema validator wants what
	// encoding/json produces.
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	doc = nil
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	return doc, nil
}

func checkSchema(doc interface{}) error {
	schema, err := compileSchema()
	if err != nil {
		return err
	}

	err = schema.Validate(doc)
	if err == nil {
		return nil
	}

	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return fmt.Errorf("schema validation failed: %w", err)
	}

	errs := &ValidationErrors{}
	collectSchemaErrors(verr, errs)
	return errs
}

// collectSchemaErrors flattens a schema error tree into its leaves.
func collectSchemaErrors(verr *jsonschema.ValidationError, errs *ValidationErrors) {
	if len(verr.Causes) == 0 {
		field := strings.ReplaceAll(strings.TrimPrefix(verr.InstanceLocation, "/"), "/", ".")
		errs.Add(field, verr.Message)
		return
	}
	for _, cause := range verr.Causes {
		collectSchemaErrors(cause, errs)
	}
}

// LoadEnvFiles loads KEY=VALUE files into the process environment with
// godotenv. Variables already set are not overwritten. With no paths, a
// .env file in the working directory is loaded if present.
func LoadEnvFiles(paths ...string) error {
	if len(paths) == 0 {
		if _, err := os.Stat(".env"); errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		paths = []string{".env"}
	}
	if err := godotenv.Load(paths...); err != nil {
		return fmt.Errorf("failed to load env file: %w", err)
	}
	return nil
}

// ApplyEnv overrides config values with RIDESIM_* variables read through
// lookup (os.LookupEnv in production).
//
// Supported variables:
//
//	RIDESIM_HOST, RIDESIM_NAME, RIDESIM_USERS, RIDESIM_SPAWN_RATE,
//	RIDESIM_RUN_TIME, RIDESIM_STOP_TIMEOUT, RIDESIM_RIDER_WEIGHT,
//	RIDESIM_DRIVER_WEIGHT, RIDESIM_SEED, RIDESIM_JWT_SECRET,
//	RIDESIM_JWT_ISSUER
func ApplyEnv(config *Config, lookup func(string) (string, bool)) error {
	errs := &ValidationErrors{}

	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = v
		}
	}
	integer := func(key string, set func(int)) {
		v, ok := lookup(EnvPrefix + key)
		if !ok {
			return
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			errs.Add(EnvPrefix+key, fmt.Sprintf("not an integer: %q", v))
			return
		}
		set(n)
	}
	duration := func(key string, dst *Duration) {
		v, ok := lookup(EnvPrefix + key)
		if !ok {
			return
		}
		d, err := ParseDuration(v)
		if err != nil {
			errs.Add(EnvPrefix+key, err.Error())
			return
		}
		*dst = Duration(d)
	}

	str("HOST", &config.Host)
	str("NAME", &config.Name)
	str("JWT_SECRET", &config.Auth.JWTSecret)
	str("JWT_ISSUER", &config.Auth.Issuer)
	integer("USERS", func(n int) { config.Users = n })
	integer("RIDER_WEIGHT", func(n int) { config.SetClassWeight("rider", n) })
	integer("DRIVER_WEIGHT", func(n int) { config.SetClassWeight("driver", n) })
	duration("RUN_TIME", &config.RunTime)
	duration("STOP_TIMEOUT", &config.StopTimeout)

	if v, ok := lookup(EnvPrefix + "SPAWN_RATE"); ok {
		rate, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			errs.Add(EnvPrefix+"SPAWN_RATE", fmt.Sprintf("not a number: %q", v))
		} else {
			config.SpawnRate = rate
		}
	}
	if v, ok := lookup(EnvPrefix + "SEED"); ok {
		seed, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			errs.Add(EnvPrefix+"SEED", fmt.Sprintf("not an integer: %q", v))
		} else {
			config.Seed = seed
		}
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

// SetClassWeight sets the weight of one user class. A config without
// classes first gets the rider and driver classes at weight 1.
func (c *Config) SetClassWeight(class string, weight int) {
	if len(c.UserClasses) == 0 {
		c.UserClasses = defaultClasses()
	}
	c.UserClasses[class] = ClassConfig{Weight: weight}
}

func defaultClasses() map[string]ClassConfig {
	return map[string]ClassConfig{
		"rider":  {Weight: 1},
		"driver": {Weight: 1},
	}
}

// ApplyDefaults fills in unset values.
func ApplyDefaults(config *Config) {
	if config.Name == "" {
		config.Name = DefaultName
	}
	if config.Users == 0 && len(config.Stages) == 0 {
		config.Users = DefaultUsers
	}
	if config.SpawnRate == 0 {
		config.SpawnRate = DefaultSpawnRate
	}
	for i := range config.Stages {
		if config.Stages[i].SpawnRate == 0 {
			config.Stages[i].SpawnRate = config.SpawnRate
		}
	}
	if config.StopTimeout == 0 {
		config.StopTimeout = Duration(DefaultStopTimeout)
	}
	if len(config.UserClasses) == 0 {
		config.UserClasses = defaultClasses()
	}
	if config.HTTP.Timeout == 0 {
		config.HTTP.Timeout = Duration(DefaultHTTPTimeout)
	}
	if config.Auth.Issuer == "" {
		config.Auth.Issuer = DefaultIssuer
	}
	if config.Auth.TTL == 0 {
		config.Auth.TTL = Duration(DefaultTokenTTL)
	}
}
