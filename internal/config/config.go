// Package config loads the application configuration.
//
// Settings come from a YAML file, then from the environment. A .env file in
// the working directory is loaded into the environment first when present.
//
//	metadata: model.yaml
//	modules:
//	  - name: sales
//	    fetchPlansConfig: [sales/fetch-plans.xml]
//	stores:
//	  - {name: main, kind: sql, driver: postgres, dsn: "postgres://..."}
//	  - {name: crm, kind: badger, path: /var/lib/crm}
//	http: {addr: ":8080"}
//	log: {level: info, format: text}
//
// Relative paths resolve against the directory of the config file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"fetchplan-registry/internal/common"
	"fetchplan-registry/internal/logging"
)

// DefaultPath is the config file used when none is given.
const DefaultPath = "fetchplan.yaml"

// AppModule names the module holding locations added through the environment.
const AppModule = "app"

// Config is the application configuration.
type Config struct {
	// Metadata is the entity model file.
	Metadata string         `yaml:"metadata" validate:"required"`
	Modules  []Module       `yaml:"modules" validate:"dive"`
	Stores   []StoreConfig  `yaml:"stores" validate:"dive"`
	HTTP     HTTPConfig     `yaml:"http"`
	Log      logging.Config `yaml:"log"`

	// Dir is the directory relative paths resolve against.
	Dir string `yaml:"-"`
}

// Module contributes fetch plan definition files.
type Module struct {
	Name             string   `yaml:"name" validate:"required"`
	FetchPlansConfig []string `yaml:"fetchPlansConfig"`
}

// Store kinds.
const (
	StoreSQL    = "sql"
	StoreBadger = "badger"
)

// StoreConfig describes one backing store.
type StoreConfig struct {
	Name   string `yaml:"name" validate:"required"`
	Kind   string `yaml:"kind" validate:"required,oneof=sql badger"`
	Driver string `yaml:"driver,omitempty" validate:"omitempty,oneof=postgres sqlite"`
	DSN    string `yaml:"dsn,omitempty" validate:"required_if=Kind sql"`
	// Path is the badger directory; empty runs in memory.
	Path string `yaml:"path,omitempty"`
}

// HTTPConfig configures the inspection API.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// env holds environment overrides.
type env struct {
	Config           string `env:"FETCHPLAN_CONFIG"`
	Metadata         string `env:"FETCHPLAN_METADATA"`
	FetchPlansConfig string `env:"FETCHPLAN_FETCH_PLANS_CONFIG"`
	LogLevel         string `env:"FETCHPLAN_LOG_LEVEL"`
	LogFormat        string `env:"FETCHPLAN_LOG_FORMAT"`
	HTTPAddr         string `env:"FETCHPLAN_HTTP_ADDR"`
}

var validate = validator.New()

// Load reads the configuration. An empty path uses FETCHPLAN_CONFIG, then
// DefaultPath.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	var e env
	if err := envdecode.Decode(&e); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("failed to decode environment: %w", err)
	}

	if path == "" {
		path = e.Config
	}

	if path == "" {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load config %s: %w", path, err)
	}

	cfg.Dir = filepath.Dir(path)
	cfg.applyEnv(e)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return cfg, nil
}

// Parse decodes YAML configuration without environment overrides.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{HTTP: HTTPConfig{Addr: ":8080"}}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return cfg, nil
}

// Validate checks required fields and store names.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}

	seen := map[string]bool{}

	for _, s := range c.Stores {
		if seen[s.Name] {
			return fmt.Errorf("duplicate store %q", s.Name)
		}

		if s.Kind == StoreSQL && s.Driver == "" {
			return fmt.Errorf("store %q: sql stores require a driver", s.Name)
		}

		seen[s.Name] = true
	}

	return nil
}

// applyEnv overrides the file with the environment. Paths from the
// environment are relative to the working directory, not to the config file.
func (c *Config) applyEnv(e env) {
	if e.Metadata != "" {
		c.Metadata = absPath(e.Metadata)
	}

	if e.LogLevel != "" {
		c.Log.Level = e.LogLevel
	}

	if e.LogFormat != "" {
		c.Log.Format = e.LogFormat
	}

	if e.HTTPAddr != "" {
		c.HTTP.Addr = e.HTTPAddr
	}

	if extra := common.SplitList(e.FetchPlansConfig, " \t\n"); len(extra) > 0 {
		for i, loc := range extra {
			extra[i] = absPath(loc)
		}

		c.Modules = append(c.Modules, Module{Name: AppModule, FetchPlansConfig: extra})
	}
}

func absPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}

	return path
}

// Resolve returns path relative to the config directory unless absolute.
func (c *Config) Resolve(path string) string {
	if path == "" || filepath.IsAbs(path) || c.Dir == "" {
		return path
	}

	return filepath.Join(c.Dir, path)
}

// MetadataPath returns the resolved model file path.
func (c *Config) MetadataPath() string {
	return c.Resolve(c.Metadata)
}

// FetchPlanLocations aggregates the fetch plan files of all modules in
// module order. A file listed twice is kept at its first position.
func (c *Config) FetchPlanLocations() []string {
	var locations []string

	for _, m := range c.Modules {
		for _, loc := range m.FetchPlansConfig {
			locations = append(locations, filepath.Clean(c.Resolve(loc)))
		}
	}

	return common.Dedupe(locations)
}

// Store returns the store configuration with the given name.
func (c *Config) Store(name string) (StoreConfig, bool) {
	for _, s := range c.Stores {
		if s.Name == name {
			return s, true
		}
	}

	return StoreConfig{}, false
}
