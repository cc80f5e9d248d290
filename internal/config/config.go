// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads stepflow's configuration from a YAML file and the
// environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tombee/stepflow/internal/log"
	stepflowerrors "github.com/tombee/stepflow/pkg/errors"
)

// Config is the complete stepflow configuration.
type Config struct {
	Log      log.Config     `yaml:"log"`
	Engine   EngineConfig   `yaml:"engine"`
	Programs ProgramsConfig `yaml:"programs"`
	History  HistoryConfig  `yaml:"history"`
	Tracing  TracingConfig  `yaml:"tracing"`
	Server   ServerConfig   `yaml:"server"`
}

// EngineConfig tunes program execution.
type EngineConfig struct {
	// ScratchDir is where per-run scratch directories are created.
	// Empty means the system temp directory.
	ScratchDir string `yaml:"scratch_dir,omitempty"`

	// RetryCount and RetryInterval apply to retrying steps that do not set
	// their own.
	RetryCount    int           `yaml:"retry_count"`
	RetryInterval time.Duration `yaml:"retry_interval"`

	// WhileMaxIterations bounds every while loop.
	WhileMaxIterations int `yaml:"while_max_iterations"`

	// JQTimeout bounds a single jq query.
	JQTimeout time.Duration `yaml:"jq_timeout"`

	// MaxDelay bounds the delay action.
	MaxDelay time.Duration `yaml:"max_delay"`

	Shell ShellConfig `yaml:"shell"`
	HTTP  HTTPConfig  `yaml:"http"`
}

// HTTPConfig controls the client used by the net.http action.
type HTTPConfig struct {
	Timeout       time.Duration `yaml:"timeout"`
	RetryAttempts int           `yaml:"retry_attempts"`
	UserAgent     string        `yaml:"user_agent,omitempty"`
}

// ShellConfig controls the shell action.
type ShellConfig struct {
	Enabled bool          `yaml:"enabled"`
	Timeout time.Duration `yaml:"timeout"`
}

// ProgramsConfig locates program definitions.
type ProgramsConfig struct {
	Dir     string `yaml:"dir"`
	Pattern string `yaml:"pattern"`

	// Watch reloads programs when files change (serve only).
	Watch bool `yaml:"watch"`
}

// HistoryConfig controls the run history database.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`

	// Retention is how long finished runs are kept. Zero keeps them forever.
	Retention time.Duration `yaml:"retention"`
}

// TracingConfig controls OpenTelemetry tracing.
type TracingConfig struct {
	Enabled      bool             `yaml:"enabled"`
	ServiceName  string           `yaml:"service_name"`
	SamplingRate float64          `yaml:"sampling_rate"`
	Exporters    []ExporterConfig `yaml:"exporters,omitempty"`
}

// ExporterConfig defines a span export destination.
type ExporterConfig struct {
	// Type is "console", "otlp" or "otlp-http".
	Type     string            `yaml:"type"`
	Endpoint string            `yaml:"endpoint,omitempty"`
	Headers  map[string]string `yaml:"headers,omitempty"`
	Insecure bool              `yaml:"insecure,omitempty"`
	CACert   string            `yaml:"ca_cert,omitempty"`
}

// ServerConfig controls the HTTP endpoint started by serve.
type ServerConfig struct {
	// Addr is the listen address; empty disables the endpoint.
	Addr string `yaml:"addr"`

	// Metrics exposes Prometheus metrics at /metrics.
	Metrics bool `yaml:"metrics"`

	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Log: log.Config{Level: "info", Format: log.FormatText},
		Engine: EngineConfig{
			RetryCount:         3,
			RetryInterval:      time.Second,
			WhileMaxIterations: 1000,
			JQTimeout:          5 * time.Second,
			MaxDelay:           5 * time.Minute,
			Shell:              ShellConfig{Enabled: false, Timeout: 30 * time.Second},
			HTTP:               HTTPConfig{Timeout: 30 * time.Second, RetryAttempts: 2},
		},
		Programs: ProgramsConfig{
			Dir:     filepath.Join(configBase(), "programs"),
			Pattern: "**/*.{yaml,yml}",
			Watch:   true,
		},
		History: HistoryConfig{
			Enabled:   true,
			Path:      filepath.Join(dataBase(), "history.db"),
			Retention: 30 * 24 * time.Hour,
		},
		Tracing: TracingConfig{
			ServiceName:  "stepflow",
			SamplingRate: 1.0,
		},
		Server: ServerConfig{
			Addr:            "127.0.0.1:9877",
			Metrics:         true,
			ShutdownTimeout: 10 * time.Second,
		},
	}
}

// Load reads configuration from path, or from the default location when
// path is empty and a file exists there, then applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		if p := DefaultPath(); fileExists(p) {
			path = p
		}
	}
	if path != "" {
		if err := cfg.loadFromFile(path); err != nil {
			return nil, &stepflowerrors.ConfigError{
				Key:    "config_file",
				Reason: fmt.Sprintf("failed to load from %s", path),
				Cause:  err,
			}
		}
	}

	cfg.loadFromEnv()
	cfg.Programs.Dir = expandHome(cfg.Programs.Dir)
	cfg.History.Path = expandHome(cfg.History.Path)
	cfg.Engine.ScratchDir = expandHome(cfg.Engine.ScratchDir)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(expandHome(path))
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	return nil
}

// loadFromEnv applies STEPFLOW_* overrides. Malformed values are ignored.
func (c *Config) loadFromEnv() {
	log.ApplyEnv(&c.Log)

	if val := os.Getenv("STEPFLOW_PROGRAMS_DIR"); val != "" {
		c.Programs.Dir = val
	}
	if val := os.Getenv("STEPFLOW_SCRATCH_DIR"); val != "" {
		c.Engine.ScratchDir = val
	}
	if val := os.Getenv("STEPFLOW_RETRY_COUNT"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.Engine.RetryCount = n
		}
	}
	if val := os.Getenv("STEPFLOW_RETRY_INTERVAL"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.Engine.RetryInterval = d
		}
	}
	if val := os.Getenv("STEPFLOW_SHELL_ENABLED"); val != "" {
		c.Engine.Shell.Enabled = parseBool(val)
	}
	if val := os.Getenv("STEPFLOW_HISTORY_ENABLED"); val != "" {
		c.History.Enabled = parseBool(val)
	}
	if val := os.Getenv("STEPFLOW_HISTORY_PATH"); val != "" {
		c.History.Path = val
	}
	if val := os.Getenv("STEPFLOW_TRACING_ENABLED"); val != "" {
		c.Tracing.Enabled = parseBool(val)
	}
	if val := os.Getenv("STEPFLOW_OTLP_ENDPOINT"); val != "" {
		c.Tracing.Enabled = true
		c.Tracing.Exporters = append(c.Tracing.Exporters, ExporterConfig{Type: "otlp", Endpoint: val})
	}
	if val := os.Getenv("STEPFLOW_SERVER_ADDR"); val != "" {
		c.Server.Addr = val
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	var errs []string

	if !log.ValidLevel(c.Log.Level) {
		errs = append(errs, fmt.Sprintf("log.level must be one of [trace, debug, info, warn, error], got %q", c.Log.Level))
	}
	if c.Log.Format != log.FormatJSON && c.Log.Format != log.FormatText && c.Log.Format != "" {
		errs = append(errs, fmt.Sprintf("log.format must be one of [json, text], got %q", c.Log.Format))
	}

	if c.Engine.RetryCount < 0 {
		errs = append(errs, fmt.Sprintf("engine.retry_count must not be negative, got %d", c.Engine.RetryCount))
	}
	if c.Engine.RetryInterval < 0 {
		errs = append(errs, fmt.Sprintf("engine.retry_interval must not be negative, got %v", c.Engine.RetryInterval))
	}
	if c.Engine.WhileMaxIterations <= 0 {
		errs = append(errs, fmt.Sprintf("engine.while_max_iterations must be positive, got %d", c.Engine.WhileMaxIterations))
	}
	if c.Engine.Shell.Timeout <= 0 {
		errs = append(errs, fmt.Sprintf("engine.shell.timeout must be positive, got %v", c.Engine.Shell.Timeout))
	}
	if c.Engine.HTTP.Timeout <= 0 {
		errs = append(errs, fmt.Sprintf("engine.http.timeout must be positive, got %v", c.Engine.HTTP.Timeout))
	}
	if c.Engine.HTTP.RetryAttempts < 0 {
		errs = append(errs, fmt.Sprintf("engine.http.retry_attempts must not be negative, got %d", c.Engine.HTTP.RetryAttempts))
	}

	if c.Programs.Dir == "" {
		errs = append(errs, "programs.dir is required")
	}
	if c.History.Enabled && c.History.Path == "" {
		errs = append(errs, "history.path is required when history is enabled")
	}

	if c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1 {
		errs = append(errs, fmt.Sprintf("tracing.sampling_rate must be between 0 and 1, got %v", c.Tracing.SamplingRate))
	}
	for i, e := range c.Tracing.Exporters {
		switch e.Type {
		case "console":
		case "otlp", "otlp-http":
			if e.Endpoint == "" {
				errs = append(errs, fmt.Sprintf("tracing.exporters[%d].endpoint is required for %s", i, e.Type))
			}
		default:
			errs = append(errs, fmt.Sprintf("tracing.exporters[%d].type must be one of [console, otlp, otlp-http], got %q", i, e.Type))
		}
	}

	if len(errs) > 0 {
		return &stepflowerrors.ConfigError{
			Key:    "validation",
			Reason: strings.Join(errs, "; "),
		}
	}
	return nil
}

func parseBool(s string) bool {
	return s == "1" || strings.EqualFold(s, "true")
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
