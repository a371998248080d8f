// Package config loads specforge settings from YAML with environment
// overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/specforge/internal/specerr"
)

// DefaultPath is the config file consulted when none is given.
const DefaultPath = ".specforge/config.yaml"

// Store backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Config holds all specforge settings.
type Config struct {
	Store    StoreConfig   `yaml:"store"`
	Packs    PacksConfig   `yaml:"packs"`
	LLM      LLMConfig     `yaml:"llm"`
	Repair   RepairConfig  `yaml:"repair"`
	Approver string        `yaml:"approver"`
	Logging  LoggingConfig `yaml:"logging"`
}

// StoreConfig selects the session store backend and its location.
type StoreConfig struct {
	Backend    string `yaml:"backend"`
	Dir        string `yaml:"dir"`
	SQLitePath string `yaml:"sqlitePath"`
	RedisURL   string `yaml:"redisUrl"`
}

// PacksConfig locates question packs that shadow the built-in ones.
type PacksConfig struct {
	Dir string `yaml:"dir"`
}

// LLMConfig configures the OpenAI-compatible adapter.
type LLMConfig struct {
	Model   string `yaml:"model"`
	BaseURL string `yaml:"baseUrl"`
	APIKey  string `yaml:"apiKey"`
	Timeout string `yaml:"timeout"`
}

// RepairConfig bounds the finalize repair loop.
type RepairConfig struct {
	MaxLoops    int  `yaml:"maxLoops"`
	AutoApprove bool `yaml:"autoApprove"`
}

// LoggingConfig configures the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Backend:    BackendFile,
			Dir:        ".specforge/sessions",
			SQLitePath: ".specforge/specforge.db",
			RedisURL:   "redis://localhost:6379/0",
		},
		LLM: LLMConfig{
			Model:   "gpt-4o-mini",
			Timeout: "120s",
		},
		Repair: RepairConfig{
			MaxLoops: 3,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads path over the defaults and applies environment overrides.
// A missing file yields the defaults. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, specerr.Wrap(specerr.IOError, err, "read config")
	default:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, specerr.Wrap(specerr.InvalidInput, err, "parse config "+path)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	overrides := []struct {
		env    string
		target *string
	}{
		{"SPECFORGE_STORE", &c.Store.Backend},
		{"SPECFORGE_STORE_DIR", &c.Store.Dir},
		{"SPECFORGE_SQLITE_PATH", &c.Store.SQLitePath},
		{"SPECFORGE_REDIS_URL", &c.Store.RedisURL},
		{"SPECFORGE_PACKS_DIR", &c.Packs.Dir},
		{"OPENAI_API_KEY", &c.LLM.APIKey},
		{"SPECFORGE_LLM_MODEL", &c.LLM.Model},
		{"SPECFORGE_LLM_BASE_URL", &c.LLM.BaseURL},
		{"SPECFORGE_APPROVER", &c.Approver},
		{"SPECFORGE_LOG_LEVEL", &c.Logging.Level},
	}
	for _, o := range overrides {
		if v := os.Getenv(o.env); v != "" {
			*o.target = v
		}
	}
}

// LLMTimeout returns the LLM timeout as a duration.
func (c *Config) LLMTimeout() time.Duration {
	d, err := time.ParseDuration(c.LLM.Timeout)
	if err != nil || d <= 0 {
		return 120 * time.Second
	}
	return d
}

// SlogLevel maps the configured level name to a slog.Level.
func (c *Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Logging.Level)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var problems []string

	switch c.Store.Backend {
	case BackendFile:
		if c.Store.Dir == "" {
			problems = append(problems, "store.dir is required for the file backend")
		}
	case BackendSQLite:
		if c.Store.SQLitePath == "" {
			problems = append(problems, "store.sqlitePath is required for the sqlite backend")
		}
	case BackendRedis:
		if c.Store.RedisURL == "" {
			problems = append(problems, "store.redisUrl is required for the redis backend")
		}
	default:
		problems = append(problems, fmt.Sprintf("invalid store.backend %q (valid: file, sqlite, redis)", c.Store.Backend))
	}

	if c.Repair.MaxLoops < 0 {
		problems = append(problems, fmt.Sprintf("repair.maxLoops must be >= 0, got %d", c.Repair.MaxLoops))
	}
	if c.LLM.Timeout != "" {
		if _, err := time.ParseDuration(c.LLM.Timeout); err != nil {
			problems = append(problems, fmt.Sprintf("invalid llm.timeout %q", c.LLM.Timeout))
		}
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Logging.Level)); err != nil {
		problems = append(problems, fmt.Sprintf("invalid logging.level %q", c.Logging.Level))
	}
	if f := c.Logging.Format; f != "text" && f != "json" {
		problems = append(problems, fmt.Sprintf("invalid logging.format %q (valid: text, json)", f))
	}

	if len(problems) > 0 {
		return specerr.Newf(specerr.InvalidInput, "config: %s", strings.Join(problems, "; "))
	}
	return nil
}
