package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config is the server configuration
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Database  DatabaseConfig  `toml:"database"`
	Engine    EngineConfig    `toml:"engine"`
	Evaluator EvaluatorConfig `toml:"evaluator"`
	Records   RecordsConfig   `toml:"records"`
	Log       LogConfig       `toml:"log"`
}

type ServerConfig struct {
	Port            int    `toml:"port"`
	ShutdownTimeout string `toml:"shutdown_timeout"`
}

// DatabaseConfig selects persistence. An empty URL runs everything in memory.
type DatabaseConfig struct {
	URL         string `toml:"url"`
	AutoMigrate bool   `toml:"auto_migrate"`
}

type EngineConfig struct {
	MaxParallelism int `toml:"max_parallelism"`
	// DefinitionsDir holds extra calculator definitions (.yaml/.json)
	// loaded at startup
	DefinitionsDir string `toml:"definitions_dir"`
}

type EvaluatorConfig struct {
	RemoteURL string `toml:"remote_url"`
	Timeout   string `toml:"timeout"`
}

type RecordsConfig struct {
	CacheTTL string `toml:"cache_ttl"`
}

type LogConfig struct {
	Level           string `toml:"level"`
	ErrorSampleRate int    `toml:"error_sample_rate"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ShutdownTimeout: "30s",
		},
		Engine: EngineConfig{
			MaxParallelism: 8,
		},
		Records: RecordsConfig{
			CacheTTL: "1m",
		},
		Log: LogConfig{
			Level:           "INFO",
			ErrorSampleRate: 1,
		},
	}
}

// Load reads the file named by RECALC_CONFIG, or config.toml in the
// working directory, then applies environment overrides. A missing file
// means defaults.
func Load() (*Config, error) {
	path := os.Getenv("RECALC_CONFIG")
	explicit := path != ""
	if !explicit {
		path = "config.toml"
	}

	cfg, err := LoadFile(path)
	if errors.Is(err, os.ErrNotExist) && !explicit {
		cfg, err = Default(), nil
	}
	if err != nil {
		return nil, err
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile reads a TOML file over the defaults
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.URL = v
	}
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		c.Server.Port = port
	}
	if v := os.Getenv("REMOTE_EVALUATOR_URL"); v != "" {
		c.Evaluator.RemoteURL = v
	}
	if v := os.Getenv("RECORD_CACHE_TTL"); v != "" {
		c.Records.CacheTTL = v
	}
	if v := os.Getenv("MAX_PARALLELISM"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid MAX_PARALLELISM %q: %w", v, err)
		}
		c.Engine.MaxParallelism = n
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	return nil
}

// Validate checks ranges and durations
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}
	if c.Engine.MaxParallelism < 1 {
		return fmt.Errorf("engine max_parallelism must be at least 1")
	}
	for name, v := range map[string]string{
		"server.shutdown_timeout": c.Server.ShutdownTimeout,
		"evaluator.timeout":       c.Evaluator.Timeout,
		"records.cache_ttl":       c.Records.CacheTTL,
	} {
		if _, err := parseDuration(v); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// ShutdownTimeout is how long in-flight requests get on shutdown
func (c *Config) ShutdownTimeout() time.Duration {
	d, _ := parseDuration(c.Server.ShutdownTimeout)
	return d
}

// EvaluatorTimeout bounds remote evaluator calls; zero means none
func (c *Config) EvaluatorTimeout() time.Duration {
	d, _ := parseDuration(c.Evaluator.Timeout)
	return d
}

// RecordCacheTTL is how long looked-up records are kept; zero disables
// expiry
func (c *Config) RecordCacheTTL() time.Duration {
	d, _ := parseDuration(c.Records.CacheTTL)
	return d
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}
