package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Upstream configures the WebSocket connection to the device.
type Upstream struct {
	URL          string   `toml:"url"`
	RetryDelay   Duration `toml:"retry_delay"`
	DialTimeout  Duration `toml:"dial_timeout"`
	WriteTimeout Duration `toml:"write_timeout"`
	// PingInterval of zero disables keepalive pings.
	PingInterval Duration `toml:"ping_interval"`
}

// HTTP configures the SSE front-end.
type HTTP struct {
	Listen            string   `toml:"listen"`
	HeartbeatInterval Duration `toml:"heartbeat_interval"`
	EnableMetrics     bool     `toml:"enable_metrics"`
}

// Queues sizes the two bounded channels.
type Queues struct {
	InboundCapacity  int `toml:"inbound_capacity"`
	OutboundCapacity int `toml:"outbound_capacity"`
}

// Stdio configures the process-pipe front-end.
type Stdio struct {
	CorrelationField string   `toml:"correlation_field"`
	StampCorrelation bool     `toml:"stamp_correlation"`
	CorrelationTTL   Duration `toml:"correlation_ttl"`
}

// Rotate configures file log rotation.
type Rotate struct {
	Enabled    bool `toml:"enabled"`
	MaxSizeMB  int  `toml:"max_size_mb"`
	MaxBackups int  `toml:"max_backups"`
	MaxAgeDays int  `toml:"max_age_days"`
	Compress   bool `toml:"compress"`
}

// Log configures log output.
type Log struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	// Output is "stderr" or a file path.
	Output string `toml:"output"`
	Rotate Rotate `toml:"rotate"`
}

// Config encapsulates all configuration values for wsbridge.
type Config struct {
	Upstream Upstream `toml:"upstream"`
	HTTP     HTTP     `toml:"http"`
	Queues   Queues   `toml:"queues"`
	Stdio    Stdio    `toml:"stdio"`
	Log      Log      `toml:"log"`
	// LockFile, when set, prevents two bridges from sharing one device.
	LockFile string `toml:"lock_file"`
}

// Overrides are command-line values applied on top of file and environment
// settings. Empty fields are ignored.
type Overrides struct {
	URL      string
	Listen   string
	LogLevel string
}

// Load reads the TOML file at path (if any), applies .env and environment
// overrides and then o, and returns a normalized, validated config. An
// empty path falls back to ./wsbridge.toml when it exists.
func Load(path string, o Overrides) (*Config, error) {
	cfg := Default()

	resolved, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, err
	}

	if exists {
		file, err := os.Open(resolved)
		if err != nil {
			return nil, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	} else if path != "" {
		return nil, fmt.Errorf("config file %s: %w", path, fs.ErrNotExist)
	}

	if err := loadDotEnv(); err != nil {
		return nil, err
	}
	cfg.applyEnv()
	cfg.apply(o)

	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path == "" {
		path = defaultConfigFile
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return path, false, nil
		}
		return "", false, fmt.Errorf("stat config: %w", err)
	}
	if info.IsDir() {
		return "", false, fmt.Errorf("config path %s is a directory", path)
	}
	return path, true, nil
}

func (c *Config) apply(o Overrides) {
	if v := strings.TrimSpace(o.URL); v != "" {
		c.Upstream.URL = v
	}
	if v := strings.TrimSpace(o.Listen); v != "" {
		c.HTTP.Listen = v
	}
	if v := strings.TrimSpace(o.LogLevel); v != "" {
		c.Log.Level = v
	}
}

func (c *Config) normalize() error {
	c.Upstream.URL = strings.TrimSpace(c.Upstream.URL)
	c.HTTP.Listen = strings.TrimSpace(c.HTTP.Listen)
	c.Stdio.CorrelationField = strings.TrimSpace(c.Stdio.CorrelationField)
	if c.Stdio.CorrelationField == "" {
		c.Stdio.CorrelationField = defaultCorrelationField
	}

	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	if c.Log.Level == "" {
		c.Log.Level = defaultLogLevel
	}
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
	if c.Log.Format == "" {
		c.Log.Format = defaultLogFormat
	}
	c.Log.Output = strings.TrimSpace(c.Log.Output)
	if c.Log.Output == "" {
		c.Log.Output = defaultLogOutput
	}

	var err error
	if c.Log.Output != "stderr" && c.Log.Output != "stdout" {
		if c.Log.Output, err = filepath.Abs(c.Log.Output); err != nil {
			return fmt.Errorf("log.output: %w", err)
		}
	}
	if c.LockFile = strings.TrimSpace(c.LockFile); c.LockFile != "" {
		if c.LockFile, err = filepath.Abs(c.LockFile); err != nil {
			return fmt.Errorf("lock_file: %w", err)
		}
	}
	return nil
}

// CreateSample writes a sample configuration file to path.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
