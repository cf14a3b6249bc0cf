package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

// Environment variables recognised by Load.
const (
	EnvURL       = "WSBRIDGE_URL"
	EnvListen    = "WSBRIDGE_LISTEN"
	EnvLogLevel  = "WSBRIDGE_LOG_LEVEL"
	EnvLogFormat = "WSBRIDGE_LOG_FORMAT"
)

// loadDotEnv reads ./.env when present. Variables already set in the
// process environment are not overwritten.
func loadDotEnv() error {
	if err := godotenv.Load(); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() {
	if v, ok := os.LookupEnv(EnvURL); ok && v != "" {
		c.Upstream.URL = v
	}
	if v, ok := os.LookupEnv(EnvListen); ok && v != "" {
		c.HTTP.Listen = v
	}
	if v, ok := os.LookupEnv(EnvLogLevel); ok && v != "" {
		c.Log.Level = v
	}
	if v, ok := os.LookupEnv(EnvLogFormat); ok && v != "" {
		c.Log.Format = v
	}
}
