package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateUpstream(); err != nil {
		return err
	}
	if err := c.validateHTTP(); err != nil {
		return err
	}
	if err := c.validateQueues(); err != nil {
		return err
	}
	if err := c.validateStdio(); err != nil {
		return err
	}
	return c.validateLog()
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

func (c *Config) validateUpstream() error {
	if c.Upstream.URL == "" {
		return invalid("upstream.url must be set")
	}
	u, err := url.Parse(c.Upstream.URL)
	if err != nil {
		return invalid("upstream.url: %v", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return invalid("upstream.url must use ws or wss, got %q", u.Scheme)
	}
	if u.Host == "" {
		return invalid("upstream.url must include a host")
	}
	if c.Upstream.RetryDelay <= 0 {
		return invalid("upstream.retry_delay must be positive")
	}
	if c.Upstream.DialTimeout <= 0 {
		return invalid("upstream.dial_timeout must be positive")
	}
	if c.Upstream.WriteTimeout <= 0 {
		return invalid("upstream.write_timeout must be positive")
	}
	if c.Upstream.PingInterval < 0 {
		return invalid("upstream.ping_interval must not be negative")
	}
	return nil
}

func (c *Config) validateHTTP() error {
	if _, _, err := net.SplitHostPort(c.HTTP.Listen); err != nil {
		return invalid("http.listen: %v", err)
	}
	if c.HTTP.HeartbeatInterval <= 0 {
		return invalid("http.heartbeat_interval must be positive")
	}
	return nil
}

func (c *Config) validateQueues() error {
	if c.Queues.InboundCapacity < 1 {
		return invalid("queues.inbound_capacity must be at least 1")
	}
	if c.Queues.OutboundCapacity < 1 {
		return invalid("queues.outbound_capacity must be at least 1")
	}
	return nil
}

func (c *Config) validateStdio() error {
	if c.Stdio.CorrelationTTL <= 0 {
		return invalid("stdio.correlation_ttl must be positive")
	}
	return nil
}

func (c *Config) validateLog() error {
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return invalid("log.level must be one of debug, info, warn, error; got %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "auto", "console", "json":
	default:
		return invalid("log.format must be one of auto, console, json; got %q", c.Log.Format)
	}
	if c.Log.Output == "stdout" {
		return invalid("log.output cannot be stdout; stdout carries relayed payloads")
	}
	if c.Log.Rotate.Enabled && c.Log.Output == "stderr" {
		return invalid("log.rotate requires log.output to be a file path")
	}
	return nil
}
