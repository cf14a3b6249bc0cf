package config

import "time"

const (
	defaultConfigFile       = "wsbridge.toml"
	defaultURL              = "ws://192.168.1.35/ws"
	defaultListen           = "0.0.0.0:3001"
	defaultCorrelationField = "_t_recv"
	defaultLogLevel         = "info"
	defaultLogFormat        = "auto"
	defaultLogOutput        = "stderr"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Upstream: Upstream{
			URL:          defaultURL,
			RetryDelay:   Duration(3 * time.Second),
			DialTimeout:  Duration(10 * time.Second),
			WriteTimeout: Duration(10 * time.Second),
			PingInterval: Duration(30 * time.Second),
		},
		HTTP: HTTP{
			Listen:            defaultListen,
			HeartbeatInterval: Duration(5 * time.Second),
			EnableMetrics:     true,
		},
		Queues: Queues{
			InboundCapacity:  1024,
			OutboundCapacity: 256,
		},
		Stdio: Stdio{
			CorrelationField: defaultCorrelationField,
			StampCorrelation: true,
			CorrelationTTL:   Duration(5 * time.Minute),
		},
		Log: Log{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
			Output: defaultLogOutput,
			Rotate: Rotate{
				MaxSizeMB:  50,
				MaxBackups: 3,
				MaxAgeDays: 14,
			},
		},
	}
}
