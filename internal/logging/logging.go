// Package logging builds the process zap logger. Logs never go to stdout,
// which the stdio front-end reserves for relayed payloads.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-isatty"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/omochice/wsbridge/internal/config"
)

// New builds a logger from c, sets it as the global logger and redirects
// the stdlib log package. The returned close function syncs and releases
// the output.
func New(c config.Log) (*zap.Logger, func(), error) {
	level, err := ParseLevel(c.Level)
	if err != nil {
		return nil, nil, err
	}

	ws, closer, err := openOutput(c)
	if err != nil {
		return nil, nil, err
	}

	encoder := newEncoder(c.Format, c.Output)
	core := zapcore.NewCore(encoder, ws, zap.NewAtomicLevelAt(level))

	logger := zap.New(core,
		zap.AddCaller(),
		zap.AddStacktrace(zap.ErrorLevel),
	)
	restoreGlobals := zap.ReplaceGlobals(logger)
	restoreStdLog, _ := zap.RedirectStdLogAt(logger, zap.InfoLevel)

	return logger, func() {
		_ = logger.Sync()
		restoreStdLog()
		restoreGlobals()
		if closer != nil {
			_ = closer.Close()
		}
	}, nil
}

// ParseLevel maps a config level name to a zap level.
func ParseLevel(s string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zap.DebugLevel, nil
	case "", "info":
		return zap.InfoLevel, nil
	case "warn", "warning":
		return zap.WarnLevel, nil
	case "error":
		return zap.ErrorLevel, nil
	default:
		return zap.InfoLevel, fmt.Errorf("unknown log level %q", s)
	}
}

func newEncoder(format, output string) zapcore.Encoder {
	switch resolveFormat(format, output) {
	case "json":
		return zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	default:
		cfg := zap.NewDevelopmentEncoderConfig()
		if output == "stderr" && isTerminal(os.Stderr) {
			cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		}
		return zapcore.NewConsoleEncoder(cfg)
	}
}

// resolveFormat turns "auto" into console for an interactive stderr and
// json otherwise.
func resolveFormat(format, output string) string {
	format = strings.ToLower(strings.TrimSpace(format))
	if format != "auto" && format != "" {
		return format
	}
	if output == "stderr" && isTerminal(os.Stderr) {
		return "console"
	}
	return "json"
}

func openOutput(c config.Log) (zapcore.WriteSyncer, io.Closer, error) {
	switch c.Output {
	case "", "stderr":
		return zapcore.Lock(os.Stderr), nil, nil
	case "stdout":
		return nil, nil, fmt.Errorf("log output cannot be stdout")
	}

	if dir := filepath.Dir(c.Output); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log directory: %w", err)
		}
	}

	if c.Rotate.Enabled {
		lj := &lumberjack.Logger{
			Filename:   c.Output,
			MaxSize:    max(c.Rotate.MaxSizeMB, 1),
			MaxBackups: max(c.Rotate.MaxBackups, 1),
			MaxAge:     max(c.Rotate.MaxAgeDays, 1),
			Compress:   c.Rotate.Compress,
		}
		return zapcore.AddSync(lj), lj, nil
	}

	f, err := os.OpenFile(c.Output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	return zapcore.Lock(f), f, nil
}

func isTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
