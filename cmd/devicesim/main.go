package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/omochice/wsbridge/internal/config"
	"github.com/omochice/wsbridge/internal/device"
	"github.com/omochice/wsbridge/internal/logging"
	"github.com/omochice/wsbridge/internal/transport/ws"
)

func main() {
	// Parse command-line flags
	addr := flag.String("addr", "127.0.0.1:8081", "Address to listen on (e.g., :8081)")
	path := flag.String("path", "/ws", "WebSocket endpoint path")
	notify := flag.Duration("notify", 0, "Interval between pushed notifications (0 disables)")
	delay := flag.Duration("delay", 0, "Simulated processing time before each reply")
	field := flag.String("correlation-field", "_t_recv", "Request field echoed into replies")
	level := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	logger, closeLog, err := logging.New(config.Log{Level: *level, Format: "auto", Output: "stderr"})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer closeLog()

	dev := device.New(device.Config{
		CorrelationField: *field,
		NotifyInterval:   *notify,
		ReplyDelay:       *delay,
	}, logger.Named("device"))

	srv := ws.NewServer(*addr, *path, dev, logger.Named("ws"))
	if err := srv.Start(); err != nil {
		logger.Error("failed to start device simulator", zap.Error(err))
		closeLog()
		os.Exit(1)
	}

	// Handle graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() { _ = dev.Run(ctx) }()

	logger.Info("device simulator ready",
		zap.String("url", srv.URL()),
		zap.Duration("notify", *notify),
		zap.Duration("delay", *delay))

	<-ctx.Done()
	logger.Info("shutting down")

	stopped := make(chan struct{})
	go func() {
		srv.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		logger.Warn("timed out waiting for clients to disconnect")
	}
}
