package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/omochice/wsbridge/internal/metrics"
	"github.com/omochice/wsbridge/internal/server"
)

const shutdownTimeout = 5 * time.Second

func newHTTPCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "http",
		Short: "Serve upstream payloads over SSE and accept POST /send",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHTTP(cmd.Context(), ctx)
		},
	}
	cmd.Flags().StringVar(&ctx.overrides.Listen, "listen", "", "HTTP listen address (default 0.0.0.0:3001)")
	return cmd
}

func runHTTP(cmdCtx context.Context, ctx *commandContext) error {
	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, logger, cleanup, err := ctx.setup()
	if err != nil {
		return err
	}
	defer cleanup()

	reporter := metrics.NewReporter()
	inbound := newQueue("inbound", cfg.Queues.InboundCapacity, reporter, logger)
	outbound := newQueue("outbound", cfg.Queues.OutboundCapacity, reporter, logger)
	defer inbound.Close()
	defer outbound.Close()

	connector := newConnector(cfg, outbound, inbound, reporter, logger)

	var metricsHandler http.Handler
	if cfg.HTTP.EnableMetrics {
		metricsHandler = reporter.Handler()
	}
	srv := server.New(server.Config{
		Address:           cfg.HTTP.Listen,
		HeartbeatInterval: cfg.HTTP.HeartbeatInterval.Std(),
		Metrics:           metricsHandler,
	}, inbound, outbound, connector.Status, logger.Named("http"))

	if err := srv.Start(); err != nil {
		return err
	}

	logger.Info("bridge started",
		zap.String("mode", "http"),
		zap.String("upstream", cfg.Upstream.URL),
		zap.String("listen", srv.Addr()))

	err = connector.Run(signalCtx)

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	if stopErr := srv.Stop(shutdownCtx); stopErr != nil {
		logger.Warn("http server shutdown incomplete", zap.Error(stopErr))
	}

	logger.Info("bridge stopped")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
