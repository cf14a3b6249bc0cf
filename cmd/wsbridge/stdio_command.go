package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/omochice/wsbridge/internal/metrics"
	"github.com/omochice/wsbridge/internal/stdio"
)

func newStdioCommand(ctx *commandContext) *cobra.Command {
	var metricsListen string

	cmd := &cobra.Command{
		Use:   "stdio",
		Short: "Relay JSON lines between stdin/stdout and the device",
		Long: "Reads one JSON object per line from stdin and forwards it upstream.\n" +
			"Every upstream payload is written to stdout as one line. Logs go to stderr.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStdio(cmd.Context(), ctx, metricsListen)
		},
	}
	cmd.Flags().StringVar(&metricsListen, "metrics-listen", "", "Serve Prometheus metrics on this address")
	return cmd
}

func runStdio(cmdCtx context.Context, ctx *commandContext, metricsListen string) error {
	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, logger, cleanup, err := ctx.setup()
	if err != nil {
		return err
	}
	defer cleanup()

	reporter := metrics.NewReporter()
	outbound := newQueue("outbound", cfg.Queues.OutboundCapacity, reporter, logger)
	defer outbound.Close()

	tracker := stdio.NewTracker(cfg.Stdio.CorrelationField, cfg.Stdio.CorrelationTTL.Std(),
		reporter.ObserveReplyLatency, logger.Named("latency"))
	output := stdio.NewOutput(os.Stdout, tracker)
	intake := stdio.NewIntake(os.Stdin, outbound, tracker, stdio.IntakeConfig{
		CorrelationField: cfg.Stdio.CorrelationField,
		Stamp:            cfg.Stdio.StampCorrelation,
	}, logger.Named("stdin"))

	connector := newConnector(cfg, outbound, output, reporter, logger)

	if metricsListen != "" {
		stopMetrics, err := serveMetrics(metricsListen, reporter, logger)
		if err != nil {
			return err
		}
		defer stopMetrics()
	}

	// Stdin reads cannot be interrupted; the goroutine ends with the process.
	go func() {
		if err := intake.Run(signalCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("stdin intake stopped", zap.Error(err))
		}
	}()

	logger.Info("bridge started",
		zap.String("mode", "stdio"),
		zap.String("upstream", cfg.Upstream.URL))

	err = connector.Run(signalCtx)
	logger.Info("bridge stopped")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func serveMetrics(addr string, reporter *metrics.Reporter, logger *zap.Logger) (func(), error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", reporter.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()
	logger.Info("serving metrics", zap.String("addr", listener.Addr().String()))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
