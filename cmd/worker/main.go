package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirillkom/graphrag-assistant/internal/bootstrap"
	"github.com/kirillkom/graphrag-assistant/internal/config"
	"github.com/kirillkom/graphrag-assistant/internal/observability/logging"
	"github.com/kirillkom/graphrag-assistant/internal/observability/metrics"
)

const (
	serviceName    = "worker"
	runTimeout     = 30 * time.Minute
	metricsTimeout = 5 * time.Second
)

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger(serviceName, cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logging.Critical(ctx, logger, "bootstrap failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	workerMetrics := metrics.NewWorkerMetrics(serviceName)
	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           workerMetrics.Handler(),
		ReadHeaderTimeout: metricsTimeout,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("worker metrics server failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsTimeout)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	logger.Info("worker subscribed", "subject", cfg.NATSSubject)
	err = app.Queue.SubscribeBatchRequested(ctx, func(handlerCtx context.Context, runID string) error {
		if run, err := app.RunsUC.GetByID(handlerCtx, runID); err == nil {
			workerMetrics.ObserveQueueLag(serviceName, time.Since(run.CreatedAt))
		}

		runCtx, cancel := context.WithTimeout(handlerCtx, runTimeout)
		defer cancel()

		workerMetrics.StartRun()
		started := time.Now()
		err := app.RunsUC.ProcessByID(runCtx, runID)
		rows := 0
		if run, getErr := app.RunsUC.GetByID(handlerCtx, runID); getErr == nil {
			rows = run.RowsDone
		}
		workerMetrics.FinishRun(serviceName, time.Since(started), rows, err)
		if err == nil {
			logger.Info("batch run completed", "run_id", runID, "rows", rows)
		}
		return err
	})
	if err != nil {
		logging.Critical(ctx, logger, "worker subscribe failed", "error", err)
		os.Exit(1)
	}
}
