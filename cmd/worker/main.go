package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vgrishin/docingest/internal/bootstrap"
	"github.com/vgrishin/docingest/internal/config"
	"github.com/vgrishin/docingest/internal/core/domain"
	"github.com/vgrishin/docingest/internal/core/ports"
	"github.com/vgrishin/docingest/internal/observability/logging"
	"github.com/vgrishin/docingest/internal/observability/metrics"
)

const serviceName = "docingest-worker"

const stageTimeout = 5 * time.Minute

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger(serviceName, cfg.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	workerMetrics := metrics.NewWorkerMetrics(serviceName)
	stages := map[string]ports.PipelineStage{
		domain.StageSplit:     app.SplitStage,
		domain.StageAggregate: app.AggregateStage,
		domain.StageEmbed:     app.EmbedStage,
		domain.StageEnrich:    app.EnrichStage,
		domain.StageReconcile: app.ReconcileStage,
		domain.StageJobs:      app.JobQueueStage,
	}

	runStage := func(parent context.Context, stage string, req ports.StageRequest) error {
		target, ok := stages[stage]
		if !ok {
			// Downstream-only subjects like benchmark-assign are consumed
			// elsewhere.
			logger.Debug("stage_ignored", "stage", stage)
			return nil
		}

		stageCtx, cancel := context.WithTimeout(parent, stageTimeout)
		defer cancel()

		start := time.Now()
		workerMetrics.StartStage(serviceName, stage)
		report, err := target.Run(stageCtx, req)
		workerMetrics.FinishStage(serviceName, stage, time.Since(start), err)
		if err != nil {
			return err
		}
		workerMetrics.RecordStageItems(serviceName, stage, report.Processed, report.Failed)
		switch stage {
		case domain.StageEmbed:
			workerMetrics.ObserveEmbedBatch(serviceName, report.Processed+report.Failed)
		case domain.StageEnrich:
			workerMetrics.RecordVisualJobs(serviceName, report.Processed, report.Failed)
		}
		if report.Failed > 0 {
			logger.Warn("stage_partial_failure",
				"stage", stage,
				"processed", report.Processed,
				"failed", report.Failed,
				"message", report.Message,
			)
		}
		return nil
	}

	metricsServer := &http.Server{
		Addr:    ":" + cfg.WorkerMetricsPort,
		Handler: workerMetrics.Handler(),
	}
	go func() {
		logger.Info("worker_metrics_listening", "port", cfg.WorkerMetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("worker metrics server error: %v", err)
		}
	}()

	// Periodic maintenance: the sweeper and job queue need no external
	// trigger, enrichment drains the visual queue in the background.
	go runTicker(ctx, cfg.ReconcileInterval, func() {
		if err := runStage(ctx, domain.StageReconcile, ports.StageRequest{}); err != nil {
			logger.Error("reconcile_tick_failed", "error", err)
		}
	})
	go runTicker(ctx, cfg.JobsInterval, func() {
		if err := runStage(ctx, domain.StageJobs, ports.StageRequest{}); err != nil {
			logger.Error("jobs_tick_failed", "error", err)
		}
	})
	go runTicker(ctx, cfg.EnrichInterval, func() {
		if err := runStage(ctx, domain.StageEnrich, ports.StageRequest{}); err != nil {
			logger.Error("enrich_tick_failed", "error", err)
		}
	})

	logger.Info("worker_subscribed", "prefix", cfg.NATSStagePrefix)
	err = app.Queue.Subscribe(ctx, func(handlerCtx context.Context, stage string, payload domain.StagePayload) error {
		if !payload.EmittedAt.IsZero() {
			workerMetrics.ObserveQueueLag(serviceName, stage, time.Since(payload.EmittedAt))
		}
		return runStage(handlerCtx, stage, ports.StageRequest{
			DocumentID: payload.DocumentID,
			BatchSize:  payload.BatchSize,
		})
	})
	if err != nil {
		log.Fatalf("worker subscribe error: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsServer.Shutdown(shutdownCtx)
}

func runTicker(ctx context.Context, interval time.Duration, tick func()) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick()
		}
	}
}
