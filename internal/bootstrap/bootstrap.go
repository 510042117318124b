package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/vgrishin/docingest/internal/config"
	"github.com/vgrishin/docingest/internal/core/ports"
	"github.com/vgrishin/docingest/internal/core/usecase"
	"github.com/vgrishin/docingest/internal/infrastructure/chunking"
	"github.com/vgrishin/docingest/internal/infrastructure/dispatch"
	"github.com/vgrishin/docingest/internal/infrastructure/embedding"
	"github.com/vgrishin/docingest/internal/infrastructure/extractor"
	"github.com/vgrishin/docingest/internal/infrastructure/extractor/pdftext"
	"github.com/vgrishin/docingest/internal/infrastructure/extractor/plaintext"
	"github.com/vgrishin/docingest/internal/infrastructure/extractor/spreadsheet"
	"github.com/vgrishin/docingest/internal/infrastructure/queue/nats"
	"github.com/vgrishin/docingest/internal/infrastructure/repository/postgres"
	"github.com/vgrishin/docingest/internal/infrastructure/storage/localfs"
	"github.com/vgrishin/docingest/internal/infrastructure/storage/s3"
	"github.com/vgrishin/docingest/internal/infrastructure/summarize"
	"github.com/vgrishin/docingest/internal/infrastructure/vision"
)

const dispatcherPoolSize = 8

type App struct {
	Config config.Config
	Queue  *nats.Queue

	IngestUC *usecase.IngestDocumentUseCase
	QueryUC  *usecase.DocumentQueryUseCase

	SplitStage     *usecase.SplitStage
	AggregateStage *usecase.AggregateStage
	EmbedStage     *usecase.EmbedStage
	EnrichStage    *usecase.EnrichStage
	ReconcileStage *usecase.ReconcileStage
	JobQueueStage  *usecase.JobQueueStage

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := postgres.EnsureSchema(ctx, db, cfg.EmbeddingDimensions); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	docs := postgres.NewDocumentRepository(db)
	chunks := postgres.NewChunkRepository(db)
	visualJobs := postgres.NewVisualJobRepository(db)
	processingJobs := postgres.NewProcessingJobRepository(db)

	storage, err := newObjectStorage(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	queue, err := nats.New(cfg.NATSURL, cfg.NATSStagePrefix)
	if err != nil {
		return nil, fmt.Errorf("init stage queue: %w", err)
	}

	dispatcher, err := dispatch.New(queue, logger, dispatcherPoolSize)
	if err != nil {
		return nil, fmt.Errorf("init dispatcher: %w", err)
	}

	embedClient := embedding.New(cfg.EmbeddingBaseURL, cfg.EmbeddingAPIKey, cfg.EmbeddingModel,
		cfg.EmbeddingDimensions, embedding.Options{
			MaxAttempts: cfg.EmbeddingMaxAttempts,
			BackoffBase: cfg.EmbeddingBackoffBase,
		})
	batcher := embedding.NewBatcher(embedClient, embedding.BatchOptions{
		GroupSize:       cfg.EmbedGroupSize,
		Concurrency:     cfg.EmbedConcurrency,
		GroupsPerSecond: float64(cfg.EmbedGroupsPerSecond),
	})
	visionClient := vision.New(cfg.VisionBaseURL, cfg.VisionAPIKey, cfg.VisionModel, nil)
	summarizer := summarize.New(cfg.SummarizerBaseURL, cfg.SummarizerAPIKey, cfg.SummarizerModel, logger)

	extract := extractor.NewSelector(
		pdftext.NewExtractor(storage),
		spreadsheet.NewExtractor(storage),
		plaintext.NewExtractor(storage),
	)
	chunker := chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap, cfg.ChunkMaxSize)

	readiness := usecase.NewReadinessChecker(docs, chunks, dispatcher, logger)
	runner := usecase.NewBatchRunner(docs, chunks, visualJobs, extract, chunker, summarizer, logger, 25)

	app := &App{
		Config: cfg,
		Queue:  queue,

		IngestUC: usecase.NewIngestDocumentUseCase(docs, storage, dispatcher),
		QueryUC:  usecase.NewDocumentQueryUseCase(docs, chunks),

		SplitStage:     usecase.NewSplitStage(docs, processingJobs, extract, dispatcher, logger, 25),
		AggregateStage: usecase.NewAggregateStage(docs, processingJobs, dispatcher, logger),
		EmbedStage:     usecase.NewEmbedStage(chunks, batcher, readiness, logger),
		EnrichStage: usecase.NewEnrichStage(visualJobs, chunks, docs, visionClient, embedClient,
			readiness, logger, usecase.EnrichOptions{
				BatchSize:     cfg.EnrichBatchSize,
				MaxIterations: cfg.EnrichMaxIterations,
				StuckAfter:    cfg.VisionStuckAfter,
			}),
		ReconcileStage: usecase.NewReconcileStage(docs, chunks, readiness, logger),
		JobQueueStage: usecase.NewJobQueueStage(processingJobs, docs, runner, dispatcher, logger,
			usecase.JobQueueOptions{
				StuckAfter:      cfg.JobStuckAfter,
				MaxRetries:      cfg.JobMaxRetries,
				SelfHealEnabled: cfg.JobsSelfHealEnable,
				SelfHealAfter:   cfg.JobsSelfHealAfter,
				OrphanAfter:     cfg.OrphanRecoveryAfter,
				OrphanPerTick:   cfg.OrphanRecoveryPerTick,
			}),

		closeFn: func() {
			dispatcher.Close()
			queue.Close()
			_ = db.Close()
		},
	}
	return app, nil
}

func newObjectStorage(ctx context.Context, cfg config.Config) (ports.ObjectStorage, error) {
	if strings.EqualFold(cfg.StorageBackend, "s3") {
		return s3.New(ctx, s3.Config{
			Region:    cfg.S3Region,
			Bucket:    cfg.S3Bucket,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		})
	}
	return localfs.New(cfg.StoragePath)
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
