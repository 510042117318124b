package dispatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/vgrishin/docingest/internal/core/domain"
	"github.com/vgrishin/docingest/internal/core/ports"
)

// Dispatcher chains pipeline stages fire-and-forget. Work is handed to a
// detached worker pool so the calling stage returns immediately; terminal
// errors are logged here because the caller will never see them.
type Dispatcher struct {
	pool    *ants.Pool
	queue   ports.StageQueue
	logger  *slog.Logger
	timeout time.Duration
}

type Option func(*Dispatcher)

func WithTimeout(d time.Duration) Option {
	return func(disp *Dispatcher) {
		if d > 0 {
			disp.timeout = d
		}
	}
}

func New(queue ports.StageQueue, logger *slog.Logger, poolSize int, opts ...Option) (*Dispatcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if poolSize < 1 {
		poolSize = 4
	}
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	d := &Dispatcher{
		pool:    pool,
		queue:   queue,
		logger:  logger,
		timeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

func (d *Dispatcher) Dispatch(stage string, payload domain.StagePayload) {
	submitErr := d.pool.Submit(func() {
		d.publish(stage, payload)
	})
	if submitErr != nil {
		// Pool exhausted or released; the trigger still must not be lost
		// silently on the caller's account.
		d.logger.Error("stage_dispatch_submit_failed",
			"stage", stage,
			"document_id", payload.DocumentID,
			"error", submitErr,
		)
	}
}

func (d *Dispatcher) publish(stage string, payload domain.StagePayload) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	if err := d.queue.Publish(ctx, stage, payload); err != nil {
		d.logger.Error("stage_dispatch_failed",
			"stage", stage,
			"document_id", payload.DocumentID,
			"error", err,
		)
		return
	}
	d.logger.Debug("stage_dispatched", "stage", stage, "document_id", payload.DocumentID)
}

func (d *Dispatcher) Close() {
	d.pool.Release()
}
