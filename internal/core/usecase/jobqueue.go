package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/vgrishin/docingest/internal/core/domain"
	"github.com/vgrishin/docingest/internal/core/ports"
)

// JobQueueOptions bound one maintenance pass of the job queue.
type JobQueueOptions struct {
	StuckAfter      time.Duration
	MaxRetries      int
	SelfHealEnabled bool
	SelfHealAfter   time.Duration
	OrphanAfter     time.Duration
	OrphanPerTick   int
	AggregateScan   int
}

func (o JobQueueOptions) normalize() JobQueueOptions {
	out := o
	if out.StuckAfter <= 0 {
		out.StuckAfter = 10 * time.Minute
	}
	if out.MaxRetries <= 0 {
		out.MaxRetries = 3
	}
	if out.SelfHealAfter <= 0 {
		out.SelfHealAfter = 10 * time.Minute
	}
	if out.OrphanAfter <= 0 {
		out.OrphanAfter = 15 * time.Minute
	}
	if out.OrphanPerTick <= 0 {
		out.OrphanPerTick = 5
	}
	if out.AggregateScan <= 0 {
		out.AggregateScan = 50
	}
	return out
}

// JobQueueStage runs the ordered maintenance pass over processing jobs:
// stuck reset with bounded retries, self-healing of failed jobs, the
// aggregation sweep, orphaned-document recovery, and finally dispatch of a
// single pending job.
type JobQueueStage struct {
	jobs       ports.ProcessingJobRepository
	docs       ports.DocumentRepository
	runner     *BatchRunner
	dispatcher ports.StageDispatcher
	logger     *slog.Logger
	opts       JobQueueOptions
}

func NewJobQueueStage(
	jobs ports.ProcessingJobRepository,
	docs ports.DocumentRepository,
	runner *BatchRunner,
	dispatcher ports.StageDispatcher,
	logger *slog.Logger,
	opts JobQueueOptions,
) *JobQueueStage {
	return &JobQueueStage{
		jobs:       jobs,
		docs:       docs,
		runner:     runner,
		dispatcher: dispatcher,
		logger:     logger,
		opts:       opts.normalize(),
	}
}

func (s *JobQueueStage) Run(ctx context.Context, _ ports.StageRequest) (ports.StageReport, error) {
	var report reportBuilder

	if err := s.resetStuck(ctx, &report); err != nil {
		return ports.StageReport{}, err
	}
	if err := s.selfHeal(ctx); err != nil {
		return ports.StageReport{}, err
	}
	if err := s.sweepAggregations(ctx); err != nil {
		return ports.StageReport{}, err
	}
	if err := s.recoverOrphans(ctx); err != nil {
		return ports.StageReport{}, err
	}
	if err := s.dispatchOne(ctx, &report); err != nil {
		return ports.StageReport{}, err
	}

	return report.build("job queue pass complete"), nil
}

// resetStuck returns jobs stuck in processing to pending, or fails them once
// the retry budget is exhausted.
func (s *JobQueueStage) resetStuck(ctx context.Context, report *reportBuilder) error {
	stuck, err := s.jobs.ListStuck(ctx, s.opts.StuckAfter)
	if err != nil {
		return fmt.Errorf("list stuck jobs: %w", err)
	}
	for _, job := range stuck {
		if job.RetryCount+1 > s.opts.MaxRetries {
			msg := fmt.Sprintf("stuck in processing, retry limit %d exhausted", s.opts.MaxRetries)
			if err := s.jobs.IncrementRetry(ctx, job.ID, domain.JobFailed, msg); err != nil {
				report.fail(fmt.Sprintf("job %s: fail stuck: %v", job.ID, err))
				continue
			}
			s.logger.Warn("job_retries_exhausted", "job_id", job.ID, "document_id", job.DocumentID)
			continue
		}
		if err := s.jobs.IncrementRetry(ctx, job.ID, domain.JobPending, "reset after stuck processing"); err != nil {
			report.fail(fmt.Sprintf("job %s: reset stuck: %v", job.ID, err))
			continue
		}
		s.logger.Info("job_reset", "job_id", job.ID, "retry_count", job.RetryCount+1)
	}
	return nil
}

func (s *JobQueueStage) selfHeal(ctx context.Context) error {
	if !s.opts.SelfHealEnabled {
		return nil
	}
	healed, err := s.jobs.ResetForHealing(ctx, s.opts.SelfHealAfter)
	if err != nil {
		return fmt.Errorf("self-heal failed jobs: %w", err)
	}
	if healed > 0 {
		s.logger.Info("jobs_healed", "count", healed)
	}
	return nil
}

// sweepAggregations re-triggers aggregation for documents whose batches all
// completed but that were never marked aggregated.
func (s *JobQueueStage) sweepAggregations(ctx context.Context) error {
	ids, err := s.jobs.ListDocumentsAllComplete(ctx, s.opts.AggregateScan)
	if err != nil {
		return fmt.Errorf("list aggregation candidates: %w", err)
	}
	for _, id := range ids {
		s.dispatcher.Dispatch(domain.StageAggregate, domain.StagePayload{DocumentID: id})
	}
	return nil
}

// recoverOrphans re-triggers splitting for documents stuck in ingested,
// capped per pass so a backlog cannot crowd out regular work.
func (s *JobQueueStage) recoverOrphans(ctx context.Context) error {
	orphans, err := s.docs.ListStuckIngested(ctx, s.opts.OrphanAfter, s.opts.OrphanPerTick)
	if err != nil {
		return fmt.Errorf("list stuck ingested documents: %w", err)
	}
	for _, doc := range orphans {
		s.logger.Warn("orphaned_document_recovery", "document_id", doc.ID)
		s.dispatcher.Dispatch(domain.StageSplit, domain.StagePayload{DocumentID: doc.ID})
	}
	return nil
}

// dispatchOne processes a single pending job synchronously. An execution
// error fails the job immediately; the stuck sweep never touches it again.
func (s *JobQueueStage) dispatchOne(ctx context.Context, report *reportBuilder) error {
	job, err := s.jobs.NextPending(ctx)
	if err != nil {
		return fmt.Errorf("next pending job: %w", err)
	}
	if job == nil {
		return nil
	}

	if err := s.jobs.UpdateStatus(ctx, job.ID, domain.JobProcessing, ""); err != nil {
		return fmt.Errorf("claim job %s: %w", job.ID, err)
	}

	if err := s.runner.ProcessJob(ctx, job); err != nil {
		report.fail(fmt.Sprintf("job %s: %v", job.ID, err))
		if markErr := s.jobs.UpdateStatus(ctx, job.ID, domain.JobFailed, err.Error()); markErr != nil {
			s.logger.Warn("job_mark_failed", "job_id", job.ID, "error", markErr)
		}
		return nil
	}

	if err := s.jobs.UpdateStatus(ctx, job.ID, domain.JobCompleted, ""); err != nil {
		return fmt.Errorf("complete job %s: %w", job.ID, err)
	}
	report.ok()

	// More pending work means another pass is worth triggering right away.
	s.dispatcher.Dispatch(domain.StageJobs, domain.StagePayload{DocumentID: job.DocumentID})
	return nil
}
