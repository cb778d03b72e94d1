package worker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/DukeRupert/hireready/internal/metrics"
	"github.com/DukeRupert/hireready/internal/repository"
)

// Worker polls the jobs table and runs registered handlers.
type Worker struct {
	store    repository.Store
	handlers map[string]JobHandler
	config   Config
	logger   *slog.Logger

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New validates config and returns a stopped Worker. Register handlers,
// then call Start.
func New(store repository.Store, config Config, logger *slog.Logger) (*Worker, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid worker config: %w", err)
	}
	return &Worker{
		store:    store,
		handlers: make(map[string]JobHandler),
		config:   config,
		logger:   logger.With("component", "worker"),
	}, nil
}

// Register adds h under h.Type(). Not safe to call after Start.
func (w *Worker) Register(h JobHandler) {
	if _, exists := w.handlers[h.Type()]; exists {
		w.logger.Warn("replacing job handler", "job_type", h.Type())
	}
	w.handlers[h.Type()] = h
}

// Start requeues jobs a crashed process left running, then launches the
// polling goroutines. They stop when ctx ends or Stop is called.
func (w *Worker) Start(ctx context.Context) {
	count, err := w.store.RecoverStaleJobs(ctx, w.config.StaleJobThreshold.Seconds())
	switch {
	case err != nil:
		w.logger.Error("failed to recover stale jobs", "error", err)
	case count > 0:
		w.logger.Warn("requeued stale jobs", "count", count, "threshold", w.config.StaleJobThreshold)
	}

	ctx, w.cancel = context.WithCancel(ctx)
	for i := range w.config.Concurrency {
		w.wg.Add(1)
		go w.poll(ctx, w.logger.With("worker_id", i+1))
	}
	w.logger.Info("worker started", "concurrency", w.config.Concurrency, "handlers", len(w.handlers))
}

// Stop ends polling and waits up to ShutdownTimeout for running jobs. A job
// already handed to an evaluator is allowed to finish; its result has been
// paid for.
func (w *Worker) Stop() {
	if w.cancel == nil {
		return
	}
	w.cancel()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("worker stopped")
	case <-time.After(w.config.ShutdownTimeout):
		w.logger.Warn("worker shutdown timed out with jobs still running", "timeout", w.config.ShutdownTimeout)
	}
}

// poll drains the queue, then sleeps PollInterval before looking again.
func (w *Worker) poll(ctx context.Context, logger *slog.Logger) {
	defer w.wg.Done()

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		for ctx.Err() == nil {
			claimed, err := w.processNext(ctx, logger)
			if err != nil && !errors.Is(err, sql.ErrNoRows) && ctx.Err() == nil {
				logger.Error("job processing failed", "error", err)
			}
			if !claimed {
				break
			}
		}
		timer.Reset(w.config.PollInterval)
	}
}

// RunOnce dequeues and runs one job. It returns sql.ErrNoRows when nothing
// is due.
func (w *Worker) RunOnce(ctx context.Context) error {
	_, err := w.processNext(ctx, w.logger)
	return err
}

// processNext claims a job in one transaction and runs it outside of it.
// claimed is false when no job could be taken, whether the queue was empty
// or the store failed.
func (w *Worker) processNext(ctx context.Context, logger *slog.Logger) (claimed bool, err error) {
	var job repository.Job
	err = w.store.ExecTx(ctx, func(q repository.Querier) error {
		var err error
		if job, err = q.DequeueJob(ctx); err != nil {
			return err
		}
		return q.UpdateJobStarted(ctx, job.ID)
	})
	if err != nil {
		return false, err
	}

	logger = logger.With("job_id", job.ID, "job_type", job.JobType, "attempt", job.Attempts+1)
	logger.Info("job started")

	// Claimed jobs run to completion even when polling stops.
	runCtx := context.WithoutCancel(ctx)
	metrics.JobStarted(job.JobType)
	start := time.Now()

	if jobErr := w.execute(runCtx, job); jobErr != nil {
		permanent := IsPermanent(jobErr)
		metrics.JobFailed(job.JobType, permanent)
		logger.Warn("job failed", "error", jobErr, "permanent", permanent)

		if err := w.store.UpdateJobFailed(runCtx, repository.UpdateJobFailedParams{
			ID:           job.ID,
			ErrorMessage: sql.NullString{String: jobErr.Error(), Valid: true},
			Permanent:    permanent,
		}); err != nil {
			logger.Error("failed to record job failure", "error", err)
		}
		return true, fmt.Errorf("job %s: %w", job.ID, jobErr)
	}

	metrics.JobCompleted(job.JobType, time.Since(start))
	if err := w.store.UpdateJobCompleted(runCtx, job.ID); err != nil {
		return true, fmt.Errorf("mark job %s completed: %w", job.ID, err)
	}
	logger.Info("job completed", "duration_ms", time.Since(start).Milliseconds())
	return true, nil
}

func (w *Worker) execute(ctx context.Context, job repository.Job) error {
	h, ok := w.handlers[job.JobType]
	if !ok {
		return NewPermanentError(fmt.Errorf("no handler registered for job type %q", job.JobType))
	}

	ctx, cancel := context.WithTimeout(ctx, w.config.JobTimeout)
	defer cancel()
	return h.Handle(ctx, job.Payload)
}
