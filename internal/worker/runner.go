// Package worker runs the in-process pool that drains the embedding job
// queue. Pool size doubles as the bound on concurrent calls to the external
// embedding service.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sevigo/repo-embedder/internal/core"
	"github.com/sevigo/repo-embedder/internal/queue"
)

// Runner polls the queue with a fixed pool of workers and reports outcomes
// back through Complete/Fail.
type Runner struct {
	queue    *queue.Queue
	embedder core.Embedder
	workers  int
	interval time.Duration
	logger   *slog.Logger
}

// NewRunner creates a Runner. workers of zero or less defaults to 1.
func NewRunner(q *queue.Queue, embedder core.Embedder, workers int, interval time.Duration, logger *slog.Logger) *Runner {
	if workers <= 0 {
		workers = 1
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Runner{
		queue:    q,
		embedder: embedder,
		workers:  workers,
		interval: interval,
		logger:   logger,
	}
}

// Run blocks until ctx is cancelled, then waits for in-flight jobs to finish.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Info("starting embedding workers", "count", r.workers, "poll_interval", r.interval)

	g, ctx := errgroup.WithContext(ctx)
	for i := range r.workers {
		workerID := fmt.Sprintf("worker-%d", i)
		g.Go(func() error {
			r.loop(ctx, workerID)
			return nil
		})
	}
	return g.Wait()
}

func (r *Runner) loop(ctx context.Context, workerID string) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		// Drain everything that is due before going back to sleep.
		for r.processNext(ctx, workerID) {
			if ctx.Err() != nil {
				return
			}
		}
		select {
		case <-ctx.Done():
			r.logger.Info("shutting down embedding worker", "worker_id", workerID)
			return
		case <-ticker.C:
		}
	}
}

// processNext claims and runs one job. It reports whether a job was claimed,
// so the caller knows whether to poll again immediately.
func (r *Runner) processNext(ctx context.Context, workerID string) bool {
	job, err := r.queue.ClaimNext(ctx, workerID)
	if err != nil {
		r.logger.Error("failed to claim job", "worker_id", workerID, "error", err)
		return false
	}
	if job == nil {
		return false
	}

	r.logger.Info("worker processing job",
		"worker_id", workerID,
		"processing_id", job.ProcessingID,
		"repository_url", job.RepositoryURL,
		"attempt", job.Attempts+1,
	)

	embedErr := r.embedder.EmbedRepository(ctx, job)

	// Cancellation is cooperative: an operator may have flipped the status
	// while we were embedding. The guarded transitions in the queue ignore a
	// late report either way; this check just keeps the logs honest.
	current, err := r.queue.GetByProcessingID(ctx, job.ProcessingID)
	if err == nil && current.Status == core.JobStatusCancelled {
		r.logger.Info("job was cancelled while processing, discarding result",
			"worker_id", workerID, "processing_id", job.ProcessingID)
		return true
	}

	if embedErr != nil {
		if err := r.queue.Fail(ctx, job.ID, embedErr.Error()); err != nil {
			r.logger.Error("failed to record job failure",
				"worker_id", workerID, "processing_id", job.ProcessingID, "error", err)
		}
		return true
	}

	if err := r.queue.Complete(ctx, job.ID); err != nil {
		r.logger.Error("failed to record job completion",
			"worker_id", workerID, "processing_id", job.ProcessingID, "error", err)
		return true
	}

	r.logger.Info("job completed", "worker_id", workerID, "processing_id", job.ProcessingID)
	return true
}
