// Package queue manages the embedding job queue: creation, priority-ordered
// claims, retry with backoff, and the operator-facing state transitions.
// All cross-replica coordination happens inside the storage layer; this
// package only decides which transition to ask for.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sevigo/repo-embedder/internal/core"
	"github.com/sevigo/repo-embedder/internal/storage"
)

var (
	// ErrNotRetryable is returned by Retry for jobs not in the failed state.
	ErrNotRetryable = errors.New("only failed jobs can be retried")
	// ErrNotCancellable is returned by Cancel for jobs already terminal.
	ErrNotCancellable = errors.New("job is already in a terminal state")
	// ErrDeleteProcessing is returned by Delete when the job is being worked
	// on and force was not set; the live worker would otherwise report
	// completion against a missing row.
	ErrDeleteProcessing = errors.New("refusing to delete a processing job without force")
)

// DefaultMaxAttempts bounds automatic retries when the caller does not
// specify a limit.
const DefaultMaxAttempts = 3

// Queue is the embedding job queue service.
type Queue struct {
	store       storage.Store
	logger      *slog.Logger
	maxAttempts int
	now         func() time.Time
}

// New creates a Queue over the given store. defaultMaxAttempts of zero or
// less falls back to DefaultMaxAttempts.
func New(store storage.Store, logger *slog.Logger, defaultMaxAttempts int) *Queue {
	if defaultMaxAttempts <= 0 {
		defaultMaxAttempts = DefaultMaxAttempts
	}
	return &Queue{
		store:       store,
		logger:      logger,
		maxAttempts: defaultMaxAttempts,
		now:         time.Now,
	}
}

// AddParams collects the inputs for a new embedding job.
type AddParams struct {
	ProjectID     string
	RepositoryURL string
	// ProcessingID is the externally visible correlation id; generated when
	// empty.
	ProcessingID string
	Priority     core.Priority
	// MaxAttempts of zero falls back to the queue default.
	MaxAttempts int
	// ScheduledFor hides the job from claims until it elapses.
	ScheduledFor *time.Time
}

// Add creates a pending job.
func (q *Queue) Add(ctx context.Context, p AddParams) (*core.EmbeddingJob, error) {
	if p.ProjectID == "" || p.RepositoryURL == "" {
		return nil, fmt.Errorf("projectId and repositoryUrl are required")
	}
	if p.ProcessingID == "" {
		p.ProcessingID = uuid.NewString()
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = q.maxAttempts
	}

	now := q.now().UTC()
	job := &core.EmbeddingJob{
		ID:            uuid.NewString(),
		ProcessingID:  p.ProcessingID,
		RepositoryURL: p.RepositoryURL,
		ProjectID:     p.ProjectID,
		Status:        core.JobStatusPending,
		Priority:      p.Priority,
		MaxAttempts:   p.MaxAttempts,
		CreatedAt:     now,
		UpdatedAt:     now,
		ScheduledFor:  p.ScheduledFor,
	}
	if err := q.store.CreateJob(ctx, job); err != nil {
		return nil, err
	}

	q.logger.Info("embedding job queued",
		"processing_id", job.ProcessingID,
		"project_id", job.ProjectID,
		"priority", job.Priority,
		"scheduled_for", job.ScheduledFor,
	)
	return job, nil
}

// ClaimNext hands the highest-priority eligible job to a worker, or nil when
// nothing is due. The claim itself is a single atomic statement in the store.
func (q *Queue) ClaimNext(ctx context.Context, workerID string) (*core.EmbeddingJob, error) {
	job, err := q.store.ClaimNextJob(ctx, q.now().UTC())
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	q.logger.Debug("job claimed", "worker_id", workerID, "processing_id", job.ProcessingID)
	return job, nil
}

// Complete records a successful run. Completing a job that has already left
// the processing state (e.g. cancelled mid-run) is a warning, not an error.
func (q *Queue) Complete(ctx context.Context, id string) error {
	err := q.store.CompleteJob(ctx, id, q.now().UTC())
	if errors.Is(err, storage.ErrInvalidState) {
		q.logger.Warn("ignoring completion for job no longer processing", "job_id", id)
		return nil
	}
	return err
}

// Fail records a failed run. While attempts remain the job is scheduled for
// a retry after an exponential, jittered backoff; otherwise it becomes
// terminally failed. Failing a job that is not processing is a warning-level
// no-op, so a late report from a reaped worker cannot corrupt state.
func (q *Queue) Fail(ctx context.Context, id, errMsg string) error {
	job, err := q.store.GetJob(ctx, id)
	if err != nil {
		return err
	}
	if job.Status != core.JobStatusProcessing {
		q.logger.Warn("ignoring failure for job no longer processing",
			"job_id", id, "status", job.Status)
		return nil
	}

	now := q.now().UTC()
	attempts := job.Attempts + 1
	if attempts < job.MaxAttempts {
		retryAt := now.Add(Backoff(attempts))
		err = q.store.FailJobForRetry(ctx, id, errMsg, retryAt, now)
		if err == nil {
			q.logger.Info("job scheduled for retry",
				"processing_id", job.ProcessingID,
				"attempts", attempts,
				"retry_at", retryAt,
			)
		}
	} else {
		err = q.store.FailJobTerminal(ctx, id, errMsg, now)
		if err == nil {
			q.logger.Error("job failed permanently",
				"processing_id", job.ProcessingID,
				"attempts", attempts,
				"error", errMsg,
			)
		}
	}
	if errors.Is(err, storage.ErrInvalidState) {
		q.logger.Warn("job left processing state during failure report", "job_id", id)
		return nil
	}
	return err
}

// Retry is the operator path from failed back to pending. The attempt
// counter is preserved: retries stay bounded whether they come from the
// backoff loop or from an operator.
func (q *Queue) Retry(ctx context.Context, processingID string) (*core.EmbeddingJob, error) {
	job, err := q.store.RetryJob(ctx, processingID, q.now().UTC())
	if errors.Is(err, storage.ErrInvalidState) {
		return nil, ErrNotRetryable
	}
	if err != nil {
		return nil, err
	}
	q.logger.Info("job reset for retry by operator", "processing_id", processingID)
	return job, nil
}

// Cancel stops a pending, retrying, or processing job. Cancellation of a
// processing job is cooperative: the status flips immediately and the worker
// discovers it when it reports back.
func (q *Queue) Cancel(ctx context.Context, processingID string) (*core.EmbeddingJob, error) {
	job, err := q.store.CancelJob(ctx, processingID, q.now().UTC())
	if errors.Is(err, storage.ErrInvalidState) {
		return nil, ErrNotCancellable
	}
	if err != nil {
		return nil, err
	}
	q.logger.Info("job cancelled by operator", "processing_id", processingID)
	return job, nil
}

// Delete removes a job record entirely. Deleting a processing job requires
// force.
func (q *Queue) Delete(ctx context.Context, processingID string, force bool) error {
	job, err := q.store.GetJobByProcessingID(ctx, processingID)
	if err != nil {
		return err
	}
	if job.Status == core.JobStatusProcessing && !force {
		return ErrDeleteProcessing
	}
	if err := q.store.DeleteJob(ctx, processingID); err != nil {
		return err
	}
	q.logger.Info("job deleted by operator", "processing_id", processingID, "status", job.Status)
	return nil
}

// GetByProcessingID returns the job for an externally visible id.
func (q *Queue) GetByProcessingID(ctx context.Context, processingID string) (*core.EmbeddingJob, error) {
	return q.store.GetJobByProcessingID(ctx, processingID)
}

// Stats aggregates job counts by status.
func (q *Queue) Stats(ctx context.Context) (core.QueueStats, error) {
	return q.store.CountJobsByStatus(ctx)
}

// Recent returns jobs ordered by creation time, newest first, plus the total
// row count for pagination.
func (q *Queue) Recent(ctx context.Context, limit, offset int) ([]*core.EmbeddingJob, int, error) {
	return q.store.ListRecentJobs(ctx, limit, offset)
}

// FailStale pushes jobs whose worker has gone silent back through the normal
// failure path, so they either retry with backoff or exhaust their attempts.
func (q *Queue) FailStale(ctx context.Context, cutoff time.Time) (int, error) {
	ids, err := q.store.ListStaleProcessingJobIDs(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		if err := q.Fail(ctx, id, "worker lost: processing exceeded stale threshold"); err != nil {
			q.logger.Error("failed to reap stale job", "job_id", id, "error", err)
		}
	}
	return len(ids), nil
}
