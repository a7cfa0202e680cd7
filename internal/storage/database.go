// Package storage implements persistence for embedding jobs and webhook
// processing records. The Postgres store is the production backend; the
// in-memory store backs unit tests and single-binary development.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	// import db drivers
	_ "github.com/lib/pq"

	"github.com/sevigo/repo-embedder/internal/core"
)

var (
	// ErrNotFound is returned when no record matches the given identifier.
	ErrNotFound = errors.New("record not found")
	// ErrInvalidState is returned when a record exists but its current
	// status does not permit the requested transition.
	ErrInvalidState = errors.New("record is not in a valid state for this operation")
)

// Store defines all database operations for jobs and processing records.
// The two correctness-critical operations, ClaimNextJob and InsertProcessing,
// must be atomic against the backing store: concurrent callers across
// replicas may never claim the same job or the same webhook key.
type Store interface {
	CreateJob(ctx context.Context, job *core.EmbeddingJob) error
	GetJob(ctx context.Context, id string) (*core.EmbeddingJob, error)
	GetJobByProcessingID(ctx context.Context, processingID string) (*core.EmbeddingJob, error)
	// ClaimNextJob atomically selects the highest-priority eligible job and
	// transitions it to processing. Returns ErrNotFound when nothing is due.
	ClaimNextJob(ctx context.Context, now time.Time) (*core.EmbeddingJob, error)
	CompleteJob(ctx context.Context, id string, now time.Time) error
	// FailJobForRetry marks a processing job as retrying, increments its
	// attempt counter and defers the next claim until retryAt.
	FailJobForRetry(ctx context.Context, id, errMsg string, retryAt, now time.Time) error
	// FailJobTerminal marks a processing job as terminally failed.
	FailJobTerminal(ctx context.Context, id, errMsg string, now time.Time) error
	// RetryJob resets a failed job to pending. Attempts are preserved.
	RetryJob(ctx context.Context, processingID string, now time.Time) (*core.EmbeddingJob, error)
	CancelJob(ctx context.Context, processingID string, now time.Time) (*core.EmbeddingJob, error)
	DeleteJob(ctx context.Context, processingID string) error
	CountJobsByStatus(ctx context.Context) (core.QueueStats, error)
	ListRecentJobs(ctx context.Context, limit, offset int) ([]*core.EmbeddingJob, int, error)
	ListStaleProcessingJobIDs(ctx context.Context, cutoff time.Time) ([]string, error)

	// InsertProcessing claims a webhook key. It reports false when another
	// record already holds an active claim on the same key.
	InsertProcessing(ctx context.Context, rec *core.WebhookProcessing) (bool, error)
	GetProcessing(ctx context.Context, id string) (*core.WebhookProcessing, error)
	GetActiveProcessingByKey(ctx context.Context, key string) (*core.WebhookProcessing, error)
	// FinishProcessing applies the terminal transition; guarded on the
	// record still being in the processing state.
	FinishProcessing(ctx context.Context, id string, status core.ProcessingStatus, errMsg *string, now time.Time) error
	// FailStaleProcessing force-fails processing records started before cutoff.
	FailStaleProcessing(ctx context.Context, cutoff, now time.Time) (int64, error)
	// PurgeTerminalProcessing removes completed/failed records older than cutoff.
	PurgeTerminalProcessing(ctx context.Context, cutoff time.Time) (int64, error)
}

type postgresStore struct {
	db *sqlx.DB
}

// NewStore creates a Postgres-backed Store.
func NewStore(db *sqlx.DB) Store {
	return &postgresStore{db: db}
}

const jobColumns = `id, processing_id, repository_url, project_id, status, priority,
	attempts, max_attempts, last_error, created_at, updated_at, started_at, completed_at, scheduled_for`

func (s *postgresStore) CreateJob(ctx context.Context, job *core.EmbeddingJob) error {
	query := `
		INSERT INTO embedding_jobs (` + jobColumns + `)
		VALUES (:id, :processing_id, :repository_url, :project_id, :status, :priority,
			:attempts, :max_attempts, :last_error, :created_at, :updated_at, :started_at, :completed_at, :scheduled_for)`
	_, err := s.db.NamedExecContext(ctx, query, job)
	if err != nil {
		return fmt.Errorf("insert embedding job: %w", err)
	}
	return nil
}

func (s *postgresStore) GetJob(ctx context.Context, id string) (*core.EmbeddingJob, error) {
	return s.getJobWhere(ctx, "id = $1", id)
}

func (s *postgresStore) GetJobByProcessingID(ctx context.Context, processingID string) (*core.EmbeddingJob, error) {
	return s.getJobWhere(ctx, "processing_id = $1", processingID)
}

func (s *postgresStore) getJobWhere(ctx context.Context, cond string, arg any) (*core.EmbeddingJob, error) {
	var job core.EmbeddingJob
	query := `SELECT ` + jobColumns + ` FROM embedding_jobs WHERE ` + cond
	if err := s.db.GetContext(ctx, &job, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select embedding job: %w", err)
	}
	return &job, nil
}

// ClaimNextJob is a single round-trip: the CTE locks one eligible row with
// SKIP LOCKED so concurrent replicas each get a distinct job, and the UPDATE
// transitions it before anyone else can see it.
func (s *postgresStore) ClaimNextJob(ctx context.Context, now time.Time) (*core.EmbeddingJob, error) {
	query := `
		WITH next AS (
			SELECT id FROM embedding_jobs
			WHERE status IN ('pending', 'retrying')
			  AND (scheduled_for IS NULL OR scheduled_for <= $1)
			ORDER BY priority DESC, created_at ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		UPDATE embedding_jobs j
		SET status = 'processing', started_at = $1, updated_at = $1
		FROM next
		WHERE j.id = next.id
		RETURNING j.id, j.processing_id, j.repository_url, j.project_id, j.status, j.priority,
			j.attempts, j.max_attempts, j.last_error, j.created_at, j.updated_at,
			j.started_at, j.completed_at, j.scheduled_for`

	var job core.EmbeddingJob
	if err := s.db.QueryRowxContext(ctx, query, now).StructScan(&job); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("claim next job: %w", err)
	}
	return &job, nil
}

func (s *postgresStore) CompleteJob(ctx context.Context, id string, now time.Time) error {
	query := `
		UPDATE embedding_jobs
		SET status = 'completed', completed_at = $2, updated_at = $2, last_error = NULL
		WHERE id = $1 AND status = 'processing'`
	return s.guardedJobUpdate(ctx, query, "id", id, now)
}

func (s *postgresStore) FailJobForRetry(ctx context.Context, id, errMsg string, retryAt, now time.Time) error {
	query := `
		UPDATE embedding_jobs
		SET status = 'retrying', attempts = LEAST(attempts + 1, max_attempts),
			last_error = $3, scheduled_for = $4, updated_at = $2
		WHERE id = $1 AND status = 'processing'`
	return s.guardedJobUpdateArgs(ctx, query, "id", id, now, errMsg, retryAt)
}

func (s *postgresStore) FailJobTerminal(ctx context.Context, id, errMsg string, now time.Time) error {
	query := `
		UPDATE embedding_jobs
		SET status = 'failed', attempts = LEAST(attempts + 1, max_attempts),
			last_error = $3, completed_at = $2, updated_at = $2
		WHERE id = $1 AND status = 'processing'`
	return s.guardedJobUpdateArgs(ctx, query, "id", id, now, errMsg)
}

func (s *postgresStore) RetryJob(ctx context.Context, processingID string, now time.Time) (*core.EmbeddingJob, error) {
	query := `
		UPDATE embedding_jobs
		SET status = 'pending', last_error = NULL, scheduled_for = NULL,
			completed_at = NULL, updated_at = $2
		WHERE processing_id = $1 AND status = 'failed'
		RETURNING ` + jobColumns

	var job core.EmbeddingJob
	err := s.db.QueryRowxContext(ctx, query, processingID, now).StructScan(&job)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, s.jobUpdateError(ctx, "processing_id", processingID)
		}
		return nil, fmt.Errorf("retry job: %w", err)
	}
	return &job, nil
}

func (s *postgresStore) CancelJob(ctx context.Context, processingID string, now time.Time) (*core.EmbeddingJob, error) {
	query := `
		UPDATE embedding_jobs
		SET status = 'cancelled', completed_at = $2, updated_at = $2
		WHERE processing_id = $1 AND status IN ('pending', 'retrying', 'processing')
		RETURNING ` + jobColumns

	var job core.EmbeddingJob
	err := s.db.QueryRowxContext(ctx, query, processingID, now).StructScan(&job)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, s.jobUpdateError(ctx, "processing_id", processingID)
		}
		return nil, fmt.Errorf("cancel job: %w", err)
	}
	return &job, nil
}

func (s *postgresStore) DeleteJob(ctx context.Context, processingID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM embedding_jobs WHERE processing_id = $1`, processingID)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *postgresStore) CountJobsByStatus(ctx context.Context) (core.QueueStats, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM embedding_jobs GROUP BY status`)
	if err != nil {
		return core.QueueStats{}, fmt.Errorf("count jobs: %w", err)
	}
	defer rows.Close()

	var stats core.QueueStats
	for rows.Next() {
		var status core.JobStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return core.QueueStats{}, fmt.Errorf("scan job count: %w", err)
		}
		switch status {
		case core.JobStatusPending:
			stats.Pending = count
		case core.JobStatusProcessing:
			stats.Processing = count
		case core.JobStatusRetrying:
			stats.Retrying = count
		case core.JobStatusCompleted:
			stats.Completed = count
		case core.JobStatusFailed:
			stats.Failed = count
		case core.JobStatusCancelled:
			stats.Cancelled = count
		}
		stats.Total += count
	}
	if err := rows.Err(); err != nil {
		return core.QueueStats{}, fmt.Errorf("iterate job counts: %w", err)
	}
	return stats, nil
}

func (s *postgresStore) ListRecentJobs(ctx context.Context, limit, offset int) ([]*core.EmbeddingJob, int, error) {
	var total int
	if err := s.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM embedding_jobs`); err != nil {
		return nil, 0, fmt.Errorf("count jobs: %w", err)
	}

	jobs := []*core.EmbeddingJob{}
	query := `SELECT ` + jobColumns + ` FROM embedding_jobs ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	if err := s.db.SelectContext(ctx, &jobs, query, limit, offset); err != nil {
		return nil, 0, fmt.Errorf("list recent jobs: %w", err)
	}
	return jobs, total, nil
}

func (s *postgresStore) ListStaleProcessingJobIDs(ctx context.Context, cutoff time.Time) ([]string, error) {
	ids := []string{}
	query := `SELECT id FROM embedding_jobs WHERE status = 'processing' AND started_at < $1`
	if err := s.db.SelectContext(ctx, &ids, query, cutoff); err != nil {
		return nil, fmt.Errorf("list stale processing jobs: %w", err)
	}
	return ids, nil
}

// guardedJobUpdate runs a conditional UPDATE and maps a zero-row result to
// ErrNotFound or ErrInvalidState depending on whether the row exists.
func (s *postgresStore) guardedJobUpdate(ctx context.Context, query, keyCol, key string, now time.Time) error {
	return s.guardedJobUpdateArgs(ctx, query, keyCol, key, now)
}

func (s *postgresStore) guardedJobUpdateArgs(ctx context.Context, query, keyCol, key string, now time.Time, extra ...any) error {
	args := append([]any{key, now}, extra...)
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update embedding job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return s.jobUpdateError(ctx, keyCol, key)
	}
	return nil
}

func (s *postgresStore) jobUpdateError(ctx context.Context, keyCol, key string) error {
	var exists bool
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM embedding_jobs WHERE %s = $1)`, keyCol)
	if err := s.db.GetContext(ctx, &exists, query, key); err != nil {
		return fmt.Errorf("check embedding job existence: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrInvalidState
}

const processingColumns = `id, webhook_key, event_type, project_id, status, server_id,
	started_at, completed_at, last_error`

// InsertProcessing is a single round-trip claim. The conflict target is the
// partial unique index on (webhook_key) WHERE status = 'processing', so a
// terminal record for the same key never blocks a fresh claim.
func (s *postgresStore) InsertProcessing(ctx context.Context, rec *core.WebhookProcessing) (bool, error) {
	query := `
		INSERT INTO webhook_processing (` + processingColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (webhook_key) WHERE status = 'processing' DO NOTHING`

	res, err := s.db.ExecContext(ctx, query,
		rec.ID, rec.WebhookKey, rec.EventType, rec.ProjectID, rec.Status,
		rec.ServerID, rec.StartedAt, rec.CompletedAt, rec.LastError)
	if err != nil {
		return false, fmt.Errorf("insert webhook processing: %w", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

func (s *postgresStore) GetProcessing(ctx context.Context, id string) (*core.WebhookProcessing, error) {
	var rec core.WebhookProcessing
	query := `SELECT ` + processingColumns + ` FROM webhook_processing WHERE id = $1`
	if err := s.db.GetContext(ctx, &rec, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select webhook processing: %w", err)
	}
	return &rec, nil
}

func (s *postgresStore) GetActiveProcessingByKey(ctx context.Context, key string) (*core.WebhookProcessing, error) {
	var rec core.WebhookProcessing
	query := `SELECT ` + processingColumns + ` FROM webhook_processing
		WHERE webhook_key = $1 AND status = 'processing'`
	if err := s.db.GetContext(ctx, &rec, query, key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select active webhook processing: %w", err)
	}
	return &rec, nil
}

func (s *postgresStore) FinishProcessing(ctx context.Context, id string, status core.ProcessingStatus, errMsg *string, now time.Time) error {
	query := `
		UPDATE webhook_processing
		SET status = $2, completed_at = $3, last_error = $4
		WHERE id = $1 AND status = 'processing'`
	res, err := s.db.ExecContext(ctx, query, id, status, now, errMsg)
	if err != nil {
		return fmt.Errorf("finish webhook processing: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var exists bool
		if err := s.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM webhook_processing WHERE id = $1)`, id); err != nil {
			return fmt.Errorf("check webhook processing existence: %w", err)
		}
		if !exists {
			return ErrNotFound
		}
		return ErrInvalidState
	}
	return nil
}

func (s *postgresStore) FailStaleProcessing(ctx context.Context, cutoff, now time.Time) (int64, error) {
	query := `
		UPDATE webhook_processing
		SET status = 'failed', completed_at = $2, last_error = 'processing exceeded stale threshold'
		WHERE status = 'processing' AND started_at < $1`
	res, err := s.db.ExecContext(ctx, query, cutoff, now)
	if err != nil {
		return 0, fmt.Errorf("fail stale webhook processing: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (s *postgresStore) PurgeTerminalProcessing(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		DELETE FROM webhook_processing
		WHERE status IN ('completed', 'failed') AND started_at < $1`
	res, err := s.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge webhook processing: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
