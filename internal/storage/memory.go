package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sevigo/repo-embedder/internal/core"
)

// memoryStore is a mutex-guarded Store used by unit tests and by local
// development without Postgres. The mutex gives it the same atomicity
// guarantees the Postgres store gets from SKIP LOCKED and the partial
// unique index, within a single process.
type memoryStore struct {
	mu         sync.Mutex
	jobs       map[string]*core.EmbeddingJob
	processing map[string]*core.WebhookProcessing
}

// NewMemoryStore creates an empty in-memory Store.
func NewMemoryStore() Store {
	return &memoryStore{
		jobs:       make(map[string]*core.EmbeddingJob),
		processing: make(map[string]*core.WebhookProcessing),
	}
}

func (s *memoryStore) CreateJob(_ context.Context, job *core.EmbeddingJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *job
	s.jobs[job.ID] = &cp
	return nil
}

func (s *memoryStore) GetJob(_ context.Context, id string) (*core.EmbeddingJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *job
	return &cp, nil
}

func (s *memoryStore) GetJobByProcessingID(_ context.Context, processingID string) (*core.EmbeddingJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job := s.findByProcessingID(processingID)
	if job == nil {
		return nil, ErrNotFound
	}
	cp := *job
	return &cp, nil
}

func (s *memoryStore) findByProcessingID(processingID string) *core.EmbeddingJob {
	for _, job := range s.jobs {
		if job.ProcessingID == processingID {
			return job
		}
	}
	return nil
}

func (s *memoryStore) ClaimNextJob(_ context.Context, now time.Time) (*core.EmbeddingJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var next *core.EmbeddingJob
	for _, job := range s.jobs {
		if job.Status != core.JobStatusPending && job.Status != core.JobStatusRetrying {
			continue
		}
		if job.ScheduledFor != nil && job.ScheduledFor.After(now) {
			continue
		}
		if next == nil ||
			job.Priority > next.Priority ||
			(job.Priority == next.Priority && job.CreatedAt.Before(next.CreatedAt)) {
			next = job
		}
	}
	if next == nil {
		return nil, ErrNotFound
	}

	started := now
	next.Status = core.JobStatusProcessing
	next.StartedAt = &started
	next.UpdatedAt = now
	cp := *next
	return &cp, nil
}

func (s *memoryStore) CompleteJob(_ context.Context, id string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if job.Status != core.JobStatusProcessing {
		return ErrInvalidState
	}
	done := now
	job.Status = core.JobStatusCompleted
	job.CompletedAt = &done
	job.UpdatedAt = now
	job.LastError = nil
	return nil
}

func (s *memoryStore) FailJobForRetry(_ context.Context, id, errMsg string, retryAt, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if job.Status != core.JobStatusProcessing {
		return ErrInvalidState
	}
	job.Status = core.JobStatusRetrying
	if job.Attempts < job.MaxAttempts {
		job.Attempts++
	}
	msg := errMsg
	at := retryAt
	job.LastError = &msg
	job.ScheduledFor = &at
	job.UpdatedAt = now
	return nil
}

func (s *memoryStore) FailJobTerminal(_ context.Context, id, errMsg string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if job.Status != core.JobStatusProcessing {
		return ErrInvalidState
	}
	job.Status = core.JobStatusFailed
	if job.Attempts < job.MaxAttempts {
		job.Attempts++
	}
	msg := errMsg
	done := now
	job.LastError = &msg
	job.CompletedAt = &done
	job.UpdatedAt = now
	return nil
}

func (s *memoryStore) RetryJob(_ context.Context, processingID string, now time.Time) (*core.EmbeddingJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job := s.findByProcessingID(processingID)
	if job == nil {
		return nil, ErrNotFound
	}
	if job.Status != core.JobStatusFailed {
		return nil, ErrInvalidState
	}
	job.Status = core.JobStatusPending
	job.LastError = nil
	job.ScheduledFor = nil
	job.CompletedAt = nil
	job.UpdatedAt = now
	cp := *job
	return &cp, nil
}

func (s *memoryStore) CancelJob(_ context.Context, processingID string, now time.Time) (*core.EmbeddingJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job := s.findByProcessingID(processingID)
	if job == nil {
		return nil, ErrNotFound
	}
	switch job.Status {
	case core.JobStatusPending, core.JobStatusRetrying, core.JobStatusProcessing:
	default:
		return nil, ErrInvalidState
	}
	done := now
	job.Status = core.JobStatusCancelled
	job.CompletedAt = &done
	job.UpdatedAt = now
	cp := *job
	return &cp, nil
}

func (s *memoryStore) DeleteJob(_ context.Context, processingID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job := s.findByProcessingID(processingID)
	if job == nil {
		return ErrNotFound
	}
	delete(s.jobs, job.ID)
	return nil
}

func (s *memoryStore) CountJobsByStatus(_ context.Context) (core.QueueStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var stats core.QueueStats
	for _, job := range s.jobs {
		switch job.Status {
		case core.JobStatusPending:
			stats.Pending++
		case core.JobStatusProcessing:
			stats.Processing++
		case core.JobStatusRetrying:
			stats.Retrying++
		case core.JobStatusCompleted:
			stats.Completed++
		case core.JobStatusFailed:
			stats.Failed++
		case core.JobStatusCancelled:
			stats.Cancelled++
		}
		stats.Total++
	}
	return stats, nil
}

func (s *memoryStore) ListRecentJobs(_ context.Context, limit, offset int) ([]*core.EmbeddingJob, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := make([]*core.EmbeddingJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		cp := *job
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	total := len(all)
	if offset >= total {
		return []*core.EmbeddingJob{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (s *memoryStore) ListStaleProcessingJobIDs(_ context.Context, cutoff time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := []string{}
	for _, job := range s.jobs {
		if job.Status == core.JobStatusProcessing && job.StartedAt != nil && job.StartedAt.Before(cutoff) {
			ids = append(ids, job.ID)
		}
	}
	return ids, nil
}

func (s *memoryStore) InsertProcessing(_ context.Context, rec *core.WebhookProcessing) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.processing {
		if existing.WebhookKey == rec.WebhookKey && existing.Status == core.ProcessingStatusProcessing {
			return false, nil
		}
	}
	cp := *rec
	s.processing[rec.ID] = &cp
	return true, nil
}

func (s *memoryStore) GetProcessing(_ context.Context, id string) (*core.WebhookProcessing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.processing[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *memoryStore) GetActiveProcessingByKey(_ context.Context, key string) (*core.WebhookProcessing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.processing {
		if rec.WebhookKey == key && rec.Status == core.ProcessingStatusProcessing {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memoryStore) FinishProcessing(_ context.Context, id string, status core.ProcessingStatus, errMsg *string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.processing[id]
	if !ok {
		return ErrNotFound
	}
	if rec.Status != core.ProcessingStatusProcessing {
		return ErrInvalidState
	}
	done := now
	rec.Status = status
	rec.CompletedAt = &done
	rec.LastError = errMsg
	return nil
}

func (s *memoryStore) FailStaleProcessing(_ context.Context, cutoff, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	msg := "processing exceeded stale threshold"
	for _, rec := range s.processing {
		if rec.Status == core.ProcessingStatusProcessing && rec.StartedAt.Before(cutoff) {
			done := now
			rec.Status = core.ProcessingStatusFailed
			rec.CompletedAt = &done
			rec.LastError = &msg
			n++
		}
	}
	return n, nil
}

func (s *memoryStore) PurgeTerminalProcessing(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, rec := range s.processing {
		if rec.Status != core.ProcessingStatusProcessing && rec.StartedAt.Before(cutoff) {
			delete(s.processing, id)
			n++
		}
	}
	return n, nil
}
