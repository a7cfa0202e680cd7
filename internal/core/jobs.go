// Package core defines the domain types and interfaces shared across the
// application: embedding jobs, webhook processing records, and the contracts
// between the queue, the deduplication gate, and their collaborators.
package core

import (
	"context"
	"time"
)

// JobStatus is the lifecycle state of an embedding job.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusRetrying   JobStatus = "retrying"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// Terminal reports whether a job in this status accepts no further
// transitions, apart from an explicit operator retry on a failed job.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// Priority orders jobs in the queue; higher values are claimed first.
type Priority int

const (
	PriorityLow    Priority = 0
	PriorityNormal Priority = 5
	PriorityHigh   Priority = 10
)

// ParsePriority maps the external priority names to their queue values.
// Unknown or empty values fall back to normal.
func ParsePriority(s string) Priority {
	switch s {
	case "high":
		return PriorityHigh
	case "low":
		return PriorityLow
	default:
		return PriorityNormal
	}
}

// EmbeddingJob is one unit of embedding work for a repository snapshot.
type EmbeddingJob struct {
	ID            string     `db:"id" json:"id"`
	ProcessingID  string     `db:"processing_id" json:"processingId"`
	RepositoryURL string     `db:"repository_url" json:"repositoryUrl"`
	ProjectID     string     `db:"project_id" json:"projectId"`
	Status        JobStatus  `db:"status" json:"status"`
	Priority      Priority   `db:"priority" json:"priority"`
	Attempts      int        `db:"attempts" json:"attempts"`
	MaxAttempts   int        `db:"max_attempts" json:"maxAttempts"`
	LastError     *string    `db:"last_error" json:"error,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updatedAt"`
	StartedAt     *time.Time `db:"started_at" json:"startedAt,omitempty"`
	CompletedAt   *time.Time `db:"completed_at" json:"completedAt,omitempty"`
	ScheduledFor  *time.Time `db:"scheduled_for" json:"scheduledFor,omitempty"`
}

// ProcessingStatus is the lifecycle state of a webhook processing record.
type ProcessingStatus string

const (
	ProcessingStatusProcessing ProcessingStatus = "processing"
	ProcessingStatusCompleted  ProcessingStatus = "completed"
	ProcessingStatusFailed     ProcessingStatus = "failed"
)

// WebhookProcessing records the claim on one logical webhook event. At most
// one record per webhook key may be in the processing state at any instant;
// the store enforces this with a partial unique index.
type WebhookProcessing struct {
	ID          string           `db:"id" json:"id"`
	WebhookKey  string           `db:"webhook_key" json:"webhookKey"`
	EventType   string           `db:"event_type" json:"eventType"`
	ProjectID   string           `db:"project_id" json:"projectId"`
	Status      ProcessingStatus `db:"status" json:"status"`
	ServerID    string           `db:"server_id" json:"serverId"`
	StartedAt   time.Time        `db:"started_at" json:"startedAt"`
	CompletedAt *time.Time       `db:"completed_at" json:"completedAt,omitempty"`
	LastError   *string          `db:"last_error" json:"error,omitempty"`
}

// QueueStats aggregates job counts by status.
type QueueStats struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Retrying   int `json:"retrying"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Cancelled  int `json:"cancelled"`
	Total      int `json:"total"`
}

// Embedder generates embeddings for the repository snapshot a job points at.
// The actual work (cloning, chunking, calling the model endpoint, persisting
// vectors) lives behind this interface; the queue never sees it.
type Embedder interface {
	EmbedRepository(ctx context.Context, job *EmbeddingJob) error
}
