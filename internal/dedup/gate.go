// Package dedup guarantees at-most-one concurrent processing pass per
// logical webhook event across all server replicas. The shared store is the
// only synchronization primitive: a partial unique index on the webhook key
// makes the claim race-free without any application-level locking.
package dedup

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

// Gate claims exclusive ownership of webhook events and records their
// processing lifecycle.
type Gate struct {
	store storage.Store
	// serverID names the replica that claimed a record; diagnostic only.
	serverID string
	logger   *slog.Logger
	now      func() time.Time
}

// NewGate creates a Gate for this replica.
func NewGate(store storage.Store, serverID string, logger *slog.Logger) *Gate {
	return &Gate{
		store:    store,
		serverID: serverID,
		logger:   logger,
		now:      time.Now,
	}
}

// StartResult is the outcome of a claim attempt. A duplicate is success from
// the caller's point of view: the original owner finishes the work.
type StartResult struct {
	Success      bool
	IsDuplicate  bool
	ProcessingID string
}

// StartProcessing attempts to claim the event. The insert and the uniqueness
// check are one round-trip; when the key is already claimed the existing
// owner's processing id is returned so the caller can correlate.
func (g *Gate) StartProcessing(ctx context.Context, event *core.RepoEvent) (StartResult, error) {
	key := event.WebhookKey()
	rec := &core.WebhookProcessing{
		ID:         uuid.NewString(),
		WebhookKey: key,
		EventType:  event.EventType(),
		ProjectID:  event.ProjectID,
		Status:     core.ProcessingStatusProcessing,
		ServerID:   g.serverID,
		StartedAt:  g.now().UTC(),
	}

	inserted, err := g.store.InsertProcessing(ctx, rec)
	if err != nil {
		return StartResult{}, fmt.Errorf("claim webhook key: %w", err)
	}
	if inserted {
		g.logger.Info("webhook claim won",
			"webhook_key", key,
			"processing_id", rec.ID,
			"server_id", g.serverID,
		)
		return StartResult{Success: true, ProcessingID: rec.ID}, nil
	}

	existing, err := g.store.GetActiveProcessingByKey(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// The active claim finished between our insert and this lookup.
			// One retry covers it; beyond that something is wrong.
			inserted, err = g.store.InsertProcessing(ctx, rec)
			if err != nil {
				return StartResult{}, fmt.Errorf("reclaim webhook key: %w", err)
			}
			if inserted {
				return StartResult{Success: true, ProcessingID: rec.ID}, nil
			}
			return StartResult{}, fmt.Errorf("webhook key %q contended beyond retry", key)
		}
		return StartResult{}, fmt.Errorf("look up active webhook claim: %w", err)
	}

	g.logger.Info("duplicate webhook suppressed",
		"webhook_key", key,
		"owner_processing_id", existing.ID,
		"owner_server_id", existing.ServerID,
	)
	return StartResult{Success: true, IsDuplicate: true, ProcessingID: existing.ID}, nil
}

// CompleteProcessing marks the record as completed. Already-terminal records
// produce a warning, not an error.
func (g *Gate) CompleteProcessing(ctx context.Context, processingID string) error {
	return g.finish(ctx, processingID, core.ProcessingStatusCompleted, nil)
}

// FailProcessing marks the record as failed with the given message.
func (g *Gate) FailProcessing(ctx context.Context, processingID, errMsg string) error {
	return g.finish(ctx, processingID, core.ProcessingStatusFailed, &errMsg)
}

func (g *Gate) finish(ctx context.Context, processingID string, status core.ProcessingStatus, errMsg *string) error {
	err := g.store.FinishProcessing(ctx, processingID, status, errMsg, g.now().UTC())
	if errors.Is(err, storage.ErrInvalidState) {
		g.logger.Warn("webhook processing record already terminal",
			"processing_id", processingID, "requested_status", status)
		return nil
	}
	return err
}

// CleanupStale force-fails processing records started before cutoff,
// recovering claims held by crashed replicas. Called only from the
// background reaper, never inline with request handling.
func (g *Gate) CleanupStale(ctx context.Context, cutoff time.Time) (int64, error) {
	n, err := g.store.FailStaleProcessing(ctx, cutoff, g.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("fail stale webhook records: %w", err)
	}
	if n > 0 {
		g.logger.Warn("reaped stale webhook processing records", "count", n, "cutoff", cutoff)
	}
	return n, nil
}

// PurgeTerminal removes completed and failed records older than cutoff.
func (g *Gate) PurgeTerminal(ctx context.Context, cutoff time.Time) (int64, error) {
	return g.store.PurgeTerminalProcessing(ctx, cutoff)
}
