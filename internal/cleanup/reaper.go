// Package cleanup runs the periodic background sweeps that recover from
// crashed owners: stale webhook claims, stale processing jobs, and old
// terminal webhook records.
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/sevigo/repo-embedder/internal/dedup"
	"github.com/sevigo/repo-embedder/internal/queue"
)

// Config holds the reaper's age thresholds.
type Config struct {
	// Interval between sweeps.
	Interval time.Duration
	// StaleJobAge after which a processing job is presumed orphaned.
	StaleJobAge time.Duration
	// StaleWebhookAge after which a processing webhook claim is presumed
	// orphaned.
	StaleWebhookAge time.Duration
	// WebhookRetention is how long terminal webhook records are kept.
	WebhookRetention time.Duration
}

// Reaper owns the sweep loop. Sweep errors are logged and never stop
// subsequent sweeps.
type Reaper struct {
	cfg    Config
	gate   *dedup.Gate
	queue  *queue.Queue
	logger *slog.Logger
}

// NewReaper creates a Reaper with sane defaults for unset thresholds.
func NewReaper(cfg Config, gate *dedup.Gate, q *queue.Queue, logger *slog.Logger) *Reaper {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.StaleJobAge <= 0 {
		cfg.StaleJobAge = 30 * time.Minute
	}
	if cfg.StaleWebhookAge <= 0 {
		cfg.StaleWebhookAge = 15 * time.Minute
	}
	if cfg.WebhookRetention <= 0 {
		cfg.WebhookRetention = 7 * 24 * time.Hour
	}
	return &Reaper{cfg: cfg, gate: gate, queue: q, logger: logger}
}

// Run blocks until ctx is cancelled, sweeping once per interval.
func (r *Reaper) Run(ctx context.Context) error {
	r.logger.Info("starting cleanup reaper",
		"interval", r.cfg.Interval,
		"stale_job_age", r.cfg.StaleJobAge,
		"stale_webhook_age", r.cfg.StaleWebhookAge,
	)

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("shutting down cleanup reaper")
			return nil
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep runs all cleanup passes once.
func (r *Reaper) Sweep(ctx context.Context) {
	now := time.Now().UTC()

	if n, err := r.gate.CleanupStale(ctx, now.Add(-r.cfg.StaleWebhookAge)); err != nil {
		r.logger.Error("stale webhook sweep failed", "error", err)
	} else if n > 0 {
		r.logger.Info("stale webhook records reaped", "count", n)
	}

	if n, err := r.queue.FailStale(ctx, now.Add(-r.cfg.StaleJobAge)); err != nil {
		r.logger.Error("stale job sweep failed", "error", err)
	} else if n > 0 {
		r.logger.Info("stale processing jobs reaped", "count", n)
	}

	if n, err := r.gate.PurgeTerminal(ctx, now.Add(-r.cfg.WebhookRetention)); err != nil {
		r.logger.Error("webhook retention sweep failed", "error", err)
	} else if n > 0 {
		r.logger.Info("old webhook records purged", "count", n)
	}
}
