package handler

import (
	"bytes"
	"context"
	"crypto/subtle"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/go-github/v73/github"

	"github.com/sevigo/repo-embedder/internal/core"
	"github.com/sevigo/repo-embedder/internal/dedup"
	"github.com/sevigo/repo-embedder/internal/queue"
	"github.com/sevigo/repo-embedder/internal/schedule"
)

const maxWebhookBody = 5 << 20 // 5 MiB

// WebhookConfig carries the shared secrets for webhook validation. Empty
// values disable validation for the respective platform.
type WebhookConfig struct {
	GitHubSecret string
	GitLabToken  string
}

// WebhookHandler ingests webhooks from GitHub and GitLab. The HTTP response
// is committed right after the dedup decision; deriving jobs and finishing
// the processing record happen after the response, and their failures are
// recorded rather than surfaced to the platform.
type WebhookHandler struct {
	cfg     WebhookConfig
	gate    *dedup.Gate
	queue   *queue.Queue
	advisor *schedule.Advisor
	logger  *slog.Logger
}

// NewWebhookHandler creates the webhook ingress handler.
func NewWebhookHandler(cfg WebhookConfig, gate *dedup.Gate, q *queue.Queue, advisor *schedule.Advisor, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{cfg: cfg, gate: gate, queue: q, advisor: advisor, logger: logger}
}

// Handle processes one webhook delivery.
func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	event, ok := h.decodeRequest(w, r)
	if !ok {
		return
	}

	result, err := h.gate.StartProcessing(r.Context(), event)
	if err != nil {
		// The platform will redeliver; nothing useful to tell it now.
		h.logger.Error("webhook claim failed", "webhook_key", event.WebhookKey(), "error", err)
		respondJSON(w, http.StatusAccepted, map[string]any{"message": "webhook received"})
		return
	}

	if result.IsDuplicate {
		respondJSON(w, http.StatusAccepted, map[string]any{
			"message":      "duplicate webhook, already being processed",
			"processingId": result.ProcessingID,
		})
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]any{
		"message":      "webhook accepted",
		"processingId": result.ProcessingID,
	})

	go h.process(result.ProcessingID, event)
}

// decodeRequest validates and decodes the delivery. A false return means the
// response has already been written.
func (h *WebhookHandler) decodeRequest(w http.ResponseWriter, r *http.Request) (*core.RepoEvent, bool) {
	platform, eventType, deliveryID := detectPlatform(r)

	var payload []byte
	var err error
	switch platform {
	case core.PlatformGitHub:
		if h.cfg.GitHubSecret != "" {
			payload, err = github.ValidatePayload(r, []byte(h.cfg.GitHubSecret))
			if err != nil {
				h.logger.Error("invalid github webhook signature", "error", err)
				http.Error(w, "invalid signature", http.StatusUnauthorized)
				return nil, false
			}
		} else {
			payload, err = io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		}
	case core.PlatformGitLab:
		if h.cfg.GitLabToken != "" &&
			subtle.ConstantTimeCompare([]byte(r.Header.Get("X-Gitlab-Token")), []byte(h.cfg.GitLabToken)) != 1 {
			h.logger.Error("invalid gitlab webhook token")
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return nil, false
		}
		payload, err = io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	default:
		payload, err = io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	}
	if err != nil {
		h.logger.Error("could not read webhook body", "error", err)
		respondJSON(w, http.StatusAccepted, map[string]any{"message": "webhook ignored"})
		return nil, false
	}

	if platform == "" {
		platform, eventType = detectPlatformFromBody(payload)
	}

	var event *core.RepoEvent
	switch platform {
	case core.PlatformGitHub:
		event, err = core.DecodeGitHubEvent(eventType, payload, deliveryID)
	case core.PlatformGitLab:
		event, err = core.DecodeGitLabEvent(payload, deliveryID)
	default:
		h.logger.Warn("webhook platform not recognized")
		respondJSON(w, http.StatusAccepted, map[string]any{"message": "webhook ignored"})
		return nil, false
	}

	if err != nil {
		if errors.Is(err, core.ErrUnsupportedEvent) {
			h.logger.Debug("ignoring unhandled webhook event type", "platform", platform, "type", eventType)
		} else {
			h.logger.Warn("could not decode webhook", "platform", platform, "error", err)
		}
		respondJSON(w, http.StatusAccepted, map[string]any{"message": "event type not handled"})
		return nil, false
	}

	return event, true
}

// process derives the embedding job for a claimed event and closes out the
// processing record. Runs detached from the request; the 202 is long gone.
func (h *WebhookHandler) process(processingID string, event *core.RepoEvent) {
	ctx := context.Background()

	decision := h.advisor.Decide(true, false, time.Now().UTC())
	var scheduledFor *time.Time
	if decision.ShouldSchedule {
		at := decision.ScheduledAt
		scheduledFor = &at
		h.logger.Info("deferring automatic embedding job",
			"webhook_key", event.WebhookKey(),
			"scheduled_for", at,
			"reason", decision.Reason,
		)
	}

	_, err := h.queue.Add(ctx, queue.AddParams{
		ProjectID:     event.ProjectID,
		RepositoryURL: event.RepositoryURL,
		Priority:      core.PriorityNormal,
		ScheduledFor:  scheduledFor,
	})
	if err != nil {
		h.logger.Error("failed to derive embedding job",
			"processing_id", processingID, "error", err)
		if ferr := h.gate.FailProcessing(ctx, processingID, err.Error()); ferr != nil {
			h.logger.Error("failed to record webhook failure", "processing_id", processingID, "error", ferr)
		}
		return
	}

	if err := h.gate.CompleteProcessing(ctx, processingID); err != nil {
		h.logger.Error("failed to record webhook completion", "processing_id", processingID, "error", err)
	}
}

// detectPlatform identifies the sender from request headers.
func detectPlatform(r *http.Request) (platform core.Platform, eventType, deliveryID string) {
	if t := r.Header.Get("X-GitHub-Event"); t != "" {
		return core.PlatformGitHub, t, r.Header.Get("X-GitHub-Delivery")
	}
	if t := r.Header.Get("X-Gitlab-Event"); t != "" {
		return core.PlatformGitLab, t, r.Header.Get("X-Gitlab-Event-UUID")
	}
	return "", "", ""
}

// detectPlatformFromBody falls back to body shape when no platform header is
// present: GitLab bodies carry object_kind, GitHub bodies a repository with
// an html_url.
func detectPlatformFromBody(payload []byte) (core.Platform, string) {
	if bytes.Contains(payload, []byte(`"object_kind"`)) {
		return core.PlatformGitLab, ""
	}
	if bytes.Contains(payload, []byte(`"html_url"`)) {
		return core.PlatformGitHub, "push"
	}
	return "", ""
}
