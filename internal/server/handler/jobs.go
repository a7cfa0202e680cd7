package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sevigo/repo-embedder/internal/core"
	"github.com/sevigo/repo-embedder/internal/queue"
	"github.com/sevigo/repo-embedder/internal/storage"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// JobsHandler serves the operator-facing job status API. It contains no
// logic beyond input validation and response shaping; all side effects live
// in the queue.
type JobsHandler struct {
	queue  *queue.Queue
	logger *slog.Logger
}

// NewJobsHandler creates the job status API handler.
func NewJobsHandler(q *queue.Queue, logger *slog.Logger) *JobsHandler {
	return &JobsHandler{queue: q, logger: logger}
}

type addRepositoryRequest struct {
	ProjectID     string `json:"projectId"`
	RepositoryURL string `json:"repositoryUrl"`
}

// AddRepository enqueues a manual embedding job. Manual jobs are never
// deferred to the off-peak window.
func (h *JobsHandler) AddRepository(w http.ResponseWriter, r *http.Request) {
	var req addRepositoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.ProjectID == "" || req.RepositoryURL == "" {
		respondError(w, http.StatusBadRequest, "projectId and repositoryUrl are required")
		return
	}

	job, err := h.queue.Add(r.Context(), queue.AddParams{
		ProjectID:     req.ProjectID,
		RepositoryURL: req.RepositoryURL,
		Priority:      core.ParsePriority(r.URL.Query().Get("priority")),
	})
	if err != nil {
		h.logger.Error("failed to enqueue repository", "project_id", req.ProjectID, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to enqueue job")
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]any{
		"message":      "embedding job accepted",
		"processingId": job.ProcessingID,
		"status":       job.Status,
	})
}

// GetStatus returns the job identified by its processing id.
func (h *JobsHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	processingID := chi.URLParam(r, "processingId")

	job, err := h.queue.GetByProcessingID(r.Context(), processingID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respondError(w, http.StatusNotFound, "unknown processingId")
			return
		}
		h.logger.Error("failed to load job", "processing_id", processingID, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to load job")
		return
	}

	respondJSON(w, http.StatusOK, sanitizeJob(job))
}

// QueueStatus returns aggregate stats plus a page of recent jobs.
func (h *JobsHandler) QueueStatus(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	stats, err := h.queue.Stats(r.Context())
	if err != nil {
		h.logger.Error("failed to load queue stats", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to load queue stats")
		return
	}

	jobs, total, err := h.queue.Recent(r.Context(), limit, (page-1)*limit)
	if err != nil {
		h.logger.Error("failed to list recent jobs", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}

	shaped := make([]*core.EmbeddingJob, len(jobs))
	for i, job := range jobs {
		shaped[i] = sanitizeJob(job)
	}

	totalPages := (total + limit - 1) / limit
	respondJSON(w, http.StatusOK, map[string]any{
		"stats": stats,
		"jobs":  shaped,
		"pagination": map[string]any{
			"page":       page,
			"limit":      limit,
			"total":      total,
			"totalPages": totalPages,
		},
	})
}

// Retry resets a failed job to pending.
func (h *JobsHandler) Retry(w http.ResponseWriter, r *http.Request) {
	processingID := chi.URLParam(r, "processingId")

	job, err := h.queue.Retry(r.Context(), processingID)
	if err != nil {
		h.respondTransitionError(w, processingID, err, "retry")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "job queued for retry",
		"job":     sanitizeJob(job),
	})
}

// Cancel stops a pending, retrying, or processing job.
func (h *JobsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	processingID := chi.URLParam(r, "processingId")

	job, err := h.queue.Cancel(r.Context(), processingID)
	if err != nil {
		h.respondTransitionError(w, processingID, err, "cancel")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "job cancelled",
		"job":     sanitizeJob(job),
	})
}

// Delete removes a job record. ?force=true overrides the guard against
// deleting a job a worker currently holds.
func (h *JobsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	processingID := chi.URLParam(r, "processingId")
	force := r.URL.Query().Get("force") == "true"

	if err := h.queue.Delete(r.Context(), processingID, force); err != nil {
		h.respondTransitionError(w, processingID, err, "delete")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "job deleted",
	})
}

func (h *JobsHandler) respondTransitionError(w http.ResponseWriter, processingID string, err error, op string) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		respondError(w, http.StatusNotFound, "unknown processingId")
	case errors.Is(err, queue.ErrNotRetryable),
		errors.Is(err, queue.ErrNotCancellable),
		errors.Is(err, queue.ErrDeleteProcessing):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("job transition failed", "op", op, "processing_id", processingID, "error", err)
		respondError(w, http.StatusInternalServerError, "operation failed")
	}
}
