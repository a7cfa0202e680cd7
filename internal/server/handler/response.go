// Package handler provides the HTTP handlers for the job status API and the
// webhook ingress.
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/sevigo/repo-embedder/internal/core"
)

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]any{"success": false, "message": message})
}

// sanitizeJob hides the last error for jobs that are not in an error state;
// a stale message from a long-fixed attempt is noise once the job recovered.
func sanitizeJob(job *core.EmbeddingJob) *core.EmbeddingJob {
	if job.Status == core.JobStatusFailed || job.Status == core.JobStatusRetrying {
		return job
	}
	cp := *job
	cp.LastError = nil
	return &cp
}
