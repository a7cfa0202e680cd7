package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sevigo/repo-embedder/internal/core"
	"github.com/sevigo/repo-embedder/internal/queue"
	"github.com/sevigo/repo-embedder/internal/storage"
)

func newJobsRouter(t *testing.T) (*chi.Mux, *queue.Queue) {
	t.Helper()
	q := queue.New(storage.NewMemoryStore(), slog.New(slog.NewTextHandler(io.Discard, nil)), 3)
	h := NewJobsHandler(q, slog.New(slog.NewTextHandler(io.Discard, nil)))

	r := chi.NewRouter()
	r.Post("/repositories", h.AddRepository)
	r.Get("/repositories/status/{processingId}", h.GetStatus)
	r.Post("/repositories/{processingId}/retry", h.Retry)
	r.Post("/repositories/{processingId}/cancel", h.Cancel)
	r.Delete("/repositories/{processingId}", h.Delete)
	r.Get("/queue/status", h.QueueStatus)
	return r, q
}

func doJSON(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(buf)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestJobsHandler_AddRepository(t *testing.T) {
	r, q := newJobsRouter(t)

	rec := doJSON(t, r, http.MethodPost, "/repositories?priority=high", map[string]string{
		"projectId":     "42",
		"repositoryUrl": "https://example.com/repo.git",
	})
	require.Equal(t, http.StatusAccepted, rec.Code)

	body := decodeBody(t, rec)
	processingID, _ := body["processingId"].(string)
	require.NotEmpty(t, processingID)
	assert.Equal(t, "pending", body["status"])

	job, err := q.GetByProcessingID(context.Background(), processingID)
	require.NoError(t, err)
	assert.Equal(t, core.PriorityHigh, job.Priority)
	assert.Nil(t, job.ScheduledFor, "manual jobs are never deferred")
}

func TestJobsHandler_AddRepository_BadRequest(t *testing.T) {
	r, _ := newJobsRouter(t)

	rec := doJSON(t, r, http.MethodPost, "/repositories", map[string]string{"projectId": "42"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/repositories", bytes.NewBufferString("{not json"))
	res := httptest.NewRecorder()
	r.ServeHTTP(res, req)
	assert.Equal(t, http.StatusBadRequest, res.Code)
}

func TestJobsHandler_GetStatus(t *testing.T) {
	r, q := newJobsRouter(t)

	job, err := q.Add(context.Background(), queue.AddParams{
		ProjectID:     "42",
		RepositoryURL: "https://example.com/repo.git",
	})
	require.NoError(t, err)

	rec := doJSON(t, r, http.MethodGet, "/repositories/status/"+job.ProcessingID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got core.EmbeddingJob
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, job.ProcessingID, got.ProcessingID)
	assert.Equal(t, core.JobStatusPending, got.Status)
}

func TestJobsHandler_GetStatus_NotFound(t *testing.T) {
	r, _ := newJobsRouter(t)

	rec := doJSON(t, r, http.MethodGet, "/repositories/status/no-such-id", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestJobsHandler_GetStatus_HidesStaleErrors(t *testing.T) {
	r, q := newJobsRouter(t)
	ctx := context.Background()

	job, err := q.Add(ctx, queue.AddParams{
		ProjectID:     "42",
		RepositoryURL: "https://example.com/repo.git",
		MaxAttempts:   1,
	})
	require.NoError(t, err)

	claimed, err := q.ClaimNext(ctx, "w1")
	require.NoError(t, err)
	require.NoError(t, q.Fail(ctx, claimed.ID, "transient failure"))

	rec := doJSON(t, r, http.MethodGet, "/repositories/status/"+job.ProcessingID, nil)
	body := decodeBody(t, rec)
	assert.Equal(t, "transient failure", body["error"], "failed jobs expose their last error")

	// Back in pending, the old error disappears from the API.
	_, err = q.Retry(ctx, job.ProcessingID)
	require.NoError(t, err)

	rec = doJSON(t, r, http.MethodGet, "/repositories/status/"+job.ProcessingID, nil)
	body = decodeBody(t, rec)
	_, hasError := body["error"]
	assert.False(t, hasError)
}

func TestJobsHandler_QueueStatus(t *testing.T) {
	r, q := newJobsRouter(t)
	ctx := context.Background()

	for range 3 {
		_, err := q.Add(ctx, queue.AddParams{
			ProjectID:     "42",
			RepositoryURL: "https://example.com/repo.git",
		})
		require.NoError(t, err)
	}

	rec := doJSON(t, r, http.MethodGet, "/queue/status?page=1&limit=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Stats      core.QueueStats      `json:"stats"`
		Jobs       []*core.EmbeddingJob `json:"jobs"`
		Pagination struct {
			Page       int `json:"page"`
			Limit      int `json:"limit"`
			Total      int `json:"total"`
			TotalPages int `json:"totalPages"`
		} `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	assert.Equal(t, 3, body.Stats.Pending)
	assert.Len(t, body.Jobs, 2)
	assert.Equal(t, 1, body.Pagination.Page)
	assert.Equal(t, 3, body.Pagination.Total)
	assert.Equal(t, 2, body.Pagination.TotalPages)
}

func TestJobsHandler_QueueStatus_ClampsLimit(t *testing.T) {
	r, _ := newJobsRouter(t)

	rec := doJSON(t, r, http.MethodGet, "/queue/status?limit=9999", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	pagination, _ := body["pagination"].(map[string]any)
	require.NotNil(t, pagination)
	assert.Equal(t, float64(100), pagination["limit"])
}

func TestJobsHandler_RetryAndCancel(t *testing.T) {
	r, q := newJobsRouter(t)
	ctx := context.Background()

	job, err := q.Add(ctx, queue.AddParams{
		ProjectID:     "42",
		RepositoryURL: "https://example.com/repo.git",
		MaxAttempts:   1,
	})
	require.NoError(t, err)

	// Retrying a pending job is rejected.
	rec := doJSON(t, r, http.MethodPost, "/repositories/"+job.ProcessingID+"/retry", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	claimed, err := q.ClaimNext(ctx, "w1")
	require.NoError(t, err)
	require.NoError(t, q.Fail(ctx, claimed.ID, "boom"))

	rec = doJSON(t, r, http.MethodPost, "/repositories/"+job.ProcessingID+"/retry", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	got, err := q.GetByProcessingID(ctx, job.ProcessingID)
	require.NoError(t, err)
	assert.Equal(t, core.JobStatusPending, got.Status)

	rec = doJSON(t, r, http.MethodPost, "/repositories/"+job.ProcessingID+"/cancel", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// Cancelling again is rejected.
	rec = doJSON(t, r, http.MethodPost, "/repositories/"+job.ProcessingID+"/cancel", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, r, http.MethodPost, "/repositories/no-such-id/retry", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestJobsHandler_Delete(t *testing.T) {
	r, q := newJobsRouter(t)
	ctx := context.Background()

	job, err := q.Add(ctx, queue.AddParams{
		ProjectID:     "42",
		RepositoryURL: "https://example.com/repo.git",
	})
	require.NoError(t, err)

	_, err = q.ClaimNext(ctx, "w1")
	require.NoError(t, err)

	rec := doJSON(t, r, http.MethodDelete, "/repositories/"+job.ProcessingID, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "processing jobs need force")

	rec = doJSON(t, r, http.MethodDelete, "/repositories/"+job.ProcessingID+"?force=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, r, http.MethodGet, "/repositories/status/"+job.ProcessingID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
