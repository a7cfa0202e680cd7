package embedder

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sevigo/repo-embedder/internal/core"
)

func testJob() *core.EmbeddingJob {
	return &core.EmbeddingJob{
		ProcessingID:  "p-1",
		ProjectID:     "42",
		RepositoryURL: "https://example.com/repo.git",
	}
}

func TestClient_EmbedRepository(t *testing.T) {
	var got embedRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/embed", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(server.URL, slog.New(slog.NewTextHandler(io.Discard, nil)))
	err := client.EmbedRepository(context.Background(), testJob())
	require.NoError(t, err)

	assert.Equal(t, "p-1", got.ProcessingID)
	assert.Equal(t, "42", got.ProjectID)
	assert.Equal(t, "https://example.com/repo.git", got.RepositoryURL)
}

func TestClient_EmbedRepository_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(server.URL, slog.New(slog.NewTextHandler(io.Discard, nil)))
	err := client.EmbedRepository(context.Background(), testJob())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Contains(t, err.Error(), "model overloaded")
}

func TestClient_EmbedRepository_Unreachable(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", slog.New(slog.NewTextHandler(io.Discard, nil)))
	err := client.EmbedRepository(context.Background(), testJob())
	assert.Error(t, err)
}
