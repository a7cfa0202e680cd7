// Package embedder talks to the external embedding service that does the
// actual work for a job: cloning the repository, chunking its files, calling
// the model endpoint, and persisting vectors. From this service's point of
// view that is one long-running HTTP call.
package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/sevigo/repo-embedder/internal/core"
)

// Client implements core.Embedder against an HTTP embedding service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a Client for the service at baseURL. Embedding a
// repository can take minutes, so the client carries generous timeouts.
func NewClient(baseURL string, logger *slog.Logger) *Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		MaxConnsPerHost:     10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   15 * time.Minute,
		},
		logger: logger,
	}
}

type embedRequest struct {
	ProcessingID  string `json:"processingId"`
	ProjectID     string `json:"projectId"`
	RepositoryURL string `json:"repositoryUrl"`
}

// EmbedRepository asks the embedding service to process the job's repository
// snapshot. Any non-2xx response is a transient worker error; the queue's
// retry policy decides what happens next.
func (c *Client) EmbedRepository(ctx context.Context, job *core.EmbeddingJob) error {
	body, err := json.Marshal(embedRequest{
		ProcessingID:  job.ProcessingID,
		ProjectID:     job.ProjectID,
		RepositoryURL: job.RepositoryURL,
	})
	if err != nil {
		return fmt.Errorf("marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embed", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	c.logger.Debug("calling embedding service",
		"processing_id", job.ProcessingID, "repository_url", job.RepositoryURL)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("call embedding service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("embedding service returned %d: %s", resp.StatusCode, detail)
	}
	return nil
}
