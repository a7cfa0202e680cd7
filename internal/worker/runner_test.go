package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/sevigo/repo-embedder/internal/core"
	"github.com/sevigo/repo-embedder/internal/queue"
	"github.com/sevigo/repo-embedder/internal/storage"
	"github.com/sevigo/repo-embedder/mocks"
)

func newTestRunner(t *testing.T, embedder core.Embedder, workers int) (*Runner, *queue.Queue) {
	t.Helper()
	discard := slog.New(slog.NewTextHandler(io.Discard, nil))
	q := queue.New(storage.NewMemoryStore(), discard, 3)
	return NewRunner(q, embedder, workers, 10*time.Millisecond, discard), q
}

func jobStatus(t *testing.T, q *queue.Queue, processingID string) core.JobStatus {
	t.Helper()
	job, err := q.GetByProcessingID(context.Background(), processingID)
	require.NoError(t, err)
	return job.Status
}

func TestRunner_CompletesJob(t *testing.T) {
	ctrl := gomock.NewController(t)
	embedder := mocks.NewMockEmbedder(ctrl)
	embedder.EXPECT().EmbedRepository(gomock.Any(), gomock.Any()).Return(nil)

	runner, q := newTestRunner(t, embedder, 1)
	job, err := q.Add(context.Background(), queue.AddParams{
		ProjectID:     "42",
		RepositoryURL: "https://example.com/repo.git",
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()

	assert.Eventually(t, func() bool {
		return jobStatus(t, q, job.ProcessingID) == core.JobStatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestRunner_FailedJobGoesToRetry(t *testing.T) {
	ctrl := gomock.NewController(t)
	embedder := mocks.NewMockEmbedder(ctrl)
	embedder.EXPECT().EmbedRepository(gomock.Any(), gomock.Any()).Return(errors.New("embedder unreachable"))

	runner, q := newTestRunner(t, embedder, 1)
	job, err := q.Add(context.Background(), queue.AddParams{
		ProjectID:     "42",
		RepositoryURL: "https://example.com/repo.git",
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()

	assert.Eventually(t, func() bool {
		return jobStatus(t, q, job.ProcessingID) == core.JobStatusRetrying
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	got, err := q.GetByProcessingID(context.Background(), job.ProcessingID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Attempts)
	require.NotNil(t, got.LastError)
	assert.Equal(t, "embedder unreachable", *got.LastError)
}

func TestRunner_DiscardsResultOfCancelledJob(t *testing.T) {
	ctrl := gomock.NewController(t)
	embedder := mocks.NewMockEmbedder(ctrl)

	runner, q := newTestRunner(t, embedder, 1)
	ctx := context.Background()

	job, err := q.Add(ctx, queue.AddParams{
		ProjectID:     "42",
		RepositoryURL: "https://example.com/repo.git",
	})
	require.NoError(t, err)

	// Cancel mid-embedding, then let the embedder succeed.
	embedder.EXPECT().EmbedRepository(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, _ *core.EmbeddingJob) error {
			_, cancelErr := q.Cancel(ctx, job.ProcessingID)
			require.NoError(t, cancelErr)
			return nil
		})

	assert.True(t, runner.processNext(ctx, "w1"))
	assert.Equal(t, core.JobStatusCancelled, jobStatus(t, q, job.ProcessingID),
		"a successful run must not resurrect a cancelled job")
}

func TestRunner_DrainsQueueBeforeSleeping(t *testing.T) {
	ctrl := gomock.NewController(t)
	embedder := mocks.NewMockEmbedder(ctrl)
	embedder.EXPECT().EmbedRepository(gomock.Any(), gomock.Any()).Return(nil).Times(5)

	runner, q := newTestRunner(t, embedder, 1)
	ctx := context.Background()
	for range 5 {
		_, err := q.Add(ctx, queue.AddParams{
			ProjectID:     "42",
			RepositoryURL: "https://example.com/repo.git",
		})
		require.NoError(t, err)
	}

	for runner.processNext(ctx, "w1") {
	}

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, stats.Completed)
}
