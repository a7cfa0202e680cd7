package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/sevigo/repo-embedder/internal/server/handler"
)

// NewRouter wires the middleware stack and the API routes.
func NewRouter(jobs *handler.JobsHandler, webhook *handler.WebhookHandler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Post("/repositories", jobs.AddRepository)
	r.Get("/repositories/status/{processingId}", jobs.GetStatus)
	r.Post("/repositories/{processingId}/retry", jobs.Retry)
	r.Post("/repositories/{processingId}/cancel", jobs.Cancel)
	r.Delete("/repositories/{processingId}", jobs.Delete)
	r.Get("/queue/status", jobs.QueueStatus)
	r.Post("/webhooks", webhook.Handle)

	return r
}
