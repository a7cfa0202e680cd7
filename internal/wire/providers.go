package wire

import (
	"io"
	"log/slog"
	"os"

	"github.com/google/wire"
	"github.com/jmoiron/sqlx"

	"github.com/sevigo/repo-embedder/internal/app"
	"github.com/sevigo/repo-embedder/internal/cleanup"
	"github.com/sevigo/repo-embedder/internal/config"
	"github.com/sevigo/repo-embedder/internal/core"
	"github.com/sevigo/repo-embedder/internal/db"
	"github.com/sevigo/repo-embedder/internal/dedup"
	"github.com/sevigo/repo-embedder/internal/embedder"
	"github.com/sevigo/repo-embedder/internal/logger"
	"github.com/sevigo/repo-embedder/internal/queue"
	"github.com/sevigo/repo-embedder/internal/schedule"
	"github.com/sevigo/repo-embedder/internal/server"
	"github.com/sevigo/repo-embedder/internal/server/handler"
	"github.com/sevigo/repo-embedder/internal/storage"
	"github.com/sevigo/repo-embedder/internal/worker"
)

// AppSet lists every provider needed to build the application.
var AppSet = wire.NewSet(
	app.NewApp,
	config.LoadConfig,
	db.NewDatabase,
	storage.NewStore,
	handler.NewJobsHandler,
	handler.NewWebhookHandler,
	provideSlogLogger,
	provideLoggerConfig,
	provideLogWriter,
	provideDBConfig,
	provideSqlxDB,
	provideQueue,
	provideGate,
	provideAdvisor,
	provideEmbedder,
	provideRunner,
	provideReaper,
	provideWebhookConfig,
	provideServer,
)

func provideLoggerConfig(cfg *config.Config) logger.Config {
	return cfg.Logging
}

func provideLogWriter(cfg *config.Config) io.Writer {
	switch cfg.Logging.Output {
	case "stderr":
		return os.Stderr
	default:
		return os.Stdout
	}
}

func provideSlogLogger(loggerConfig logger.Config, writer io.Writer) *slog.Logger {
	return logger.NewLogger(loggerConfig, writer)
}

func provideDBConfig(cfg *config.Config) *config.DBConfig {
	return cfg.Database
}

func provideSqlxDB(dbConn *db.DB) *sqlx.DB {
	return dbConn.DB
}

func provideQueue(cfg *config.Config, store storage.Store, logger *slog.Logger) *queue.Queue {
	return queue.New(store, logger, cfg.DefaultMaxAttempts)
}

func provideGate(cfg *config.Config, store storage.Store, logger *slog.Logger) *dedup.Gate {
	return dedup.NewGate(store, cfg.ServerID, logger)
}

func provideAdvisor(cfg *config.Config) *schedule.Advisor {
	return schedule.NewAdvisor(cfg.OffPeak)
}

func provideEmbedder(cfg *config.Config, logger *slog.Logger) core.Embedder {
	return embedder.NewClient(cfg.EmbedderURL, logger)
}

func provideRunner(cfg *config.Config, q *queue.Queue, emb core.Embedder, logger *slog.Logger) *worker.Runner {
	return worker.NewRunner(q, emb, cfg.MaxWorkers, cfg.PollInterval, logger)
}

func provideReaper(cfg *config.Config, gate *dedup.Gate, q *queue.Queue, logger *slog.Logger) *cleanup.Reaper {
	return cleanup.NewReaper(cfg.Cleanup, gate, q, logger)
}

func provideWebhookConfig(cfg *config.Config) handler.WebhookConfig {
	return handler.WebhookConfig{
		GitHubSecret: cfg.GitHubWebhookSecret,
		GitLabToken:  cfg.GitLabWebhookToken,
	}
}

func provideServer(cfg *config.Config, jobs *handler.JobsHandler, webhook *handler.WebhookHandler, logger *slog.Logger) *server.Server {
	return server.NewServer(cfg.ServerPort, jobs, webhook, logger)
}
