// Package config loads the application's configuration from environment
// variables and an optional .env file.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"

	"github.com/sevigo/repo-embedder/internal/cleanup"
	"github.com/sevigo/repo-embedder/internal/logger"
	"github.com/sevigo/repo-embedder/internal/schedule"
)

// DBConfig holds the Postgres connection settings.
type DBConfig struct {
	Host            string
	Port            int
	Username        string
	Password        string
	Database        string
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// Config holds the application's configuration values.
type Config struct {
	ServerPort string
	// ServerID names this replica in webhook processing records.
	ServerID string
	Logging  logger.Config
	Database *DBConfig

	MaxWorkers         int
	DefaultMaxAttempts int
	PollInterval       time.Duration

	EmbedderURL         string
	GitHubWebhookSecret string
	GitLabWebhookToken  string

	OffPeak schedule.Config
	Cleanup cleanup.Config
}

// LoadConfig reads configuration from environment variables and a .env file,
// sets sensible defaults, and validates required fields.
func LoadConfig() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
	v.SetDefault("LOG_OUTPUT", "stdout")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "")
	v.SetDefault("DB_NAME", "repo_embedder")
	v.SetDefault("DB_CONN_MAX_LIFETIME", "30m")
	v.SetDefault("DB_CONN_MAX_IDLE_TIME", "5m")

	v.SetDefault("MAX_WORKERS", 3)
	v.SetDefault("DEFAULT_MAX_ATTEMPTS", 3)
	v.SetDefault("WORKER_POLL_INTERVAL", "5s")

	v.SetDefault("EMBEDDER_URL", "http://localhost:9090")

	v.SetDefault("OFFPEAK_ENABLED", true)
	v.SetDefault("OFFPEAK_HOUR", 0)
	v.SetDefault("OFFPEAK_MINUTE", 0)
	v.SetDefault("OFFPEAK_UTC_OFFSET", 0)
	v.SetDefault("OFFPEAK_THRESHOLD", "1h")

	v.SetDefault("REAPER_INTERVAL", "1m")
	v.SetDefault("STALE_JOB_AGE", "30m")
	v.SetDefault("STALE_WEBHOOK_AGE", "15m")
	v.SetDefault("WEBHOOK_RETENTION", "168h")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			if _, statErr := os.Stat(".env"); statErr == nil {
				return nil, fmt.Errorf("failed to read .env file: %w", err)
			}
		}
	}

	hour := v.GetInt("OFFPEAK_HOUR")
	if hour < 0 || hour > 23 {
		return nil, fmt.Errorf("OFFPEAK_HOUR must be between 0 and 23, got %d", hour)
	}
	minute := v.GetInt("OFFPEAK_MINUTE")
	if minute < 0 || minute > 59 {
		return nil, fmt.Errorf("OFFPEAK_MINUTE must be between 0 and 59, got %d", minute)
	}
	offset := v.GetInt("OFFPEAK_UTC_OFFSET")
	if offset < -12 || offset > 14 {
		return nil, fmt.Errorf("OFFPEAK_UTC_OFFSET must be between -12 and 14, got %d", offset)
	}

	serverID := v.GetString("SERVER_ID")
	if serverID == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		serverID = hostname
	}

	return &Config{
		ServerPort: v.GetString("SERVER_PORT"),
		ServerID:   serverID,
		Logging: logger.Config{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
			Output: v.GetString("LOG_OUTPUT"),
		},
		Database: &DBConfig{
			Host:            v.GetString("DB_HOST"),
			Port:            v.GetInt("DB_PORT"),
			Username:        v.GetString("DB_USER"),
			Password:        v.GetString("DB_PASSWORD"),
			Database:        v.GetString("DB_NAME"),
			ConnMaxLifetime: v.GetDuration("DB_CONN_MAX_LIFETIME"),
			ConnMaxIdleTime: v.GetDuration("DB_CONN_MAX_IDLE_TIME"),
		},
		MaxWorkers:          v.GetInt("MAX_WORKERS"),
		DefaultMaxAttempts:  v.GetInt("DEFAULT_MAX_ATTEMPTS"),
		PollInterval:        v.GetDuration("WORKER_POLL_INTERVAL"),
		EmbedderURL:         v.GetString("EMBEDDER_URL"),
		GitHubWebhookSecret: v.GetString("GITHUB_WEBHOOK_SECRET"),
		GitLabWebhookToken:  v.GetString("GITLAB_WEBHOOK_TOKEN"),
		OffPeak: schedule.Config{
			Enabled:        v.GetBool("OFFPEAK_ENABLED"),
			Hour:           hour,
			Minute:         minute,
			UTCOffsetHours: offset,
			Threshold:      v.GetDuration("OFFPEAK_THRESHOLD"),
		},
		Cleanup: cleanup.Config{
			Interval:         v.GetDuration("REAPER_INTERVAL"),
			StaleJobAge:      v.GetDuration("STALE_JOB_AGE"),
			StaleWebhookAge:  v.GetDuration("STALE_WEBHOOK_AGE"),
			WebhookRetention: v.GetDuration("WEBHOOK_RETENTION"),
		},
	}, nil
}
