package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config struct for environment variables.
type Config struct {
	CacheDir        string `envconfig:"CACHE_DIR" required:"true"`
	ManifestBackend string `envconfig:"MANIFEST_BACKEND" default:"json"`
	ManifestPath    string `envconfig:"MANIFEST_PATH" default:"offline_manifest.json"`
	DBPath          string `envconfig:"DB_PATH" default:"drivecache.db"`

	MaxParallel      int64         `envconfig:"MAX_PARALLEL" default:"5"`
	BatchConcurrency int           `envconfig:"BATCH_CONCURRENCY" default:"3"`
	CompletedTaskTTL time.Duration `envconfig:"COMPLETED_TASK_TTL" default:"2s"`
	FailedTaskTTL    time.Duration `envconfig:"FAILED_TASK_TTL" default:"5s"`

	GoogleDriveToken string `envconfig:"GOOGLE_DRIVE_TOKEN"`
	OneDriveToken    string `envconfig:"ONEDRIVE_TOKEN"`

	LogLevel string `envconfig:"LOG_LEVEL" default:"INFO"`

	Telemetry struct {
		Enabled        bool   `split_words:"true" default:"true"`
		ServiceName    string `split_words:"true" default:"drivecache"`
		ServiceVersion string `split_words:"true" default:"dev"`
	}

	Web struct {
		Username        string        `split_words:"true"`
		Password        string        `split_words:"true"`
		BindAddress     string        `split_words:"true" default:"0.0.0.0:8090"`
		ReadTimeout     time.Duration `split_words:"true" default:"30s"`
		WriteTimeout    time.Duration `split_words:"true" default:"10m"`
		IdleTimeout     time.Duration `split_words:"true" default:"5s"`
		ShutdownTimeout time.Duration `split_words:"true" default:"30s"`
	}
}

// LoadConfig reads environment variables and populates the Config struct.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("error processing env: %w", err)
	}

	return &cfg, nil
}

func (c *Config) SlogLevel() slog.Level {
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
