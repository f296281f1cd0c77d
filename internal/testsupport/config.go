package testsupport

import (
	"path/filepath"
	"testing"

	"scrivener/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.UploadDir = filepath.Join(base, "uploads")
	cfg.TranscriptDir = filepath.Join(base, "transcripts")
	cfg.LogDir = filepath.Join(base, "logs")
	cfg.EntitiesPath = filepath.Join(base, "entities.json")
	cfg.WeightModelPath = filepath.Join(base, "weights.json")
	cfg.APIBind = "127.0.0.1:0"

	for _, opt := range opts {
		opt(&cfg)
	}

	return &cfg
}

// WithPollInterval overrides the queue poll interval (seconds).
func WithPollInterval(seconds int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Workflow.QueuePollInterval = seconds
	}
}
