package testsupport

import (
	"path/filepath"
	"testing"

	"notesmith/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.UploadDir = filepath.Join(base, "data", "uploads")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.APIBind = "127.0.0.1:0"
	cfg.Transcription.APIKey = "test"
	cfg.LLM.APIKey = "test"
	cfg.DocParse.APIToken = "test"
	cfg.Export.VaultDir = filepath.Join(base, "vault")

	for _, opt := range opts {
		opt(&cfg)
	}

	return &cfg
}

// WithVaultDir overrides the export vault directory on the test config.
func WithVaultDir(path string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Export.VaultDir = path
	}
}

// WithWorkerLimits overrides the gate capacities on the test config.
func WithWorkerLimits(transcode, api int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Workflow.MaxTranscodeWorkers = transcode
		cfg.Workflow.MaxAPIWorkers = api
	}
}
