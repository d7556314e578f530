package testsupport

import (
	"path/filepath"
	"testing"

	"github.com/jye-lim/wav2vec2-asr/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.OutputDir = filepath.Join(base, "output")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Ledger.Path = filepath.Join(base, "ledger", "runs.db")
	cfgVal.Gateway.Bind = "127.0.0.1:0"
	cfgVal.Batch.Concurrency = 2

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithInferURL points the batch transcriber at a test gateway.
func WithInferURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Gateway.InferURL = url
	}
}

// WithSearchURL points the indexer at a test search engine.
func WithSearchURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Search.URL = url
	}
}
