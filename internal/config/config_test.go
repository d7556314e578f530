package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"github.com/jye-lim/wav2vec2-asr/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantData := filepath.Join(tempHome, ".local", "share", "cvasr", "common_voice")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.Model.TargetSampleRate != 16000 {
		t.Fatalf("unexpected target sample rate: %d", cfg.Model.TargetSampleRate)
	}
	if cfg.Search.Index != "cv-transcriptions" {
		t.Fatalf("unexpected index: %q", cfg.Search.Index)
	}
	if cfg.Search.Shards != 1 || cfg.Search.Replicas != 0 {
		t.Fatalf("unexpected shard layout: %d/%d", cfg.Search.Shards, cfg.Search.Replicas)
	}
	if cfg.Gateway.Bind != "127.0.0.1:8001" {
		t.Fatalf("unexpected gateway bind: %q", cfg.Gateway.Bind)
	}
}

func TestLoadCustomTOMLPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.toml")

	custom := config.Default()
	custom.Paths.DataDir = filepath.Join(dir, "data")
	custom.Paths.OutputDir = filepath.Join(dir, "out")
	custom.Paths.ManifestName = "cv-valid-test.csv"
	custom.Batch.Concurrency = 2
	custom.Search.Index = "cv-test"

	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("unexpected resolution: %q exists=%v", resolved, exists)
	}
	if cfg.Batch.Concurrency != 2 {
		t.Fatalf("unexpected concurrency: %d", cfg.Batch.Concurrency)
	}
	if got, want := cfg.ManifestPath(), filepath.Join(dir, "data", "cv-valid-test.csv"); got != want {
		t.Fatalf("ManifestPath = %q, want %q", got, want)
	}
	if got, want := cfg.UpdatedManifestPath(), filepath.Join(dir, "out", "cv-valid-test_updated.csv"); got != want {
		t.Fatalf("UpdatedManifestPath = %q, want %q", got, want)
	}
}

func TestLoadYAMLAcceptsLegacyKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := strings.Join([]string{
		"api:",
		"  infer_url: http://asr.internal:8001/asr",
		"paths:",
		"  csv_name: cv-valid-dev.csv",
		"  data_dir: " + filepath.Join(dir, "data"),
		"  output_dir: " + filepath.Join(dir, "out"),
		"",
	}, "\n")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Gateway.InferURL != "http://asr.internal:8001/asr" {
		t.Fatalf("expected legacy infer_url, got %q", cfg.Gateway.InferURL)
	}
	if cfg.Paths.OutputDir != filepath.Join(dir, "out") {
		t.Fatalf("unexpected output dir: %q", cfg.Paths.OutputDir)
	}
}

func TestEnvOverridesEndpoints(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())
	t.Setenv("CVASR_INFER_URL", "http://gateway:9000/asr")
	t.Setenv("ELASTICSEARCH_URL", "http://es:9200/")

	cfg, _, _, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Gateway.InferURL != "http://gateway:9000/asr" {
		t.Fatalf("unexpected infer url: %q", cfg.Gateway.InferURL)
	}
	if cfg.Search.URL != "http://es:9200" {
		t.Fatalf("unexpected search url: %q", cfg.Search.URL)
	}
}

func TestDotEnvBesideConfigIsLoaded(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(t.TempDir())
	path := filepath.Join(dir, "cvasr.toml")
	if err := os.WriteFile(path, []byte("[batch]\nconcurrency = 1\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("CVASR_MODEL_URL=http://model:7000/\n"), 0o644); err != nil {
		t.Fatalf("write env: %v", err)
	}
	t.Setenv("CVASR_MODEL_URL", "")
	os.Unsetenv("CVASR_MODEL_URL")

	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Model.Endpoint != "http://model:7000" {
		t.Fatalf("expected endpoint from .env, got %q", cfg.Model.Endpoint)
	}
}

func TestCreateSample(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample returned error: %v", err)
	}

	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("sample config should load: %v", err)
	}
	if !exists {
		t.Fatal("expected sample config to exist")
	}
	if cfg.Search.Index != "cv-transcriptions" {
		t.Fatalf("unexpected sample index: %q", cfg.Search.Index)
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"bad bind", func(c *config.Config) { c.Gateway.Bind = "nope" }, "gateway.bind"},
		{"bad infer url", func(c *config.Config) { c.Gateway.InferURL = "ftp://x/asr" }, "gateway.infer_url"},
		{"bad rate", func(c *config.Config) { c.Model.TargetSampleRate = 10 }, "model.target_sample_rate"},
		{"uppercase index", func(c *config.Config) { c.Search.Index = "CV" }, "search.index"},
		{"manifest not csv", func(c *config.Config) { c.Paths.ManifestName = "list.txt" }, "paths.manifest_name"},
		{"password without user", func(c *config.Config) { c.Search.Password = "secret" }, "search.username"},
		{"zero concurrency", func(c *config.Config) { c.Batch.Concurrency = 0 }, "batch.concurrency"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}
