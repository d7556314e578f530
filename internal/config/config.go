package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains manifest, audio and log locations.
type Paths struct {
	DataDir      string `toml:"data_dir" yaml:"data_dir"`
	OutputDir    string `toml:"output_dir" yaml:"output_dir"`
	ManifestName string `toml:"manifest_name" yaml:"manifest_name"`
	LogDir       string `toml:"log_dir" yaml:"log_dir"`

	// CSVName is the key older YAML configs used for the manifest name.
	CSVName string `toml:"-" yaml:"csv_name"`
}

// Gateway contains the inference HTTP service settings and how clients reach it.
type Gateway struct {
	Bind                  string `toml:"bind" yaml:"bind"`
	InferURL              string `toml:"infer_url" yaml:"infer_url"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds" yaml:"request_timeout_seconds"`
	MaxBodyMB             int    `toml:"max_body_mb" yaml:"max_body_mb"`
}

// API mirrors the [api] section older YAML configs carried; only infer_url is read.
type API struct {
	InferURL string `toml:"-" yaml:"infer_url"`
}

// Model contains acoustic model settings.
type Model struct {
	ID               string `toml:"id" yaml:"id"`
	Endpoint         string `toml:"endpoint" yaml:"endpoint"`
	VocabularyPath   string `toml:"vocabulary_path" yaml:"vocabulary_path"`
	TargetSampleRate int    `toml:"target_sample_rate" yaml:"target_sample_rate"`
	TimeoutSeconds   int    `toml:"timeout_seconds" yaml:"timeout_seconds"`
	Concurrent       bool   `toml:"concurrent" yaml:"concurrent"`
}

// Batch contains orchestrator settings.
type Batch struct {
	Concurrency int `toml:"concurrency" yaml:"concurrency"`
	// DeleteAudio removes each audio file after its gateway call.
	DeleteAudio bool `toml:"delete_audio" yaml:"delete_audio"`
	// Lock takes an advisory lock on the audio directory for the whole run.
	Lock bool `toml:"lock" yaml:"lock"`
}

// Search contains search engine connection and index settings.
type Search struct {
	URL            string `toml:"url" yaml:"url"`
	Index          string `toml:"index" yaml:"index"`
	Shards         int    `toml:"shards" yaml:"shards"`
	Replicas       int    `toml:"replicas" yaml:"replicas"`
	Username       string `toml:"username" yaml:"username"`
	Password       string `toml:"password" yaml:"password"`
	TimeoutSeconds int    `toml:"timeout_seconds" yaml:"timeout_seconds"`
}

// Ledger contains run history settings.
type Ledger struct {
	Enabled bool   `toml:"enabled" yaml:"enabled"`
	Path    string `toml:"path" yaml:"path"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format" yaml:"format"`
	Level  string `toml:"level" yaml:"level"`
}

// Config encapsulates all configuration values for cvasr.
//
// Configuration sections by subsystem:
//   - Paths: manifest location, audio directory, output directory, logs
//   - Gateway: inference service bind address and client endpoint
//   - Model: acoustic model identity, backend endpoint and target sample rate
//   - Batch: transcription worker pool sizing
//   - Search: search engine endpoint and index layout
//   - Ledger: run history database
//   - Logging: log format and level
type Config struct {
	Paths   Paths   `toml:"paths" yaml:"paths"`
	Gateway Gateway `toml:"gateway" yaml:"gateway"`
	Model   Model   `toml:"model" yaml:"model"`
	Batch   Batch   `toml:"batch" yaml:"batch"`
	Search  Search  `toml:"search" yaml:"search"`
	Ledger  Ledger  `toml:"ledger" yaml:"ledger"`
	Logging Logging `toml:"logging" yaml:"logging"`

	API API `toml:"-" yaml:"api"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/cvasr/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized. A .env file next to the config (or in the working
// directory) is loaded first so environment fallbacks can see it.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	loadDotEnv(resolvedPath)

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		if err := decode(file, resolvedPath, &cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func decode(r io.Reader, path string, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err := yaml.NewDecoder(r).Decode(cfg)
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	default:
		return toml.NewDecoder(r).Decode(cfg)
	}
}

func loadDotEnv(configPath string) {
	candidates := []string{".env"}
	if configPath != "" {
		candidates = append([]string{filepath.Join(filepath.Dir(configPath), ".env")}, candidates...)
	}
	seen := make(map[string]struct{}, len(candidates))
	for _, candidate := range candidates {
		abs, err := filepath.Abs(candidate)
		if err != nil {
			continue
		}
		if _, ok := seen[abs]; ok {
			continue
		}
		seen[abs] = struct{}{}
		if info, err := os.Stat(abs); err != nil || info.IsDir() {
			continue
		}
		// godotenv.Load never overrides variables already present in the environment.
		_ = godotenv.Load(abs)
	}
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	for _, name := range []string{"cvasr.toml", "config.yaml", "config.yml"} {
		projectPath, err := filepath.Abs(name)
		if err != nil {
			return "", false, err
		}
		if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
			return projectPath, true, nil
		}
	}

	return defaultPath, false, nil
}

// ManifestPath returns the input manifest location: the manifest name inside the data directory.
func (c *Config) ManifestPath() string {
	if filepath.IsAbs(c.Paths.ManifestName) {
		return c.Paths.ManifestName
	}
	return filepath.Join(c.Paths.DataDir, c.Paths.ManifestName)
}

// UpdatedManifestPath returns where the orchestrator writes the transcribed manifest.
func (c *Config) UpdatedManifestPath() string {
	name := filepath.Base(c.Paths.ManifestName)
	ext := filepath.Ext(name)
	return filepath.Join(c.Paths.OutputDir, strings.TrimSuffix(name, ext)+"_updated"+ext)
}

// EnsureDirectories creates the output and log directories. The data directory is
// expected to exist already since it holds the corpus.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.OutputDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if c.Ledger.Enabled && strings.TrimSpace(c.Ledger.Path) != "" {
		if err := os.MkdirAll(filepath.Dir(c.Ledger.Path), 0o755); err != nil {
			return fmt.Errorf("create ledger directory: %w", err)
		}
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
