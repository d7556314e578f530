package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeGateway()
	if err := c.normalizeModel(); err != nil {
		return err
	}
	if c.Batch.Concurrency <= 0 {
		c.Batch.Concurrency = defaultBatchConcurrency
	}
	c.normalizeSearch()
	if err := c.normalizeLedger(); err != nil {
		return err
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	if name := strings.TrimSpace(c.Paths.CSVName); name != "" && c.Paths.ManifestName == defaultManifestName {
		c.Paths.ManifestName = name
	}
	c.Paths.ManifestName = strings.TrimSpace(c.Paths.ManifestName)
	if c.Paths.ManifestName == "" {
		c.Paths.ManifestName = defaultManifestName
	}

	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		c.Paths.OutputDir = c.Paths.DataDir
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeGateway() {
	c.Gateway.Bind = strings.TrimSpace(c.Gateway.Bind)
	if c.Gateway.Bind == "" {
		c.Gateway.Bind = defaultGatewayBind
	}
	if legacy := strings.TrimSpace(c.API.InferURL); legacy != "" && c.Gateway.InferURL == defaultInferURL {
		c.Gateway.InferURL = legacy
	}
	if value, ok := os.LookupEnv("CVASR_INFER_URL"); ok && strings.TrimSpace(value) != "" {
		c.Gateway.InferURL = value
	}
	c.Gateway.InferURL = strings.TrimSpace(c.Gateway.InferURL)
	if c.Gateway.InferURL == "" {
		c.Gateway.InferURL = defaultInferURL
	}
	if c.Gateway.RequestTimeoutSeconds <= 0 {
		c.Gateway.RequestTimeoutSeconds = defaultRequestTimeout
	}
	if c.Gateway.MaxBodyMB <= 0 {
		c.Gateway.MaxBodyMB = defaultMaxBodyMB
	}
}

func (c *Config) normalizeModel() error {
	c.Model.ID = strings.TrimSpace(c.Model.ID)
	if c.Model.ID == "" {
		c.Model.ID = defaultModelID
	}
	if c.Model.Endpoint == "" {
		if value, ok := os.LookupEnv("CVASR_MODEL_URL"); ok {
			c.Model.Endpoint = value
		}
	}
	c.Model.Endpoint = strings.TrimRight(strings.TrimSpace(c.Model.Endpoint), "/")
	if c.Model.TargetSampleRate <= 0 {
		c.Model.TargetSampleRate = defaultTargetSampleRate
	}
	if c.Model.TimeoutSeconds <= 0 {
		c.Model.TimeoutSeconds = defaultModelTimeoutSeconds
	}
	if strings.TrimSpace(c.Model.VocabularyPath) != "" {
		var err error
		if c.Model.VocabularyPath, err = expandPath(strings.TrimSpace(c.Model.VocabularyPath)); err != nil {
			return fmt.Errorf("model.vocabulary_path: %w", err)
		}
	}
	return nil
}

func (c *Config) normalizeSearch() {
	if value, ok := os.LookupEnv("CVASR_SEARCH_URL"); ok && strings.TrimSpace(value) != "" {
		c.Search.URL = value
	} else if value, ok := os.LookupEnv("ELASTICSEARCH_URL"); ok && strings.TrimSpace(value) != "" && c.Search.URL == defaultSearchURL {
		c.Search.URL = value
	}
	c.Search.URL = strings.TrimRight(strings.TrimSpace(c.Search.URL), "/")
	if c.Search.URL == "" {
		c.Search.URL = defaultSearchURL
	}
	c.Search.Index = strings.TrimSpace(c.Search.Index)
	if c.Search.Index == "" {
		c.Search.Index = defaultSearchIndex
	}
	if c.Search.Shards <= 0 {
		c.Search.Shards = defaultSearchShards
	}
	if c.Search.Replicas < 0 {
		c.Search.Replicas = defaultSearchReplicas
	}
	if c.Search.Password == "" {
		if value, ok := os.LookupEnv("ELASTIC_PASSWORD"); ok {
			c.Search.Password = value
		}
	}
	c.Search.Username = strings.TrimSpace(c.Search.Username)
	if c.Search.TimeoutSeconds <= 0 {
		c.Search.TimeoutSeconds = defaultSearchTimeoutSeconds
	}
}

func (c *Config) normalizeLedger() error {
	if strings.TrimSpace(c.Ledger.Path) == "" {
		c.Ledger.Path = defaultLedgerPath
	}
	var err error
	if c.Ledger.Path, err = expandPath(c.Ledger.Path); err != nil {
		return fmt.Errorf("ledger.path: %w", err)
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
