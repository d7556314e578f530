package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateGateway(); err != nil {
		return err
	}
	if err := c.validateModel(); err != nil {
		return err
	}
	if c.Batch.Concurrency <= 0 {
		return errors.New("batch.concurrency must be positive")
	}
	if err := c.validateSearch(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		return errors.New("paths.data_dir must be set")
	}
	if !strings.HasSuffix(strings.ToLower(c.Paths.ManifestName), ".csv") {
		return fmt.Errorf("paths.manifest_name must name a .csv file, got %q", c.Paths.ManifestName)
	}
	return nil
}

func (c *Config) validateGateway() error {
	if _, _, err := net.SplitHostPort(c.Gateway.Bind); err != nil {
		return fmt.Errorf("gateway.bind: %w", err)
	}
	if err := validateHTTPURL("gateway.infer_url", c.Gateway.InferURL); err != nil {
		return err
	}
	return ensurePositiveMap(map[string]int{
		"gateway.request_timeout_seconds": c.Gateway.RequestTimeoutSeconds,
		"gateway.max_body_mb":             c.Gateway.MaxBodyMB,
	})
}

func (c *Config) validateModel() error {
	if c.Model.TargetSampleRate < 1000 || c.Model.TargetSampleRate > 192000 {
		return fmt.Errorf("model.target_sample_rate must be between 1000 and 192000, got %d", c.Model.TargetSampleRate)
	}
	if c.Model.Endpoint != "" {
		if err := validateHTTPURL("model.endpoint", c.Model.Endpoint); err != nil {
			return err
		}
	}
	if c.Model.TimeoutSeconds <= 0 {
		return errors.New("model.timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateSearch() error {
	if err := validateHTTPURL("search.url", c.Search.URL); err != nil {
		return err
	}
	if c.Search.Index != strings.ToLower(c.Search.Index) {
		return fmt.Errorf("search.index must be lowercase, got %q", c.Search.Index)
	}
	if c.Search.Shards <= 0 {
		return errors.New("search.shards must be positive")
	}
	if c.Search.Replicas < 0 {
		return errors.New("search.replicas must not be negative")
	}
	if c.Search.Password != "" && c.Search.Username == "" {
		return errors.New("search.username must be set when search.password is provided")
	}
	return nil
}

func validateHTTPURL(key, value string) error {
	parsed, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%s must use http or https, got %q", key, value)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%s must include a host, got %q", key, value)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
