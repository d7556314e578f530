// Package config loads, normalizes, and validates cvasr configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML or YAML files, loads .env files, and honours
// environment fallbacks such as CVASR_INFER_URL and ELASTICSEARCH_URL. The
// Config type centralizes every knob the gateway, batch transcriber, and
// indexer need.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
