// Package config loads scantuner settings. Precedence, lowest to highest:
// built-in defaults, an optional scantuner.yaml, SCANTUNER_-prefixed
// environment variables (SCANTUNER_ENRICHMENT_API_KEY -> enrichment.api_key).
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "SCANTUNER_"

// Default values for everything a fresh checkout needs.
const (
	DefaultModel       = "gpt-4o-mini"
	DefaultTimeout     = 15 * time.Second
	DefaultThreshold   = 3
	DefaultMapping     = "params"
	DefaultConcurrency = 4
)

// Config holds all scantuner configuration.
type Config struct {
	Enrichment EnrichmentConfig `koanf:"enrichment"`
	Transform  TransformConfig  `koanf:"transform"`
	Pipeline   PipelineConfig   `koanf:"pipeline"`

	// FileUsed is the config file that was loaded, empty when running on
	// defaults and environment only.
	FileUsed string `koanf:"-"`
}

// EnrichmentConfig configures the inference fallback service.
type EnrichmentConfig struct {
	// BaseURL points at an OpenAI-compatible endpoint. Empty keeps the
	// default OpenAI API.
	BaseURL string `koanf:"base_url"`
	APIKey  string `koanf:"api_key"`
	Model   string `koanf:"model"`
	// Timeout bounds one inference call.
	Timeout time.Duration `koanf:"timeout"`
	// Threshold is the structural binding count below which enrichment
	// runs at all.
	Threshold int `koanf:"threshold"`
}

// Enabled reports whether an enrichment endpoint is configured.
func (e EnrichmentConfig) Enabled() bool {
	return e.APIKey != ""
}

// TransformConfig configures the externalization rewrite.
type TransformConfig struct {
	// Mapping is the identifier the rewritten lookups read from.
	Mapping string `koanf:"mapping"`
}

// PipelineConfig configures batch processing.
type PipelineConfig struct {
	// Concurrency caps the number of files processed in parallel.
	Concurrency int `koanf:"concurrency"`
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"enrichment.base_url":  "",
		"enrichment.api_key":   "",
		"enrichment.model":     DefaultModel,
		"enrichment.timeout":   DefaultTimeout.String(),
		"enrichment.threshold": DefaultThreshold,
		"transform.mapping":    DefaultMapping,
		"pipeline.concurrency": DefaultConcurrency,
	}
}

// findConfigFile picks the config file to use.
// Priority: explicit path > scantuner.yaml > scantuner.yml
func findConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if _, err := os.Stat("scantuner.yaml"); err == nil {
		return "scantuner.yaml"
	}
	if _, err := os.Stat("scantuner.yml"); err == nil {
		return "scantuner.yml"
	}
	return ""
}

// Load builds the configuration. cfgFile may be empty, in which case
// scantuner.yaml / scantuner.yml in the working directory are probed; an
// explicitly named file must exist.
func Load(cfgFile string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if cfgFile != "" {
		if _, err := os.Stat(cfgFile); err != nil {
			return nil, fmt.Errorf("config file %s: %w", cfgFile, err)
		}
	}
	fileUsed := findConfigFile(cfgFile)
	if fileUsed != "" {
		if err := k.Load(file.Provider(fileUsed), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", fileUsed, err)
		}
	}

	// SCANTUNER_ENRICHMENT_BASE_URL -> enrichment.base_url: the first
	// underscore separates the section, the rest belongs to the key.
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "_", ".", 1)
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.FileUsed = fileUsed
	cfg.normalize()
	return &cfg, nil
}

// normalize floors nonsense values instead of failing: a bad concurrency
// or threshold should degrade, not abort a batch.
func (c *Config) normalize() {
	if c.Pipeline.Concurrency < 1 {
		c.Pipeline.Concurrency = 1
	}
	if c.Enrichment.Threshold < 0 {
		c.Enrichment.Threshold = 0
	}
	if c.Enrichment.Timeout <= 0 {
		c.Enrichment.Timeout = DefaultTimeout
	}
	if c.Transform.Mapping == "" {
		c.Transform.Mapping = DefaultMapping
	}
}
