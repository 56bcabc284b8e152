package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

type LLMConfig struct {
	Provider string `toml:"provider"`
	Model    string `toml:"model"`
	APIKey   string `toml:"api_key"`
	BaseURL  string `toml:"base_url"`
}

type RecallPrompts struct {
	Checklist    string `toml:"checklist"`
	Instructions string `toml:"instructions"`
}

type ValidationPrompts struct {
	Adjudicate string `toml:"adjudicate"`
}

type PipelineConfig struct {
	// Recall candidates at or below this confidence are sent to the
	// validation pass. Candidates above it are sampled (SampleFraction).
	ValidationThreshold int     `toml:"validation_threshold"`
	SampleFraction      float64 `toml:"sample_fraction"`
	ValidationWorkers   int     `toml:"validation_workers"`
	MaxRetries          int     `toml:"max_retries"`
	RetryBaseMillis     int     `toml:"retry_base_millis"`
	CallTimeoutSeconds  int     `toml:"call_timeout_seconds"`
}

type CacheConfig struct {
	RedisURL   string `toml:"redis_url"`
	TTLSeconds int    `toml:"ttl_seconds"`
}

type EmitConfig struct {
	Author string `toml:"author"`
}

type ServerConfig struct {
	MaxConcurrentDocuments int `toml:"max_concurrent_documents"`
}

type Config struct {
	LLM        LLMConfig         `toml:"llm"`
	Recall     RecallPrompts     `toml:"recall"`
	Validation ValidationPrompts `toml:"validation"`
	Pipeline   PipelineConfig    `toml:"pipeline"`
	Cache      CacheConfig       `toml:"cache"`
	Emit       EmitConfig        `toml:"emit"`
	Server     ServerConfig      `toml:"server"`
	RulesPath  string            `toml:"rules_path"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse TOML: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Pipeline.ValidationThreshold == 0 {
		c.Pipeline.ValidationThreshold = 85
	}
	if c.Pipeline.SampleFraction == 0 {
		c.Pipeline.SampleFraction = 0.15
	}
	if c.Pipeline.ValidationWorkers == 0 {
		c.Pipeline.ValidationWorkers = 4
	}
	if c.Pipeline.MaxRetries == 0 {
		c.Pipeline.MaxRetries = 3
	}
	if c.Pipeline.RetryBaseMillis == 0 {
		c.Pipeline.RetryBaseMillis = 500
	}
	if c.Pipeline.CallTimeoutSeconds == 0 {
		c.Pipeline.CallTimeoutSeconds = 120
	}
	if c.Cache.TTLSeconds == 0 {
		c.Cache.TTLSeconds = 24 * 3600
	}
	if c.Emit.Author == "" {
		c.Emit.Author = "NDA Redline"
	}
	if c.Server.MaxConcurrentDocuments == 0 {
		c.Server.MaxConcurrentDocuments = 8
	}
	if c.RulesPath == "" {
		c.RulesPath = "config/rules.toml"
	}
}
