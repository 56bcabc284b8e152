package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
[llm]
provider = "claude"
model = "claude-sonnet-4-20250514"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "claude", cfg.LLM.Provider)
	assert.Equal(t, 85, cfg.Pipeline.ValidationThreshold)
	assert.InDelta(t, 0.15, cfg.Pipeline.SampleFraction, 0.001)
	assert.Equal(t, 4, cfg.Pipeline.ValidationWorkers)
	assert.Equal(t, 3, cfg.Pipeline.MaxRetries)
	assert.Equal(t, 500, cfg.Pipeline.RetryBaseMillis)
	assert.Equal(t, 120, cfg.Pipeline.CallTimeoutSeconds)
	assert.Equal(t, 24*3600, cfg.Cache.TTLSeconds)
	assert.Equal(t, "NDA Redline", cfg.Emit.Author)
	assert.Equal(t, 8, cfg.Server.MaxConcurrentDocuments)
	assert.Equal(t, "config/rules.toml", cfg.RulesPath)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
rules_path = "custom/rules.toml"

[pipeline]
validation_threshold = 70
sample_fraction = 0.3
validation_workers = 2

[emit]
author = "Acme Legal"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 70, cfg.Pipeline.ValidationThreshold)
	assert.InDelta(t, 0.3, cfg.Pipeline.SampleFraction, 0.001)
	assert.Equal(t, 2, cfg.Pipeline.ValidationWorkers)
	assert.Equal(t, "Acme Legal", cfg.Emit.Author)
	assert.Equal(t, "custom/rules.toml", cfg.RulesPath)
	// Untouched settings still get defaults.
	assert.Equal(t, 3, cfg.Pipeline.MaxRetries)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	assert.Error(t, err)
}

func TestLoadMalformedTOML(t *testing.T) {
	path := writeConfig(t, "[pipeline\nvalidation_threshold =")
	_, err := Load(path)
	assert.Error(t, err)
}
