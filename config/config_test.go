package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "localhost:8765", cfg.Server.ListenAddr())
	assert.Equal(t, "localhost:9090", cfg.Server.MetricsAddr())
	assert.Equal(t, []string{"TEXT"}, cfg.Upstream.ResponseModalities)
	assert.Equal(t, "models/gemini-2.0-flash-live-001", cfg.Upstream.Model)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  host: 0.0.0.0
  port: 9000
  ping_interval: 5s
upstream:
  model: models/gemini-2.5-flash-live
  response_modalities: [AUDIO]
log:
  level: debug
  format: console
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Server.PingInterval)
	assert.Equal(t, "models/gemini-2.5-flash-live", cfg.Upstream.Model)
	assert.Equal(t, []string{"AUDIO"}, cfg.Upstream.ResponseModalities)
	assert.Equal(t, "debug", cfg.Log.Level)
	// 未覆盖的字段保留默认值
	assert.Equal(t, 9090, cfg.Server.MetricsPort)
	assert.Equal(t, DefaultSystemInstruction, cfg.Upstream.SystemInstruction)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("LIVERELAY_SERVER_PORT", "7001")
	t.Setenv("LIVERELAY_UPSTREAM_API_KEY", "env-key")
	t.Setenv("LIVERELAY_UPSTREAM_RESPONSE_MODALITIES", "text, audio")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 7001, cfg.Server.Port)
	assert.Equal(t, "env-key", cfg.Upstream.APIKey)
	assert.Equal(t, []string{"TEXT", "AUDIO"}, cfg.Upstream.ResponseModalities)
}

func TestLoad_GeminiAPIKeyFallback(t *testing.T) {
	t.Setenv("LIVERELAY_UPSTREAM_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "fallback-key")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "fallback-key", cfg.Upstream.APIKey)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero port", func(c *Config) { c.Server.Port = 0 }},
		{"port collision", func(c *Config) { c.Server.MetricsPort = c.Server.Port }},
		{"bad modality", func(c *Config) { c.Upstream.ResponseModalities = []string{"VIDEO"} }},
		{"bad log level", func(c *Config) { c.Log.Level = "verbose" }},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
