// ABOUTME: Tests for vito-gateway command helpers
// ABOUTME: Covers the generated config round-trip and logger output

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/vito-gateway/internal/config"
)

func TestRenderConfig_LoadsBack(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "g")
	t.Setenv("OPENROUTER_API_KEY", "o")
	t.Setenv("VITO_MATRIX_PASSWORD", "pw")

	out := renderConfig(initAnswers{
		Creator:         "@yoru:example.org",
		Admins:          []string{"@mod:example.org"},
		Homeserver:      "https://matrix.example.org",
		Username:        "vito",
		Encryption:      true,
		OpenRouterModel: "venice/uncensored:free",
		StatusAddr:      "127.0.0.1:9090",
		LogLevel:        "info",
	})

	path := filepath.Join(t.TempDir(), "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte(out), 0600))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "@yoru:example.org", cfg.Access.Creator)
	assert.Equal(t, []string{"@mod:example.org"}, cfg.Access.Admins)
	assert.Equal(t, "pw", cfg.Matrix.Password)
	assert.Equal(t, "g", cfg.Providers.Gemini.APIKey)
	assert.True(t, cfg.Matrix.Encryption)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "127.0.0.1:9090", cfg.Status.Addr)
}

func TestYes(t *testing.T) {
	assert.True(t, yes("Y"))
	assert.True(t, yes(" yes "))
	assert.False(t, yes("no"))
	assert.False(t, yes(""))
}

func TestNewLogger(t *testing.T) {
	color.NoColor = true

	var buf bytes.Buffer
	logger := newLogger(config.LoggingConfig{Level: "warn", Format: "text"}, &buf)
	logger.Info("hidden")
	logger.With("component", "dispatch").WithGroup("req").Warn("queued", "user_id", "@a:example.org")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "WRN queued")
	assert.Contains(t, out, "component=dispatch")
	assert.Contains(t, out, "req.user_id=@a:example.org")

	buf.Reset()
	logger = newLogger(config.LoggingConfig{Level: "debug", Format: "json"}, &buf)
	logger.Debug("hello", "n", 1)
	assert.Contains(t, buf.String(), `"msg":"hello"`)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, "DEBUG", parseLevel("debug").String())
	assert.Equal(t, "INFO", parseLevel("bogus").String())
	assert.Equal(t, "ERROR", parseLevel("error").String())
}
