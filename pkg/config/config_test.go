package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CONFIG_FILE", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "gemini-2.5-flash", cfg.Gemini.PrimaryModel)
	assert.Equal(t, "gemini-2.0-flash", cfg.Gemini.FallbackModel)
	assert.Equal(t, 5, cfg.Extraction.PagesPerChunk)
	assert.Equal(t, 200, cfg.Extraction.BatchLimit)
	assert.Equal(t, 2*time.Second, cfg.Extraction.PollInterval)
	assert.Equal(t, 59*time.Minute+59*time.Second, cfg.Extraction.TurnTimeout)
	assert.True(t, cfg.Extraction.ContinueOnProgress)
	assert.Equal(t, 200, cfg.Redaction.DPI)
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
gemini:
  primary_model: gemini-2.5-pro
extraction:
  pages_per_chunk: 3
  poll_interval: 500ms
redaction:
  debug: true
`), 0o600))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("EXTRACTION_PAGES_PER_CHUNK", "8")
	t.Setenv("EXTRACTION_REQUESTS_PER_MINUTE", "30")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "gemini-2.5-pro", cfg.Gemini.PrimaryModel)
	assert.Equal(t, 8, cfg.Extraction.PagesPerChunk, "environment wins over the file")
	assert.Equal(t, 500*time.Millisecond, cfg.Extraction.PollInterval)
	assert.Equal(t, 30.0, cfg.Extraction.RequestsPerMinute)
	assert.True(t, cfg.Redaction.Debug)
	assert.Equal(t, 200, cfg.Extraction.BatchLimit, "unset keys keep defaults")
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("CONFIG_FILE", "")
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("REDACTION_DPI=150\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("REDACTION_DPI") })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 150, cfg.Redaction.DPI)
}

func TestLoad_InvalidFile(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))

	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())

	cfg.Extraction.PagesPerChunk = 0
	cfg.Gemini.PrimaryModel = ""
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "EXTRACTION_PAGES_PER_CHUNK")
	assert.Contains(t, err.Error(), "GEMINI_MODEL")
}

func TestRequireGemini(t *testing.T) {
	cfg := Defaults()
	assert.Error(t, cfg.RequireGemini())
	cfg.Gemini.APIKey = "key"
	assert.NoError(t, cfg.RequireGemini())
}

func TestGetters(t *testing.T) {
	t.Setenv("X_INT", "nope")
	t.Setenv("X_DUR", "90s")
	t.Setenv("X_FLOAT", "1.5")
	t.Setenv("X_BOOL", "false")

	assert.Equal(t, 7, getEnvAsInt("X_INT", 7))
	assert.Equal(t, 90*time.Second, getEnvAsDuration("X_DUR", time.Second))
	assert.Equal(t, 1.5, getEnvAsFloat("X_FLOAT", 0))
	assert.False(t, getEnvAsBool("X_BOOL", true))
	assert.Equal(t, "fallback", getEnv("X_MISSING", "fallback"))
}

func TestDSN(t *testing.T) {
	d := Defaults().Database
	assert.Equal(t, "host=localhost port=5432 user=postgres password=postgres dbname=bankstatement2csv sslmode=disable", d.DSN())
}
