package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate keeps the developer's own user config out of the test.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
}

// =============================================================================
// TS01: Defaults
// =============================================================================

func TestNewConfig_ReturnsDefaults(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, 60, cfg.Retrieval.RRFConstant)
	assert.Equal(t, 3, cfg.Retrieval.OversampleFactor)
	assert.Equal(t, 5, cfg.Retrieval.DefaultTopK)
	assert.Equal(t, "sqlite", cfg.Retrieval.FullTextBackend)
	assert.Equal(t, "hnsw", cfg.Retrieval.VectorBackend)
	assert.Equal(t, 10, cfg.Agent.MaxSteps)
	assert.Equal(t, 3, cfg.Agent.HistoryWindow)
	assert.Equal(t, "https://openrouter.ai/api/v1", cfg.LLM.BaseURL)
	assert.Equal(t, "anthropic/claude-3.5-sonnet", cfg.LLM.Model)
	assert.Equal(t, "30m", cfg.Cache.TTL)
	require.NoError(t, cfg.Validate())
}

// =============================================================================
// TS02: Layered loading
// =============================================================================

func TestLoad_NoFiles_UsesDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load(t.TempDir())

	require.NoError(t, err)
	assert.Equal(t, NewConfig().Retrieval, cfg.Retrieval)
}

func TestLoad_ProjectOverridesUser(t *testing.T) {
	// Given: user config sets k=40 and steps=4, project config sets k=80
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	userPath := filepath.Join(xdg, "tradingrag", "config.yaml")
	require.NoError(t, os.MkdirAll(filepath.Dir(userPath), 0o755))
	require.NoError(t, os.WriteFile(userPath, []byte("retrieval:\n  rrf_constant: 40\nagent:\n  max_steps: 4\n"), 0o644))

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ProjectFileName),
		[]byte("retrieval:\n  rrf_constant: 80\n  fulltext_backend: bleve\n"), 0o644))

	// When: loading
	cfg, err := Load(dir)

	// Then: project wins where set, user fills the rest
	require.NoError(t, err)
	assert.Equal(t, 80, cfg.Retrieval.RRFConstant)
	assert.Equal(t, "bleve", cfg.Retrieval.FullTextBackend)
	assert.Equal(t, 4, cfg.Agent.MaxSteps)
	assert.Equal(t, 3, cfg.Retrieval.OversampleFactor)
}

func TestLoad_EnvOverridesFiles(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ProjectFileName),
		[]byte("retrieval:\n  oversample_factor: 2\n"), 0o644))

	t.Setenv("TRADINGRAG_OVERSAMPLE_FACTOR", "5")
	t.Setenv("TRADINGRAG_LLM_API_KEY", "sk-test")
	t.Setenv("TRADINGRAG_CACHE_BACKEND", "redis")

	cfg, err := Load(dir)

	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Retrieval.OversampleFactor)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.Equal(t, "redis", cfg.Cache.Backend)
}

func TestLoad_InvalidYAML(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ProjectFileName), []byte("retrieval: [oops"), 0o644))

	_, err := Load(dir)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

// =============================================================================
// TS03: Validation
// =============================================================================

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"zero rrf", func(c *Config) { c.Retrieval.RRFConstant = 0 }, "rrf_constant"},
		{"zero oversample", func(c *Config) { c.Retrieval.OversampleFactor = 0 }, "oversample_factor"},
		{"bad fulltext", func(c *Config) { c.Retrieval.FullTextBackend = "lucene" }, "fulltext_backend"},
		{"bad vector", func(c *Config) { c.Retrieval.VectorBackend = "faiss" }, "vector_backend"},
		{"bad embedder", func(c *Config) { c.Embeddings.Provider = "llama" }, "embeddings.provider"},
		{"bad steps", func(c *Config) { c.Agent.MaxSteps = 0 }, "max_steps"},
		{"bad temperature", func(c *Config) { c.LLM.Temperature = 3 }, "temperature"},
		{"bad ttl", func(c *Config) { c.Cache.TTL = "soon" }, "cache.ttl"},
		{"bad log level", func(c *Config) { c.Server.LogLevel = "loud" }, "log_level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)

			err := cfg.Validate()

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

// =============================================================================
// TS04: Helpers
// =============================================================================

func TestResolve_AnchorsRelativePaths(t *testing.T) {
	cfg := NewConfig()
	cfg.Paths.ChromemDir = "/abs/chromem"

	resolved := cfg.Resolve("/project")

	assert.Equal(t, filepath.Join("/project", "data", "metadata.db"), resolved.Paths.Database)
	assert.Equal(t, "/abs/chromem", resolved.Paths.ChromemDir)
	assert.Equal(t, filepath.Join("data", "metadata.db"), cfg.Paths.Database, "original untouched")
}

func TestDuration(t *testing.T) {
	assert.Equal(t, 30*time.Minute, Duration("30m", time.Second))
	assert.Equal(t, time.Second, Duration("", time.Second))
	assert.Equal(t, time.Second, Duration("nope", time.Second))
}

func TestWriteYAML_RoundTripsWithoutSecrets(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	cfg := NewConfig()
	cfg.Agent.MaxSteps = 7
	cfg.LLM.APIKey = "secret"

	require.NoError(t, cfg.WriteYAML(filepath.Join(dir, ProjectFileName)))

	data, err := os.ReadFile(filepath.Join(dir, ProjectFileName))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "secret")

	loaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 7, loaded.Agent.MaxSteps)
}

func TestBackupFile_KeepsNewest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	name, err := BackupFile(path)
	require.NoError(t, err)
	assert.Empty(t, name, "missing file has nothing to back up")

	require.NoError(t, os.WriteFile(path, []byte("version: 1\n"), 0o644))
	for i := 0; i < MaxBackups+2; i++ {
		_, err := BackupFile(path)
		require.NoError(t, err)
		time.Sleep(2 * time.Millisecond)
	}

	backups, err := ListBackups(path)
	require.NoError(t, err)
	assert.Len(t, backups, MaxBackups)
}
