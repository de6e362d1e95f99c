package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/recall/internal/config"
)

func TestLoadConfig_DefaultHostIsLocalhost(t *testing.T) {
	_ = os.Unsetenv("RECALL_HOST")
	t.Setenv("RECALL_DATABASE_URL", "postgres://localhost/recall_test")

	cfg, err := config.LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host,
		"Default host must be 127.0.0.1 for security")
	assert.Equal(t, 7373, cfg.Server.Port)
	assert.Equal(t, 1536, cfg.Storage.EmbeddingDim)
}

func TestLoadConfig_CanOverrideHost(t *testing.T) {
	t.Setenv("RECALL_DATABASE_URL", "postgres://localhost/recall_test")
	t.Setenv("RECALL_HOST", "0.0.0.0")

	cfg, err := config.LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
}

func TestLoadConfig_RequiresDSN(t *testing.T) {
	_ = os.Unsetenv("RECALL_DATABASE_URL")

	_, err := config.LoadConfig("")
	assert.Error(t, err, "missing DSN must be rejected at load time")
}

func TestLoadConfig_YAMLFileOverridesDefaults(t *testing.T) {
	_ = os.Unsetenv("RECALL_PORT")
	t.Setenv("RECALL_DATABASE_URL", "postgres://localhost/recall_test")

	path := filepath.Join(t.TempDir(), "recall.yaml")
	data := []byte("server:\n  port: 9999\nretrieval:\n  tokenBudget: 2000\n")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, 2000, cfg.Retrieval.TokenBudget)
}

func TestLoadConfig_EnvOverridesYAML(t *testing.T) {
	t.Setenv("RECALL_DATABASE_URL", "postgres://localhost/recall_test")
	t.Setenv("RECALL_PORT", "8701")

	path := filepath.Join(t.TempDir(), "recall.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9999\n"), 0o600))

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 8701, cfg.Server.Port,
		"environment variables take precedence over the config file")
}

func TestLoadConfig_MissingFileIsAnError(t *testing.T) {
	t.Setenv("RECALL_DATABASE_URL", "postgres://localhost/recall_test")

	_, err := config.LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadConfig_RetrievalDefaults(t *testing.T) {
	t.Setenv("RECALL_DATABASE_URL", "postgres://localhost/recall_test")

	cfg, err := config.LoadConfig("")
	require.NoError(t, err)
	assert.InDelta(t, 0.1, cfg.Retrieval.RerankThreshold, 1e-9)
	assert.InDelta(t, 0.05, cfg.Retrieval.ExploratoryThreshold, 1e-9)
	assert.Equal(t, 4000, cfg.Retrieval.TokenBudget)
	assert.Equal(t, 4, cfg.Retrieval.TokenDivisor)
	assert.Equal(t, 2, cfg.Retrieval.CompactMinEpisodes)
	assert.True(t, cfg.Retrieval.EnableReranking)
}

func TestLoadConfig_TokenDivisorFromEnv(t *testing.T) {
	t.Setenv("RECALL_DATABASE_URL", "postgres://localhost/recall_test")
	t.Setenv("RECALL_TOKEN_DIVISOR", "3")

	cfg, err := config.LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Retrieval.TokenDivisor)
}

func TestLoadConfig_InvalidEnvIntFallsBack(t *testing.T) {
	t.Setenv("RECALL_DATABASE_URL", "postgres://localhost/recall_test")
	t.Setenv("RECALL_PORT", "not-a-number")

	cfg, err := config.LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, 7373, cfg.Server.Port)
}
