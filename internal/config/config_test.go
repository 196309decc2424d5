package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kotadb/kotadb/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, config.DefaultToolset, cfg.Server.Toolset)
	assert.Equal(t, config.DefaultBaseBranch, cfg.Automation.BaseBranch)
	assert.Equal(t, config.DefaultDataDir, cfg.Automation.DataDir)
	assert.Equal(t, config.DefaultConcurrency, cfg.Automation.Concurrency)
	assert.Equal(t, config.DefaultPhaseTimeout, cfg.Agent.PhaseTimeout)
	assert.Equal(t, "claude", cfg.Agent.Binary)
	assert.Equal(t, config.DefaultLogLevel, cfg.Log.Level)
	assert.True(t, cfg.Log.JSON)

	cwd, err := os.Getwd()
	require.NoError(t, err)
	assert.Equal(t, cwd, cfg.Workspace.Root)
	assert.Equal(t, filepath.Join(cwd, ".kotadb", "kota.db"), cfg.Database.Path)
}

func TestLoad_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
workspace:
  root: /srv/repos/web
server:
  toolset: full
automation:
  repo: acme/web
  concurrency: 5
agent:
  phase_timeout: 10m
domains:
  frontend:
    - src/components/
    - src/pages/
validation:
  test_cmd: ["bun", "test"]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/srv/repos/web", cfg.Workspace.Root)
	assert.Equal(t, "full", cfg.Server.Toolset)
	assert.Equal(t, "acme/web", cfg.Automation.Repo)
	assert.Equal(t, 5, cfg.Automation.Concurrency)
	assert.Equal(t, 10*time.Minute, cfg.Agent.PhaseTimeout)
	assert.Equal(t, []string{"src/components/", "src/pages/"}, cfg.Domains["frontend"])
	assert.Equal(t, []string{"bun", "test"}, cfg.Validation.TestCmd)
	assert.Equal(t, "/srv/repos/web/.kotadb/kota.db", cfg.Database.Path)
}

func TestLoad_WellKnownEnv(t *testing.T) {
	t.Setenv("KOTADB_PATH", "/data/kota.db")
	t.Setenv("KOTADB_CWD", "/srv/repos/web")
	t.Setenv("GITHUB_TOKEN", "ghp_test")
	t.Setenv("ADW_MAX_PARALLEL_AGENTS", "2")
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")

	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, "/data/kota.db", cfg.Database.Path)
	assert.Equal(t, "/srv/repos/web", cfg.Workspace.Root)
	assert.Equal(t, "ghp_test", cfg.Automation.GitHubToken)
	assert.Equal(t, 2, cfg.Automation.Concurrency)
	assert.Equal(t, "sk-test", cfg.Agent.AnthropicAPIKey)
}

func TestLoad_AllowedOriginsFromEnv(t *testing.T) {
	t.Setenv("KOTA_ALLOWED_ORIGINS", "http://localhost:3000,https://app.example.com")

	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, []string{"http://localhost:3000", "https://app.example.com"}, cfg.Server.AllowedOrigins)
}

func TestLoad_PrefixedEnvOverridesDefault(t *testing.T) {
	t.Setenv("KOTADB_SERVER_TOOLSET", "memory")

	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Server.Toolset)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	assert.NoError(t, cfg.Validate(), "empty repo is allowed when automation is unused")

	cfg.Automation.Repo = "acme"
	assert.ErrorIs(t, cfg.Validate(), config.ErrInvalidRepo)

	cfg.Automation.Repo = "acme/"
	assert.ErrorIs(t, cfg.Validate(), config.ErrInvalidRepo)

	cfg.Automation.Repo = "acme/web"
	cfg.Automation.Concurrency = -1
	assert.ErrorIs(t, cfg.Validate(), config.ErrInvalidConcurrency)

	cfg.Automation.Concurrency = 3
	assert.NoError(t, cfg.Validate())
}
