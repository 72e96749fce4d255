package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/entitystorego/internal/config"
	"github.com/vk/entitystorego/internal/testutil"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "session.hcl")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_AuthorityDefaults(t *testing.T) {
	t.Parallel()
	ctx, _ := testutil.Context(t)

	path := writeConfig(t, `
session {
  role = "authority"
}
`)

	cfg, err := config.Load(ctx, path)
	require.NoError(t, err)

	assert.Equal(t, config.RoleAuthority, cfg.Role)
	assert.Equal(t, ":8177", cfg.ListenAddr)
	assert.Equal(t, "data", cfg.DataDir)
	assert.Equal(t, 5*time.Minute, cfg.SaveInterval)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, filepath.Join("data", "entitydata.json"), cfg.DataFile())
}

func TestLoad_AuthorityExplicit(t *testing.T) {
	t.Parallel()
	ctx, _ := testutil.Context(t)

	path := writeConfig(t, `
session {
  role          = "authority"
  listen_addr   = ":9000"
  data_dir      = "/var/lib/entitystore"
  save_interval = "30s"
  log_level     = "debug"
  log_format    = "json"
}
`)

	cfg, err := config.Load(ctx, path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.ListenAddr)
	assert.Equal(t, "/var/lib/entitystore", cfg.DataDir)
	assert.Equal(t, 30*time.Second, cfg.SaveInterval)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestLoad_Replica(t *testing.T) {
	t.Parallel()
	ctx, _ := testutil.Context(t)

	path := writeConfig(t, `
session {
  role          = "replica"
  authority_url = "ws://localhost:8177/sync"
  entity_id     = 42
}
`)

	cfg, err := config.Load(ctx, path)
	require.NoError(t, err)

	assert.Equal(t, config.RoleReplica, cfg.Role)
	assert.Equal(t, "ws://localhost:8177/sync", cfg.AuthorityURL)
	assert.Equal(t, int64(42), cfg.EntityID)
}

func TestLoad_ReplicaRequiresAuthorityURL(t *testing.T) {
	t.Parallel()
	ctx, _ := testutil.Context(t)

	path := writeConfig(t, `
session {
  role      = "replica"
  entity_id = 42
}
`)

	_, err := config.Load(ctx, path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "authority_url")
}

func TestLoad_ReplicaRequiresEntityID(t *testing.T) {
	t.Parallel()
	ctx, _ := testutil.Context(t)

	path := writeConfig(t, `
session {
  role          = "replica"
  authority_url = "ws://localhost:8177/sync"
}
`)

	_, err := config.Load(ctx, path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "entity_id")
}

func TestLoad_InvalidRole(t *testing.T) {
	t.Parallel()
	ctx, _ := testutil.Context(t)

	path := writeConfig(t, `
session {
  role = "observer"
}
`)

	_, err := config.Load(ctx, path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid role")
}

func TestLoad_InvalidSaveInterval(t *testing.T) {
	t.Parallel()
	ctx, _ := testutil.Context(t)

	path := writeConfig(t, `
session {
  role          = "authority"
  save_interval = "soon"
}
`)

	_, err := config.Load(ctx, path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "save_interval")
}

func TestLoad_MalformedHCL(t *testing.T) {
	t.Parallel()
	ctx, _ := testutil.Context(t)

	path := writeConfig(t, `session { role = `)

	_, err := config.Load(ctx, path)
	require.Error(t, err)
}

func TestLoad_MissingSessionBlock(t *testing.T) {
	t.Parallel()
	ctx, _ := testutil.Context(t)

	path := writeConfig(t, "\n")

	_, err := config.Load(ctx, path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session block")
}

func TestLoad_EnvInterpolation(t *testing.T) {
	ctx, _ := testutil.Context(t)

	t.Setenv("ESG_TEST_LISTEN", ":7171")
	path := writeConfig(t, `
session {
  role        = "authority"
  listen_addr = env.ESG_TEST_LISTEN
}
`)

	cfg, err := config.Load(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, ":7171", cfg.ListenAddr)
}
