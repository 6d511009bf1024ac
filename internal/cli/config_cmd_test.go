package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sunyxi/salesforce-flow-cli/internal/config"
)

func TestConfigShow(t *testing.T) {
	setupHome(t)
	env := testEnv(nil, map[string]string{config.EnvClientSecret: "s3cr3t-value"})

	res := runCLI(t, env, "", "config", "show")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "client_id: client")
	assert.Contains(t, res.stdout, "********")
	assert.NotContains(t, res.stdout, "s3cr3t-value")
}

func TestConfigGet(t *testing.T) {
	setupHome(t)

	res := runCLI(t, testEnv(nil, nil), "", "config", "get", "api.version")
	require.NoError(t, res.err)
	assert.Equal(t, config.DefaultAPIVersion+"\n", res.stdout)

	res = runCLI(t, testEnv(nil, nil), "", "config", "get", "auth.password")
	require.NoError(t, res.err)
	assert.Equal(t, "********\n", res.stdout)

	res = runCLI(t, testEnv(nil, nil), "", "config", "get", "nope.key")
	assert.ErrorIs(t, res.err, config.ErrUnknownKey)
}

func TestConfigInitAndSet(t *testing.T) {
	home := setupHome(t)
	path := filepath.Join(home, "config.yaml")

	res := runCLI(t, testEnv(nil, nil), "", "config", "init")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "Configuration file: "+path)
	require.FileExists(t, path)

	res = runCLI(t, testEnv(nil, nil), "", "config", "init")
	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), "already exists")

	res = runCLI(t, testEnv(nil, nil), "", "config", "init", "--force")
	require.NoError(t, res.err)

	res = runCLI(t, testEnv(nil, nil), "", "config", "set", "batch.max_concurrent", "7")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "Set batch.max_concurrent = 7")

	res = runCLI(t, testEnv(nil, nil), "", "config", "set", "flows.sandbox", "[Flow_A, Flow_B]")
	require.NoError(t, res.err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "max_concurrent: 7")
	assert.NotContains(t, string(data), "secret", "environment credentials are not persisted")

	res = runCLI(t, testEnv(nil, nil), "", "config", "get", "flows.sandbox")
	require.NoError(t, res.err)
	assert.Equal(t, "- Flow_A\n- Flow_B\n", res.stdout)

	res = runCLI(t, testEnv(nil, nil), "", "config", "set", "batch", "1")
	require.Error(t, res.err)
}

func TestConfigSet_ExplicitPath(t *testing.T) {
	setupHome(t)
	path := filepath.Join(t.TempDir(), "team.yaml")
	require.NoError(t, os.WriteFile(path, []byte("api:\n  version: \"59.0\"\n  timeout_seconds: 30\n"), 0o600))

	res := runCLI(t, testEnv(nil, nil), "", "--config", path, "config", "set", "api.timeout_seconds", "45")
	require.NoError(t, res.err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "timeout_seconds: 45")
	assert.Contains(t, string(data), "59.0")
}

func TestConfigValidate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		setupHome(t)
		res := runCLI(t, testEnv(nil, nil), "", "-v", "config", "validate")
		require.NoError(t, res.err)
		assert.Contains(t, res.stdout, "✅ Configuration is valid")
		assert.Contains(t, res.stdout, "Auth method: oauth")
	})

	t.Run("problems", func(t *testing.T) {
		setupHome(t)
		env := testEnv(nil, map[string]string{config.EnvClientSecret: "", config.EnvPassword: "", config.EnvMaxConcurrent: "0"})
		res := runCLI(t, env, "", "config", "validate")
		requireExitCode(t, res.err, 1)
		assert.Contains(t, res.stderr, "❌ Configuration has")
		assert.Contains(t, res.stderr, "max_concurrent must be between")
		assert.GreaterOrEqual(t, strings.Count(res.stderr, "  - "), 2)
	})
}
