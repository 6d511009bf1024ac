package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sunyxi/salesforce-flow-cli/internal/config"
)

// newDefaultTarget returns a Config with known non-zero values so tests can
// verify that absent overlay keys leave the original values intact.
func newDefaultTarget() *config.Config {
	return &config.Config{
		Auth: config.AuthConfig{Method: "jwt", ClientID: "base-client"},
		Batch: config.BatchSettings{
			MaxConcurrent:    3,
			RateLimitDelayMS: 1000,
			TimeoutSeconds:   300,
			RetryProfile:     "default",
		},
		Logging: config.LoggingConfig{Level: "info", Format: "json"},
		Flows: config.FlowsConfig{
			Production: []string{"Prod_Flow"},
			Sandbox:    []string{"Sandbox_Flow"},
		},
		Cache: config.CacheConfig{Enabled: true, TTLSeconds: 300},
	}
}

// writeOverlay is a test helper that writes content to a temp file and returns its path.
func writeOverlay(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestShallowMergeYAML_SingleKeyOverride(t *testing.T) {
	target := newDefaultTarget()
	overlay := writeOverlay(t, "overlay.yaml", `
logging:
  level: debug
`)

	require.NoError(t, config.ShallowMergeYAML(target, overlay))

	assert.Equal(t, "debug", target.Logging.Level)
	// The section is replaced, not merged.
	assert.Empty(t, target.Logging.Format)

	// Other sections should be unchanged.
	assert.Equal(t, "base-client", target.Auth.ClientID)
	assert.Equal(t, 3, target.Batch.MaxConcurrent)
	assert.True(t, target.Cache.Enabled)
}

func TestShallowMergeYAML_MultipleKeyOverride(t *testing.T) {
	target := newDefaultTarget()
	overlay := writeOverlay(t, "overlay.yaml", `
auth:
  method: oauth
  client_id: overlay-client
batch:
  max_concurrent: 8
  timeout_seconds: 60
  max_retries: 0
cache:
  enabled: false
`)

	require.NoError(t, config.ShallowMergeYAML(target, overlay))

	assert.Equal(t, "oauth", target.Auth.Method)
	assert.Equal(t, "overlay-client", target.Auth.ClientID)
	assert.Equal(t, 8, target.Batch.MaxConcurrent)
	require.NotNil(t, target.Batch.MaxRetries)
	assert.Equal(t, 0, *target.Batch.MaxRetries)
	assert.False(t, target.Cache.Enabled)
	assert.Equal(t, "info", target.Logging.Level)
}

func TestShallowMergeYAML_FlowsMergePerEnvironment(t *testing.T) {
	target := newDefaultTarget()
	overlay := writeOverlay(t, "overlay.yaml", `
flows:
  sandbox:
    - New_Sandbox_Flow
`)

	require.NoError(t, config.ShallowMergeYAML(target, overlay))

	assert.Equal(t, []string{"Prod_Flow"}, target.Flows.Production)
	assert.Equal(t, []string{"New_Sandbox_Flow"}, target.Flows.Sandbox)
}

func TestShallowMergeYAML_JSONOverlay(t *testing.T) {
	target := newDefaultTarget()
	overlay := writeOverlay(t, "overlay.json", `{"batch": {"max_concurrent": 2, "timeout_seconds": 30}}`)

	require.NoError(t, config.ShallowMergeYAML(target, overlay))
	assert.Equal(t, 2, target.Batch.MaxConcurrent)
	assert.Equal(t, 30, target.Batch.TimeoutSeconds)
}

func TestShallowMergeYAML_UnknownKeysIgnored(t *testing.T) {
	target := newDefaultTarget()
	overlay := writeOverlay(t, "overlay.yaml", `
future_section:
  enabled: true
`)

	require.NoError(t, config.ShallowMergeYAML(target, overlay))
	assert.Equal(t, newDefaultTarget(), target)
}

func TestShallowMergeYAML_EmptyFile(t *testing.T) {
	target := newDefaultTarget()
	overlay := writeOverlay(t, "overlay.yaml", "# only a comment\n")

	require.NoError(t, config.ShallowMergeYAML(target, overlay))
	assert.Equal(t, newDefaultTarget(), target)
}

func TestShallowMergeYAML_Errors(t *testing.T) {
	require.Error(t, config.ShallowMergeYAML(nil, "whatever.yaml"))

	err := config.ShallowMergeYAML(newDefaultTarget(), filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading overlay file")

	bad := writeOverlay(t, "bad.yaml", "auth: [unterminated\n")
	err = config.ShallowMergeYAML(newDefaultTarget(), bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing overlay YAML")

	wrongType := writeOverlay(t, "wrong.yaml", "batch:\n  max_concurrent: many\n")
	err = config.ShallowMergeYAML(newDefaultTarget(), wrongType)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `applying overlay section "batch"`)
}

func TestLoadFlowsFile(t *testing.T) {
	target := newDefaultTarget()
	path := writeOverlay(t, "flows.json", `{
  "flows": {"production": ["A_Flow", "B_Flow"]},
  "batch": {"max_concurrent": 9}
}`)

	require.NoError(t, target.LoadFlowsFile(path))
	assert.Equal(t, []string{"A_Flow", "B_Flow"}, target.Flows.Production)
	assert.Equal(t, []string{"Sandbox_Flow"}, target.Flows.Sandbox)
	assert.Equal(t, 3, target.Batch.MaxConcurrent, "non-flow sections are ignored")

	noFlows := writeOverlay(t, "none.yaml", "batch:\n  max_concurrent: 4\n")
	require.NoError(t, target.LoadFlowsFile(noFlows))

	err := target.LoadFlowsFile(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load flows configuration")
}
