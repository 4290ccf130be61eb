package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_FillsSaneResourceLimits(t *testing.T) {
	cfg := Default()
	assert.Equal(t, int64(30_000), cfg.Sandbox.TimeoutMs)
	assert.Equal(t, "file", cfg.Queue.Backend)
	assert.Equal(t, "json", cfg.SIEM.Format)
}

func TestLoad_NoPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Sandbox.MemoryMB, cfg.Sandbox.MemoryMB)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlBody := "siem:\n  endpoint: https://siem.example.com/ingest\n  rate_limit_per_sec: 10\nqueue:\n  dir: /var/lib/cellwarden/queue\n"
	require.NoError(t, os.WriteFile(path, []byte(yamlBody), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://siem.example.com/ingest", cfg.SIEM.Endpoint)
	assert.Equal(t, 10, cfg.SIEM.RateLimitPerSec)
	assert.Equal(t, "/var/lib/cellwarden/queue", cfg.Queue.Dir)
	assert.Equal(t, "json", cfg.SIEM.Format, "unset fields keep their Default() value")
}

func TestLoad_EnvOverridesDefaults(t *testing.T) {
	t.Setenv("CELLWARDEN_SIEM_ENDPOINT", "https://siem.env.example.com/ingest")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "https://siem.env.example.com/ingest", cfg.SIEM.Endpoint)
}

func TestLoad_MissingFileErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestMergeConfigs_BooleanFalseOverrideRespected(t *testing.T) {
	base := Default()
	base.DLP.RestrictedAllowed = true
	override := &Config{DLP: DLPConfig{RestrictedAllowed: false}}
	raw := map[string]any{"dlp": map[string]any{"restricted_allowed": false}}

	mergeConfigs(base, override, raw)
	assert.False(t, base.DLP.RestrictedAllowed)
}

func TestMergeConfigs_UnsetBooleanPreservesBase(t *testing.T) {
	base := Default()
	base.DLP.RestrictedAllowed = true
	override := &Config{}
	raw := map[string]any{}

	mergeConfigs(base, override, raw)
	assert.True(t, base.DLP.RestrictedAllowed)
}

func TestResolveQueueDir_UsesExplicitConfig(t *testing.T) {
	cfg := Default()
	cfg.Queue.Dir = "/tmp/explicit-queue-dir"
	assert.Equal(t, "/tmp/explicit-queue-dir", ResolveQueueDir(cfg))
}

func TestResolveQueueDir_FallsBackWhenUnset(t *testing.T) {
	dir := ResolveQueueDir(Default())
	assert.NotEmpty(t, dir)
}

func TestBoolFieldSet_DetectsNestedPresence(t *testing.T) {
	raw := map[string]any{"dlp": map[string]any{"restricted_allowed": false}}
	assert.True(t, boolFieldSet(raw, "dlp", "restricted_allowed"))
	assert.False(t, boolFieldSet(raw, "dlp", "policy_path"))
	assert.False(t, boolFieldSet(raw, "siem", "endpoint"))
}
