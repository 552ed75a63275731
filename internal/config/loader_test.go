package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "classic", cfg.Protocol.Variant)
	assert.Equal(t, 70, cfg.Protocol.TrialsPerBlock)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
protocol:
  trials_per_block: 40
  seed: 1234
timing:
  trial: 750ms
keys:
  repeat: a
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 40, cfg.Protocol.TrialsPerBlock)
	assert.Equal(t, int64(1234), cfg.Protocol.Seed)
	assert.Equal(t, 750*time.Millisecond, cfg.Timing.Trial.Duration())
	assert.Equal(t, "a", cfg.Keys.Repeat)
	// Untouched values keep their defaults.
	assert.Equal(t, 6, cfg.Protocol.CuesPerBlock)
	assert.Equal(t, "j", cfg.Keys.Cue)
}

func TestLoad_VariantPresetThenExplicitOverride(t *testing.T) {
	path := writeConfig(t, `
protocol:
  variant: brief
  cues_per_block: 4
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	// The preset seeds the sequence parameters...
	assert.Equal(t, 30, cfg.Protocol.TrialsPerBlock)
	// ...and explicit file values still win.
	assert.Equal(t, 4, cfg.Protocol.CuesPerBlock)
}

func TestLoad_UnknownVariant(t *testing.T) {
	path := writeConfig(t, "protocol:\n  variant: quantum\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "protocol:\n  trials_per_block: 40\n")
	t.Setenv("PMBACK_PROTOCOL_TRIALS_PER_BLOCK", "50")
	t.Setenv("PMBACK_KEYS_CUE", "k")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.Protocol.TrialsPerBlock)
	assert.Equal(t, "k", cfg.Keys.Cue)
}

func TestLoad_InvalidConfigRejected(t *testing.T) {
	path := writeConfig(t, "keys:\n  repeat: j\n") // collides with cue default
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "protocol: [unclosed\n")
	_, err := Load(path)
	assert.Error(t, err)
}
