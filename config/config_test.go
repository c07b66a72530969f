package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/wifiprov/pairing"
	"github.com/user/wifiprov/provision"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("WIFIPROV_DIR", dir)

	cfg, err := Load(filepath.Join(dir, "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, "mpy", cfg.Name)
	assert.Equal(t, BackendSim, cfg.Backend)
	assert.Equal(t, provision.DefaultPollInterval, cfg.PollInterval)
	assert.True(t, cfg.TeardownOnConnected)
	assert.Equal(t, filepath.Join(dir, "profiles.yaml"), cfg.ProfilePath())
}

func TestLoadFileThenEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: kitchen
join_timeout: 20s
io_capability: NoInputNoOutput
teardown_on_connected: false
`), 0o600))

	t.Setenv("WIFIPROV_JOIN_TIMEOUT", "3s")
	t.Setenv("WIFIPROV_MITM", "true")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "kitchen", cfg.Name)
	assert.Equal(t, 3*time.Second, cfg.JoinTimeout, "environment wins over the file")
	assert.False(t, cfg.TeardownOnConnected)

	sec, err := cfg.Security()
	require.NoError(t, err)
	assert.Equal(t, pairing.Security{IO: pairing.IONoInputOutput, MITM: true}, sec)
}

func TestLoadRejectsBadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: [unterminated"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"backend", func(c *Config) { c.Backend = "usb" }},
		{"name", func(c *Config) { c.Name = "" }},
		{"appearance", func(c *Config) { c.Appearance = 70000 }},
		{"poll interval", func(c *Config) { c.PollInterval = 0 }},
		{"io capability", func(c *Config) { c.IOCapability = "telepathy" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	assert.NoError(t, Default().Validate())
}

func TestProvisionConfig(t *testing.T) {
	cfg := Default()
	cfg.Appearance = 0x0340
	cfg.SkipIfConnected = false

	pc, err := cfg.Provision()
	require.NoError(t, err)
	assert.Equal(t, int16(0x0340), pc.Appearance)
	assert.Equal(t, byte(provision.DefaultRevision), pc.Revision)
	assert.Equal(t, pairing.DefaultSecurity, pc.Security)
	assert.False(t, pc.SkipIfConnected)
	assert.True(t, pc.TeardownOnConnected)
}
