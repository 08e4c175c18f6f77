package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitFlags(t *testing.T) {
	opts, err := initFlags(nil)
	require.NoError(t, err)
	assert.Equal(t, "config.toml", opts.configPath)
	assert.False(t, opts.configRequired)
	assert.False(t, opts.version)

	opts, err = initFlags([]string{"-c", "prod.yaml", "--version"})
	require.NoError(t, err)
	assert.Equal(t, "prod.yaml", opts.configPath)
	assert.True(t, opts.configRequired)
	assert.True(t, opts.version)

	_, err = initFlags([]string{"--bogus"})
	assert.Error(t, err)
}

func TestConfigFile(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(existing, []byte(""), 0o600))
	missing := filepath.Join(dir, "missing.toml")

	tests := []struct {
		name string
		opts options
		want string
	}{
		{"default present", options{configPath: existing}, existing},
		{"default absent", options{configPath: missing}, ""},
		{"explicit absent", options{configPath: missing, configRequired: true}, missing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.opts.configFile())
		})
	}
}

func TestRunExitCodes(t *testing.T) {
	assert.Equal(t, 0, run([]string{"--version"}))
	assert.Equal(t, 2, run([]string{"--bogus"}))
	assert.Equal(t, 1, run([]string{"-c", filepath.Join(t.TempDir(), "missing.toml")}))
}
