package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paul-envs/internal/envgen"
)

var settings = []string{
	"PAUL_ENVS_DATA_DIR", "PAUL_ENVS_CONFIGS_DIR", "PAUL_ENVS_LAUNCHER", "PAUL_ENVS_BASE_IMAGE", "PAUL_ENVS_DEBUG",
	"PAUL_ENVS_UID", "PAUL_ENVS_GID", "PAUL_ENVS_USERNAME", "PAUL_ENVS_SHELL",
	"PAUL_ENVS_NODEJS", "PAUL_ENVS_RUST", "PAUL_ENVS_PYTHON", "PAUL_ENVS_GO",
	"PAUL_ENVS_NEOVIM", "PAUL_ENVS_STARSHIP", "PAUL_ENVS_ATUIN", "PAUL_ENVS_MISE", "PAUL_ENVS_ZELLIJ",
	"PAUL_ENVS_WASM", "PAUL_ENVS_SUDO", "PAUL_ENVS_PACKAGES", "PAUL_ENVS_GIT_NAME", "PAUL_ENVS_GIT_EMAIL",
	"PAUL_ENVS_MEMORY",
}

// clearSettings unsets every setting for the test and restores them after
func clearSettings(t *testing.T) {
	t.Helper()
	for _, key := range settings {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("XDG_DATA_HOME", t.TempDir())
}

func TestLoad_Defaults(t *testing.T) {
	clearSettings(t)

	cfg := Load()
	assert.Equal(t, filepath.Join(os.Getenv("XDG_DATA_HOME"), "paul-envs"), cfg.DataDir)
	assert.Equal(t, filepath.Join(cfg.DataDir, "configs"), cfg.ConfigsDir)
	assert.Empty(t, cfg.Launcher)
	assert.Equal(t, envgen.DefaultBaseImage, cfg.BaseImage)
	assert.False(t, cfg.Debug)
}

func TestLoad_Environment(t *testing.T) {
	clearSettings(t)
	t.Setenv("PAUL_ENVS_DATA_DIR", "/srv/envs")
	t.Setenv("PAUL_ENVS_LAUNCHER", "/usr/local/bin/paul-envs.sh")
	t.Setenv("PAUL_ENVS_DEBUG", "true")

	cfg := Load()
	assert.Equal(t, "/srv/envs", cfg.DataDir)
	assert.Equal(t, "/srv/envs/configs", cfg.ConfigsDir)
	assert.Equal(t, "/usr/local/bin/paul-envs.sh", cfg.Launcher)
	assert.True(t, cfg.Debug)
}

func TestLoad_DefaultsFile(t *testing.T) {
	clearSettings(t)
	dir := filepath.Join(os.Getenv("XDG_CONFIG_HOME"), "paul-envs")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, defaultsFile),
		[]byte("PAUL_ENVS_SHELL=fish\nPAUL_ENVS_STARSHIP=true\nPAUL_ENVS_NODEJS=22\n"), 0644))
	// variables already set win over the file
	t.Setenv("PAUL_ENVS_NODEJS", "20")

	p := Load().Defaults()
	assert.Equal(t, "fish", p.Shell)
	assert.True(t, p.Starship)
	assert.Equal(t, "20", p.Node)
}

func TestLoad_MalformedDefaultsFile(t *testing.T) {
	clearSettings(t)
	dir := filepath.Join(os.Getenv("XDG_CONFIG_HOME"), "paul-envs")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, defaultsFile), []byte("PAUL_ENVS_SHELL=\"fish\n"), 0644))

	var logs bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&logs, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	p := Load().Defaults()
	assert.Equal(t, envgen.DefaultParams().Shell, p.Shell)
	assert.Contains(t, logs.String(), "Ignoring unreadable settings file")
	assert.Contains(t, logs.String(), defaultsFile)
}

func TestLoad_MissingFilesAreSilent(t *testing.T) {
	clearSettings(t)

	var logs bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&logs, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	Load()
	assert.NotContains(t, logs.String(), "Ignoring unreadable settings file")
}

func TestDefaults(t *testing.T) {
	clearSettings(t)
	t.Setenv("PAUL_ENVS_UID", "1500")
	t.Setenv("PAUL_ENVS_GID", "oops")
	t.Setenv("PAUL_ENVS_MISE", "false")
	t.Setenv("PAUL_ENVS_ATUIN", "maybe")
	t.Setenv("PAUL_ENVS_GO", "1.23")
	t.Setenv("PAUL_ENVS_PACKAGES", "ripgrep jq")
	t.Setenv("PAUL_ENVS_BASE_IMAGE", "debian:12")

	p := Load().Defaults()
	assert.Equal(t, 1500, p.UID)
	assert.Equal(t, hostID(os.Getgid()), p.GID)
	assert.False(t, p.Mise)
	assert.False(t, p.Atuin)
	assert.Equal(t, "1.23", p.Go)
	assert.Equal(t, envgen.VersionNone, p.Node)
	assert.Equal(t, "ripgrep jq", p.Packages)
	assert.Equal(t, "debian:12", p.BaseImage)
	assert.Equal(t, envgen.DefaultUsername, p.Username)
}

func TestHostID(t *testing.T) {
	assert.Equal(t, envgen.DefaultUID, hostID(0))
	assert.Equal(t, envgen.DefaultUID, hostID(-1))
	assert.Equal(t, 501, hostID(501))
}
