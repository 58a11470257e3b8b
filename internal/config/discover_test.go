package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("[log]\n"), 0o600))
	return path
}

// inEmptyDir runs the test from an empty working directory with no
// environment override and an XDG home under tmp.
func inEmptyDir(t *testing.T) string {
	t.Helper()
	tmp := t.TempDir()
	t.Chdir(tmp)
	t.Setenv(EnvConfigPath, "")
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmp, "xdg"))
	return tmp
}

func TestDefaultPath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/srv/conf")
	assert.Equal(t, "/srv/conf/watchsync/config.toml", DefaultPath())

	t.Setenv("XDG_CONFIG_HOME", "")
	assert.Contains(t, DefaultPath(), filepath.Join(".config", "watchsync", "config.toml"))
}

func TestDiscover_Precedence(t *testing.T) {
	tmp := inEmptyDir(t)
	flagPath := writeFile(t, filepath.Join(tmp, "flag.toml"))
	envPath := writeFile(t, filepath.Join(tmp, "env.toml"))
	writeFile(t, filepath.Join(tmp, "config.toml"))
	xdgPath := writeFile(t, filepath.Join(tmp, "xdg", "watchsync", "config.toml"))

	t.Setenv(EnvConfigPath, envPath)
	got, err := Discover(flagPath)
	require.NoError(t, err)
	assert.Equal(t, flagPath, got, "--config beats the environment")

	got, err = Discover("")
	require.NoError(t, err)
	assert.Equal(t, envPath, got, "environment beats the search path")

	t.Setenv(EnvConfigPath, "")
	got, err = Discover("")
	require.NoError(t, err)
	assert.Equal(t, "./config.toml", got, "working directory beats XDG")

	require.NoError(t, os.Remove(filepath.Join(tmp, "config.toml")))
	got, err = Discover("")
	require.NoError(t, err)
	assert.Equal(t, xdgPath, got)
}

func TestDiscover_ExplicitPathMustExist(t *testing.T) {
	tmp := inEmptyDir(t)
	writeFile(t, filepath.Join(tmp, "config.toml"))

	_, err := Discover(filepath.Join(tmp, "missing.toml"))
	require.Error(t, err, "a missing --config file never falls back to the search path")
	assert.Contains(t, err.Error(), "--config")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestDiscover_EnvPathMustExist(t *testing.T) {
	inEmptyDir(t)
	t.Setenv(EnvConfigPath, "/nonexistent/watchsync.toml")

	_, err := Discover("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), EnvConfigPath)
}

func TestDiscover_NothingFound(t *testing.T) {
	inEmptyDir(t)
	// A directory named config.toml is not a config file.
	require.NoError(t, os.Mkdir("config.toml", 0o755))

	_, err := Discover("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no config file found")
	assert.Contains(t, err.Error(), "watchsync config init")
}
