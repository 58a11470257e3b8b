package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// EnvConfigPath names the environment variable that points at a config file.
const EnvConfigPath = "WATCHSYNC_CONFIG"

// DefaultPath is where `config init` writes and the third discovery
// candidate: $XDG_CONFIG_HOME/watchsync/config.toml, falling back to
// ~/.config.
func DefaultPath() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "./config.toml"
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "watchsync", "config.toml")
}

// Discover picks the config file. An explicit path (the --config flag) wins,
// then WATCHSYNC_CONFIG; both must exist. Otherwise the first existing file
// among ./config.toml, DefaultPath() and /etc/watchsync/config.toml is used.
func Discover(explicit string) (string, error) {
	if explicit != "" {
		return mustExist("--config", explicit)
	}
	if env := os.Getenv(EnvConfigPath); env != "" {
		return mustExist(EnvConfigPath, env)
	}

	searched := []string{"./config.toml", DefaultPath(), "/etc/watchsync/config.toml"}
	for _, p := range searched {
		if fileExists(p) {
			return p, nil
		}
	}
	return "", fmt.Errorf("no config file found (searched %s); run `watchsync config init` to create one",
		strings.Join(searched, ", "))
}

func mustExist(source, path string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("config from %s: %w", source, err)
	}
	return path, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
