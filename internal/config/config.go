// Package config handles TOML configuration loading with environment variable substitution.
package config

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the root configuration structure.
type Config struct {
	Log        LogConfig        `toml:"log"`
	State      StateConfig      `toml:"state"`
	History    HistoryConfig    `toml:"history"`
	Letterboxd LetterboxdConfig `toml:"letterboxd"`
	Radarr     RadarrConfig     `toml:"radarr"`
	Jellyfin   JellyfinConfig   `toml:"jellyfin"`
	Users      []UserConfig     `toml:"users"`
}

type LogConfig struct {
	Level      string `toml:"level"`
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
}

type StateConfig struct {
	Path string `toml:"path"`
}

type HistoryConfig struct {
	Enabled *bool  `toml:"enabled"`
	Path    string `toml:"path"`
}

// IsEnabled reports whether run history is recorded. Defaults to true.
func (h HistoryConfig) IsEnabled() bool {
	return h.Enabled == nil || *h.Enabled
}

// LetterboxdConfig controls watchlist scraping and outbound proxies.
type LetterboxdConfig struct {
	BaseURL               string        `toml:"base_url"`
	MaxConcurrentRequests int           `toml:"max_concurrent_requests"`
	Retries               int           `toml:"retries"`
	RetryDelay            time.Duration `toml:"retry_delay"`
	Timeout               time.Duration `toml:"timeout"`
	MinDelay              time.Duration `toml:"min_delay"`
	MaxDelay              time.Duration `toml:"max_delay"`
	RequestsPerSecond     float64       `toml:"requests_per_second"`

	ProxySource              string        `toml:"proxy_source"` // path to a host:port:user:pass file
	Proxies                  []string      `toml:"proxies"`
	ProxyProtocol            string        `toml:"proxy_protocol"`
	ValidateProxiesOnStartup bool          `toml:"validate_proxies_on_startup"`
	ProxyCheckTimeout        time.Duration `toml:"proxy_check_timeout"`
	AllowDirectFallback      *bool         `toml:"allow_direct_fallback"`
}

// DirectFallback reports whether a failed proxied request may be retried directly.
// Defaults to true.
func (l LetterboxdConfig) DirectFallback() bool {
	return l.AllowDirectFallback == nil || *l.AllowDirectFallback
}

type RadarrConfig struct {
	URL                     string        `toml:"url"`
	APIKey                  string        `toml:"api_key"`
	RootFolderPath          string        `toml:"root_folder_path"`
	AnimationRootFolderPath string        `toml:"animation_root_folder_path"`
	QualityProfileID        int           `toml:"quality_profile_id"`
	SearchOnAdd             *bool         `toml:"search_on_add"`
	Timeout                 time.Duration `toml:"timeout"`
}

type JellyfinConfig struct {
	URL                 string        `toml:"url"`
	APIKey              string        `toml:"api_key"`
	Timeout             time.Duration `toml:"timeout"`
	FuzzyMatchThreshold float64       `toml:"fuzzy_match_threshold"`
}

// UserConfig describes one tracked user.
type UserConfig struct {
	LetterboxdUsername   string `toml:"letterboxd_username"`
	JellyfinCollectionID string `toml:"jellyfin_collection_id"`
	JellyfinUsername     string `toml:"jellyfin_username"`
}

// Load reads, parses and validates the configuration file.
// Missing environment variables and validation failures are returned together
// as a *ConfigError.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	content, missing := substituteEnvVars(string(data))

	var cfg Config
	if _, err := toml.Decode(content, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.applyDefaults()

	cfgErr := &ConfigError{Path: path, Missing: missing, Errors: cfg.Validate()}
	if cfgErr.HasErrors() {
		return nil, cfgErr
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.MaxSizeMB == 0 {
		c.Log.MaxSizeMB = 10
	}
	if c.Log.MaxBackups == 0 {
		c.Log.MaxBackups = 3
	}
	if c.State.Path == "" {
		c.State.Path = "./data/sync_state.json"
	}
	if c.History.Path == "" {
		c.History.Path = "./data/watchsync.db"
	}

	lb := &c.Letterboxd
	if lb.BaseURL == "" {
		lb.BaseURL = "https://letterboxd.com"
	}
	if lb.MaxConcurrentRequests == 0 {
		lb.MaxConcurrentRequests = 5
	}
	if lb.Retries == 0 {
		lb.Retries = 3
	}
	if lb.RetryDelay == 0 {
		lb.RetryDelay = time.Second
	}
	if lb.Timeout == 0 {
		lb.Timeout = 20 * time.Second
	}
	if lb.MinDelay == 0 && lb.MaxDelay == 0 {
		lb.MinDelay = 500 * time.Millisecond
		lb.MaxDelay = 2 * time.Second
	}
	if lb.ProxyProtocol == "" {
		lb.ProxyProtocol = "socks5"
	}
	if lb.ProxyCheckTimeout == 0 {
		lb.ProxyCheckTimeout = 5 * time.Second
	}

	if c.Radarr.Timeout == 0 {
		c.Radarr.Timeout = 20 * time.Second
	}
	if c.Radarr.SearchOnAdd == nil {
		v := true
		c.Radarr.SearchOnAdd = &v
	}
	if c.Jellyfin.Timeout == 0 {
		c.Jellyfin.Timeout = 30 * time.Second
	}
}

// envVarPattern matches ${VAR_NAME}.
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// substituteEnvVars replaces ${VAR_NAME} with environment variable values.
// Supports ${VAR:-default} (default when unset or empty) and ${VAR:?message}
// (reported as missing with the message when unset or empty).
// Unset variables are left in place and reported, sorted and deduplicated.
func substituteEnvVars(content string) (string, []string) {
	seen := make(map[string]bool)
	out := envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		expr := match[2 : len(match)-1] // Strip ${ and }

		if name, def, ok := strings.Cut(expr, ":-"); ok {
			if value := os.Getenv(name); value != "" {
				return value
			}
			return def
		}
		if name, msg, ok := strings.Cut(expr, ":?"); ok {
			if value := os.Getenv(name); value != "" {
				return value
			}
			seen[name+": "+msg] = true
			return match
		}

		if value, ok := os.LookupEnv(expr); ok {
			return value
		}
		seen[expr] = true
		return match
	})

	missing := make([]string, 0, len(seen))
	for name := range seen {
		missing = append(missing, name)
	}
	sort.Strings(missing)
	return out, missing
}
