// internal/config/validate.go
package config

import (
	"fmt"
	"net/url"
)

var validLogLevels = map[string]bool{
	"debug": true, "info": true, "warn": true, "error": true, "": true,
}

var validProxyProtocols = map[string]bool{
	"http": true, "https": true, "socks5": true, "socks5h": true,
}

// Validate checks the configuration for errors.
// Returns a slice of error messages (empty if valid).
func (c *Config) Validate() []string {
	var errs []string

	if !validLogLevels[c.Log.Level] {
		errs = append(errs, fmt.Sprintf("log.level: must be one of debug, info, warn, error; got %q", c.Log.Level))
	}

	// Letterboxd
	lb := c.Letterboxd
	if _, err := url.ParseRequestURI(lb.BaseURL); lb.BaseURL != "" && err != nil {
		errs = append(errs, fmt.Sprintf("letterboxd.base_url: invalid URL %q", lb.BaseURL))
	}
	if lb.MaxConcurrentRequests < 0 {
		errs = append(errs, fmt.Sprintf("letterboxd.max_concurrent_requests: must be positive, got %d", lb.MaxConcurrentRequests))
	}
	if lb.Retries < 0 {
		errs = append(errs, fmt.Sprintf("letterboxd.retries: must be positive, got %d", lb.Retries))
	}
	if lb.MinDelay > lb.MaxDelay {
		errs = append(errs, fmt.Sprintf("letterboxd.min_delay: %s is greater than max_delay %s", lb.MinDelay, lb.MaxDelay))
	}
	if lb.RequestsPerSecond < 0 {
		errs = append(errs, "letterboxd.requests_per_second: must not be negative")
	}
	if !validProxyProtocols[lb.ProxyProtocol] {
		errs = append(errs, fmt.Sprintf("letterboxd.proxy_protocol: must be one of http, https, socks5, socks5h; got %q", lb.ProxyProtocol))
	}

	// Radarr
	if c.Radarr.URL == "" {
		errs = append(errs, "radarr.url: required")
	}
	if c.Radarr.APIKey == "" {
		errs = append(errs, "radarr.api_key: required")
	}
	if c.Radarr.RootFolderPath == "" {
		errs = append(errs, "radarr.root_folder_path: required")
	}
	if c.Radarr.QualityProfileID <= 0 {
		errs = append(errs, "radarr.quality_profile_id: required")
	}

	// Jellyfin
	if c.Jellyfin.URL == "" {
		errs = append(errs, "jellyfin.url: required")
	}
	if c.Jellyfin.APIKey == "" {
		errs = append(errs, "jellyfin.api_key: required")
	}
	if t := c.Jellyfin.FuzzyMatchThreshold; t < 0 || t > 1 {
		errs = append(errs, fmt.Sprintf("jellyfin.fuzzy_match_threshold: must be between 0 and 1, got %v", t))
	}

	// Users
	if len(c.Users) == 0 {
		errs = append(errs, "users: at least one user must be configured")
	}
	seen := make(map[string]bool)
	for i, u := range c.Users {
		if u.LetterboxdUsername == "" {
			errs = append(errs, fmt.Sprintf("users[%d].letterboxd_username: required", i))
			continue
		}
		if seen[u.LetterboxdUsername] {
			errs = append(errs, fmt.Sprintf("users[%d].letterboxd_username: duplicate user %q", i, u.LetterboxdUsername))
		}
		seen[u.LetterboxdUsername] = true
	}

	return errs
}
