package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vmunix/watchsync/internal/config"
	"github.com/vmunix/watchsync/internal/history"
	"github.com/vmunix/watchsync/internal/reconcile"
	"github.com/vmunix/watchsync/internal/state"
	"github.com/vmunix/watchsync/internal/watchlist"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLogLevel(tt.in))
		})
	}
}

func TestNewLogger_WritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "watchsync.log")
	var stdout bytes.Buffer

	logger, closer, err := newLogger(config.LogConfig{Level: "warn", File: path, MaxSizeMB: 1, MaxBackups: 1}, &stdout)
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown", "user", "alice")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "shown")
	assert.Contains(t, string(data), "user=alice")
	assert.NotContains(t, string(data), "hidden")
	assert.Equal(t, string(data), stdout.String())
}

func TestNewLogger_StdoutOnly(t *testing.T) {
	var stdout bytes.Buffer
	logger, closer, err := newLogger(config.LogConfig{Level: "debug"}, &stdout)
	require.NoError(t, err)
	logger.Debug("hello")
	assert.NoError(t, closer.Close())
	assert.Contains(t, stdout.String(), "msg=hello")
}

func TestUsersFromConfig(t *testing.T) {
	users := usersFromConfig([]config.UserConfig{
		{LetterboxdUsername: "alice", JellyfinCollectionID: "c1", JellyfinUsername: "Alice"},
		{LetterboxdUsername: "bob"},
	})
	assert.Equal(t, []reconcile.User{
		{Username: "alice", CollectionID: "c1", JellyfinUsername: "Alice"},
		{Username: "bob"},
	}, users)
}

func TestPrintWatermarks(t *testing.T) {
	var buf bytes.Buffer
	printWatermarks(&buf, state.Watermarks{"zoe": "9", "alice": "603"})
	out := buf.String()
	assert.Contains(t, out, "WATERMARK")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("alice")), bytes.Index(buf.Bytes(), []byte("zoe")), "sorted by user")

	buf.Reset()
	printWatermarks(&buf, nil)
	assert.Equal(t, "No watermarks recorded\n", buf.String())
}

func TestPrintScrapeResult(t *testing.T) {
	var buf bytes.Buffer
	printScrapeResult(&buf, watchlist.Result{IDs: []string{"603", "949"}, Complete: true, ReachedWatermark: true, Pages: 1})
	assert.Equal(t, "603\n949\n\n2 ids from 1 pages (stopped at watermark)\n", buf.String())

	buf.Reset()
	printScrapeResult(&buf, watchlist.Result{IDs: []string{"603"}, Pages: 2})
	assert.Contains(t, buf.String(), "(incomplete)")
}

func TestPrintHistory(t *testing.T) {
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	runs := []*history.Run{
		{Username: "alice", Scraped: 3, Added: 2, Enqueued: 1, WatermarkAfter: "603", Complete: true, Phase: "done", StartedAt: started},
		{Username: "bob", Phase: "mutating", Error: "add to collection: 503", StartedAt: started},
		{Username: "carol", Phase: "done", Error: "list played: timeout", Complete: true, StartedAt: started},
		{Username: "dave", Phase: "done", StartedAt: started},
	}

	var buf bytes.Buffer
	printHistory(&buf, runs)
	out := buf.String()
	assert.Contains(t, out, "failed (mutating): add to collection: 503")
	assert.Contains(t, out, "ok, removal failed: list played: timeout")
	assert.Contains(t, out, "partial")
	assert.Contains(t, out, "603")

	buf.Reset()
	printHistory(&buf, nil)
	assert.Equal(t, "No runs recorded\n", buf.String())
}

const validConfig = `
[radarr]
url = "http://localhost:7878"
api_key = "radarr-key"
root_folder_path = "/movies"
quality_profile_id = 4

[jellyfin]
url = "http://localhost:8096"
api_key = "jellyfin-key"

[[users]]
letterboxd_username = "alice"
jellyfin_collection_id = "c1"
jellyfin_username = "Alice"

[[users]]
letterboxd_username = "bob"
`

func newTestCommand(t *testing.T, out *bytes.Buffer) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{}
	cmd.Flags().Bool("connect", false, "")
	cmd.SetOut(out)
	cmd.SetContext(context.Background())
	return cmd
}

func TestRunConfigTest_Valid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(validConfig), 0o600))

	var out bytes.Buffer
	require.NoError(t, runConfigTest(newTestCommand(t, &out), []string{path}))

	assert.Contains(t, out.String(), "Radarr:     http://localhost:7878 (profile 4, root /movies)")
	assert.Contains(t, out.String(), "Proxies:    none (direct)")
	assert.Contains(t, out.String(), "- bob (no collection)")
	assert.Contains(t, out.String(), "Configuration valid!")
}

func TestRunConfigTest_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[radarr]\napi_key = \"${WATCHSYNC_TEST_UNSET_KEY}\"\n"), 0o600))

	var out bytes.Buffer
	err := runConfigTest(newTestCommand(t, &out), []string{path})
	require.Error(t, err)
	assert.Contains(t, out.String(), "Missing environment variables:")
	assert.Contains(t, out.String(), "WATCHSYNC_TEST_UNSET_KEY")
	assert.Contains(t, out.String(), "Validation errors:")
	assert.Contains(t, out.String(), "users: at least one user must be configured")
}

func TestCheckConnectivity(t *testing.T) {
	radarrSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/system/status", r.URL.Path)
		assert.Equal(t, "radarr-key", r.Header.Get("X-Api-Key"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"version": "5.2.6"})
	}))
	defer radarrSrv.Close()
	jellyfinSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/System/Info", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"ServerName": "den", "Version": "10.9.0"})
	}))
	defer jellyfinSrv.Close()

	cfg := &config.Config{
		Radarr:   config.RadarrConfig{URL: radarrSrv.URL, APIKey: "radarr-key"},
		Jellyfin: config.JellyfinConfig{URL: jellyfinSrv.URL, APIKey: "jellyfin-key"},
	}

	var out bytes.Buffer
	require.NoError(t, checkConnectivity(context.Background(), &out, cfg))
	assert.Contains(t, out.String(), "Radarr:   ok (version 5.2.6)")
	assert.Contains(t, out.String(), "Jellyfin: ok (den, version 10.9.0)")
}

func TestCheckConnectivity_Failure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	cfg := &config.Config{
		Radarr:   config.RadarrConfig{URL: srv.URL, APIKey: "bad"},
		Jellyfin: config.JellyfinConfig{URL: srv.URL, APIKey: "bad"},
	}

	var out bytes.Buffer
	err := checkConnectivity(context.Background(), &out, cfg)
	require.Error(t, err)
	assert.Contains(t, out.String(), "invalid api key")
}
