package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/afero"

	"github.com/vmunix/watchsync/internal/config"
	"github.com/vmunix/watchsync/internal/fetch"
	"github.com/vmunix/watchsync/internal/jellyfin"
	"github.com/vmunix/watchsync/internal/proxypool"
	"github.com/vmunix/watchsync/internal/radarr"
	"github.com/vmunix/watchsync/internal/reconcile"
	"github.com/vmunix/watchsync/internal/state"
	"github.com/vmunix/watchsync/internal/watchlist"
)

// app holds the loaded configuration and logger shared by every command.
type app struct {
	cfg    *config.Config
	log    *slog.Logger
	fs     afero.Fs
	closer io.Closer
}

func resolveConfigPath() (string, error) {
	return config.Discover(configPath)
}

// loadApp loads the configuration and builds the logger. Any error here is a
// configuration error and ends the process with exit status 1.
func loadApp() (*app, error) {
	path, err := resolveConfigPath()
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	logger, closer, err := newLogger(cfg.Log, os.Stdout)
	if err != nil {
		return nil, fmt.Errorf("log file: %w", err)
	}
	logger.Debug("config loaded", "path", path, "users", len(cfg.Users))
	return &app{cfg: cfg, log: logger, fs: afero.NewOsFs(), closer: closer}, nil
}

func (a *app) Close() {
	_ = a.closer.Close()
}

// proxyPool builds the proxy rotation from the configured file and inline
// list, optionally dropping unreachable endpoints.
func (a *app) proxyPool(ctx context.Context, validate bool) *proxypool.Manager {
	lb := a.cfg.Letterboxd

	var endpoints []proxypool.Endpoint
	if lb.ProxySource != "" {
		eps, err := proxypool.LoadFile(a.fs, lb.ProxySource, lb.ProxyProtocol, a.log)
		if err != nil {
			a.log.Warn("failed to read proxy file, continuing without it", "path", lb.ProxySource, "error", err)
		}
		endpoints = append(endpoints, eps...)
	}
	endpoints = append(endpoints, proxypool.ParseList(lb.Proxies, lb.ProxyProtocol, a.log)...)

	pool := proxypool.New(endpoints, a.log)
	if pool.Len() == 0 {
		a.log.Info("no proxies configured, using direct connections")
		return pool
	}
	if validate {
		pool.Validate(ctx, lb.ProxyCheckTimeout)
	}
	return pool
}

func (a *app) fetcher() *fetch.Fetcher {
	lb := a.cfg.Letterboxd
	return fetch.New(fetch.Options{
		Timeout:             lb.Timeout,
		MinDelay:            lb.MinDelay,
		MaxDelay:            lb.MaxDelay,
		RequestsPerSecond:   lb.RequestsPerSecond,
		AllowDirectFallback: lb.DirectFallback(),
	}, a.log)
}

func (a *app) scraper(pool *proxypool.Manager) *watchlist.Scraper {
	lb := a.cfg.Letterboxd
	return watchlist.New(a.fetcher(), pool, watchlist.Options{
		BaseURL:    lb.BaseURL,
		Workers:    lb.MaxConcurrentRequests,
		Attempts:   lb.Retries,
		RetryDelay: lb.RetryDelay,
	}, a.log)
}

func (a *app) radarr() *radarr.Client {
	r := a.cfg.Radarr
	return radarr.New(r.URL, r.APIKey, a.log, radarr.WithTimeout(r.Timeout))
}

func (a *app) jellyfin() *jellyfin.Client {
	j := a.cfg.Jellyfin
	return jellyfin.New(j.URL, j.APIKey, a.log,
		jellyfin.WithTimeout(j.Timeout),
		jellyfin.WithFuzzyThreshold(j.FuzzyMatchThreshold))
}

func (a *app) stateStore() *state.Store {
	return state.NewStore(a.fs, a.cfg.State.Path, a.log)
}

func (a *app) addOptions() radarr.AddOptions {
	r := a.cfg.Radarr
	return radarr.AddOptions{
		RootFolderPath:          r.RootFolderPath,
		AnimationRootFolderPath: r.AnimationRootFolderPath,
		QualityProfileID:        r.QualityProfileID,
		SearchOnAdd:             *r.SearchOnAdd,
	}
}

func usersFromConfig(cfgUsers []config.UserConfig) []reconcile.User {
	users := make([]reconcile.User, 0, len(cfgUsers))
	for _, u := range cfgUsers {
		users = append(users, reconcile.User{
			Username:         u.LetterboxdUsername,
			CollectionID:     u.JellyfinCollectionID,
			JellyfinUsername: u.JellyfinUsername,
		})
	}
	return users
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
