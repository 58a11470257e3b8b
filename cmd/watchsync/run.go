package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vmunix/watchsync/internal/history"
	"github.com/vmunix/watchsync/internal/reconcile"
	"github.com/vmunix/watchsync/internal/state"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one sync pass for every configured user",
	Long: `Run one sync pass for every configured user.

Users are processed one after another. A failing user is logged and skipped;
their watermark stays where it was so the next run retries them. Only a
configuration error makes the command exit non-zero.`,
	Args: cobra.NoArgs,
	RunE: runSync,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runSync(cmd *cobra.Command, _ []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool := a.proxyPool(ctx, a.cfg.Letterboxd.ValidateProxiesOnStartup)
	engine := reconcile.NewEngine(a.scraper(pool), a.radarr(), a.jellyfin(), a.addOptions(), a.log)

	var recorder reconcile.Recorder
	if a.cfg.History.IsEnabled() {
		hs, err := history.Open(a.cfg.History.Path)
		if err != nil {
			a.log.Warn("history unavailable, continuing without it", "path", a.cfg.History.Path, "error", err)
		} else {
			defer func() { _ = hs.Close() }()
			recorder = hs
		}
	}

	store := a.stateStore()
	prior, err := store.Load()
	if err != nil {
		a.log.Warn("failed to read state, starting from scratch", "path", store.Path(), "error", err)
		prior = state.Watermarks{}
	}

	next, results := reconcile.NewRunner(engine, recorder, a.log).Run(ctx, usersFromConfig(a.cfg.Users), prior)

	if err := store.Save(next); err != nil {
		a.log.Error("failed to save state", "path", store.Path(), "error", err)
	}

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	a.log.Info("run complete", "users", len(results), "failed", failed)
	return nil
}
