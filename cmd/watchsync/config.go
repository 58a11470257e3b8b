package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/vmunix/watchsync/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management",
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write an example configuration file",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runConfigInit,
}

var configTestCmd = &cobra.Command{
	Use:   "test [path]",
	Short: "Validate configuration file",
	Long: `Validates config.toml syntax, required fields, and environment variable
substitution. With --connect, also checks that Radarr and Jellyfin answer with
the configured API keys.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runConfigTest,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configTestCmd)

	configInitCmd.Flags().Bool("force", false, "Overwrite an existing file")
	configTestCmd.Flags().Bool("connect", false, "Check connectivity to Radarr and Jellyfin")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	force, _ := cmd.Flags().GetBool("force")

	path := config.DefaultPath()
	if len(args) > 0 {
		path = args[0]
	}
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists, use --force to overwrite", path)
	}
	if err := config.WriteDefault(path); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
	return nil
}

func runConfigTest(cmd *cobra.Command, args []string) error {
	connect, _ := cmd.Flags().GetBool("connect")

	explicit := configPath
	if len(args) > 0 {
		explicit = args[0]
	}
	path, err := config.Discover(explicit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Validating %s...\n\n", path)

	cfg, err := config.Load(path)
	if err != nil {
		var configErr *config.ConfigError
		if errors.As(err, &configErr) {
			printConfigErrors(out, configErr)
			return fmt.Errorf("configuration invalid")
		}
		return fmt.Errorf("failed to load config: %w", err)
	}

	printConfigSummary(out, cfg)
	if connect {
		if err := checkConnectivity(cmd.Context(), out, cfg); err != nil {
			return err
		}
	}
	_, _ = fmt.Fprintln(out, "\nConfiguration valid!")
	return nil
}

func checkConnectivity(ctx context.Context, out io.Writer, cfg *config.Config) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	a := &app{cfg: cfg, log: discardLogger()}
	_, _ = fmt.Fprintln(out, "\nConnectivity:")

	var failed bool
	if v, err := a.radarr().SystemStatus(ctx); err != nil {
		failed = true
		_, _ = fmt.Fprintf(out, "  Radarr:   %v\n", err)
	} else {
		_, _ = fmt.Fprintf(out, "  Radarr:   ok (version %s)\n", v)
	}
	if name, v, err := a.jellyfin().SystemInfo(ctx); err != nil {
		failed = true
		_, _ = fmt.Fprintf(out, "  Jellyfin: %v\n", err)
	} else {
		_, _ = fmt.Fprintf(out, "  Jellyfin: ok (%s, version %s)\n", name, v)
	}
	if failed {
		return fmt.Errorf("connectivity check failed")
	}
	return nil
}

func printConfigErrors(w io.Writer, e *config.ConfigError) {
	if len(e.Missing) > 0 {
		_, _ = fmt.Fprintln(w, "Missing environment variables:")
		for _, m := range e.Missing {
			_, _ = fmt.Fprintf(w, "  - %s\n", m)
		}
		_, _ = fmt.Fprintln(w)
	}

	if len(e.Errors) > 0 {
		_, _ = fmt.Fprintln(w, "Validation errors:")
		for _, err := range e.Errors {
			_, _ = fmt.Fprintf(w, "  - %s\n", err)
		}
		_, _ = fmt.Fprintln(w)
	}
}

func printConfigSummary(w io.Writer, cfg *config.Config) {
	lb := cfg.Letterboxd
	_, _ = fmt.Fprintln(w, "Configuration Summary:")
	_, _ = fmt.Fprintf(w, "  Log:        %s\n", cfg.Log.Level)
	_, _ = fmt.Fprintf(w, "  State:      %s\n", cfg.State.Path)
	if cfg.History.IsEnabled() {
		_, _ = fmt.Fprintf(w, "  History:    %s\n", cfg.History.Path)
	}
	_, _ = fmt.Fprintf(w, "  Letterboxd: %s (%d workers, %d attempts)\n", lb.BaseURL, lb.MaxConcurrentRequests, lb.Retries)

	proxies := len(lb.Proxies)
	if lb.ProxySource != "" {
		_, _ = fmt.Fprintf(w, "  Proxies:    %s + %d inline (%s)\n", lb.ProxySource, proxies, lb.ProxyProtocol)
	} else if proxies > 0 {
		_, _ = fmt.Fprintf(w, "  Proxies:    %d inline (%s)\n", proxies, lb.ProxyProtocol)
	} else {
		_, _ = fmt.Fprintln(w, "  Proxies:    none (direct)")
	}

	_, _ = fmt.Fprintf(w, "  Radarr:     %s (profile %d, root %s)\n", cfg.Radarr.URL, cfg.Radarr.QualityProfileID, cfg.Radarr.RootFolderPath)
	_, _ = fmt.Fprintf(w, "  Jellyfin:   %s\n", cfg.Jellyfin.URL)
	_, _ = fmt.Fprintf(w, "  Users:      %d\n", len(cfg.Users))
	for _, u := range cfg.Users {
		_, _ = fmt.Fprintf(w, "    - %s", u.LetterboxdUsername)
		if u.JellyfinCollectionID == "" {
			_, _ = fmt.Fprint(w, " (no collection)")
		}
		_, _ = fmt.Fprintln(w)
	}
}
