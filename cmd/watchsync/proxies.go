package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/vmunix/watchsync/internal/proxypool"
)

var proxiesCmd = &cobra.Command{
	Use:   "proxies",
	Short: "Proxy pool management",
}

var proxiesCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Dial every configured proxy and list the reachable ones",
	Args:  cobra.NoArgs,
	RunE:  runProxiesCheck,
}

func init() {
	rootCmd.AddCommand(proxiesCmd)
	proxiesCmd.AddCommand(proxiesCheckCmd)
}

func runProxiesCheck(cmd *cobra.Command, _ []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	pool := a.proxyPool(cmd.Context(), false)
	total := pool.Len()
	if total == 0 {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No proxies configured")
		return nil
	}
	pool.Validate(cmd.Context(), a.cfg.Letterboxd.ProxyCheckTimeout)
	printProxies(cmd.OutOrStdout(), pool.Endpoints(), total)

	if pool.Len() == 0 {
		if a.cfg.Letterboxd.DirectFallback() {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "\nNo proxy reachable; scraping will use direct connections")
			return nil
		}
		return fmt.Errorf("no proxy reachable and direct fallback is disabled")
	}
	return nil
}

func printProxies(w io.Writer, alive []proxypool.Endpoint, total int) {
	_, _ = fmt.Fprintf(w, "Reachable proxies (%d/%d):\n\n", len(alive), total)
	for _, ep := range alive {
		_, _ = fmt.Fprintf(w, "  %s\n", ep)
	}
}
