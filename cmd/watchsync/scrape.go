package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/vmunix/watchsync/internal/watchlist"
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape <letterboxd-user>",
	Short: "Print a user's watchlist TMDB ids without changing anything",
	Long: `Scrape a Letterboxd watchlist and print the TMDB ids, newest first.

With --since, scraping stops at the given id, the way a sync pass does.

Examples:
  watchsync scrape someone
  watchsync scrape someone --since 603`,
	Args: cobra.ExactArgs(1),
	RunE: runScrapeCmd,
}

func init() {
	rootCmd.AddCommand(scrapeCmd)
	scrapeCmd.Flags().String("since", "", "Stop at this TMDB id (exclusive)")
	scrapeCmd.Flags().Bool("json", false, "Output as JSON")
}

func runScrapeCmd(cmd *cobra.Command, args []string) error {
	since, _ := cmd.Flags().GetString("since")
	asJSON, _ := cmd.Flags().GetBool("json")

	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	pool := a.proxyPool(cmd.Context(), a.cfg.Letterboxd.ValidateProxiesOnStartup)
	res := a.scraper(pool).ScrapeSince(cmd.Context(), args[0], since)

	out := cmd.OutOrStdout()
	if asJSON {
		return printJSON(out, res)
	}
	printScrapeResult(out, res)
	if !res.Complete {
		return fmt.Errorf("scrape incomplete after %d ids", len(res.IDs))
	}
	return nil
}

func printScrapeResult(w io.Writer, res watchlist.Result) {
	for _, id := range res.IDs {
		_, _ = fmt.Fprintln(w, id)
	}
	status := "complete"
	switch {
	case !res.Complete:
		status = "incomplete"
	case res.ReachedWatermark:
		status = "stopped at watermark"
	}
	_, _ = fmt.Fprintf(w, "\n%d ids from %d pages (%s)\n", len(res.IDs), res.Pages, status)
}
