package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vmunix/watchsync/internal/history"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent sync runs",
	Args:  cobra.NoArgs,
	RunE:  runHistoryCmd,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().StringP("user", "u", "", "Only show runs for this Letterboxd user")
	historyCmd.Flags().IntP("limit", "n", 20, "Maximum number of runs")
	historyCmd.Flags().Bool("json", false, "Output as JSON")
}

func runHistoryCmd(cmd *cobra.Command, _ []string) error {
	user, _ := cmd.Flags().GetString("user")
	limit, _ := cmd.Flags().GetInt("limit")
	asJSON, _ := cmd.Flags().GetBool("json")

	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if !a.cfg.History.IsEnabled() {
		return fmt.Errorf("history is disabled in the configuration")
	}
	store, err := history.Open(a.cfg.History.Path)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	runs, err := store.List(history.Filter{Username: user, Limit: limit})
	if err != nil {
		return err
	}
	if asJSON {
		return printJSON(cmd.OutOrStdout(), runs)
	}
	printHistory(cmd.OutOrStdout(), runs)
	return nil
}

func printHistory(w io.Writer, runs []*history.Run) {
	if len(runs) == 0 {
		_, _ = fmt.Fprintln(w, "No runs recorded")
		return
	}

	_, _ = fmt.Fprintf(w, "  %-16s %-16s %-8s %-8s %-8s %-8s %-12s %s\n",
		"STARTED", "USER", "SCRAPED", "ADDED", "QUEUED", "REMOVED", "WATERMARK", "STATUS")
	_, _ = fmt.Fprintln(w, "  "+strings.Repeat("-", 96))

	for _, r := range runs {
		status := "ok"
		switch {
		case r.Failed() && r.Phase == "done":
			status = "ok, removal failed: " + r.Error
		case r.Failed():
			status = "failed (" + r.Phase + "): " + r.Error
		case !r.Complete:
			status = "partial"
		}
		_, _ = fmt.Fprintf(w, "  %-16s %-16s %-8d %-8d %-8d %-8d %-12s %s\n",
			r.StartedAt.Local().Format("2006-01-02 15:04"),
			r.Username, r.Scraped, r.Added, r.Enqueued, r.Removed, r.WatermarkAfter, status)
	}
}
