package main

import (
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"

	"github.com/vmunix/watchsync/internal/state"
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Inspect or reset per-user watermarks",
}

var stateShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the last processed TMDB id per user",
	Args:  cobra.NoArgs,
	RunE:  runStateShow,
}

var stateResetCmd = &cobra.Command{
	Use:   "reset <letterboxd-user>",
	Short: "Forget a user's watermark so the next run rescans the whole watchlist",
	Args:  cobra.ExactArgs(1),
	RunE:  runStateReset,
}

func init() {
	rootCmd.AddCommand(stateCmd)
	stateCmd.AddCommand(stateShowCmd)
	stateCmd.AddCommand(stateResetCmd)
}

func runStateShow(cmd *cobra.Command, _ []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	w, err := a.stateStore().Load()
	if err != nil {
		return err
	}
	printWatermarks(cmd.OutOrStdout(), w)
	return nil
}

func runStateReset(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	store := a.stateStore()
	w, err := store.Load()
	if err != nil {
		return err
	}
	user := args[0]
	if _, ok := w[user]; !ok {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "No watermark for %s\n", user)
		return nil
	}
	delete(w, user)
	if err := store.Save(w); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Reset watermark for %s\n", user)
	return nil
}

func printWatermarks(out io.Writer, w state.Watermarks) {
	if len(w) == 0 {
		_, _ = fmt.Fprintln(out, "No watermarks recorded")
		return
	}
	users := make([]string, 0, len(w))
	for u := range w {
		users = append(users, u)
	}
	slices.Sort(users)

	_, _ = fmt.Fprintf(out, "  %-24s %s\n", "USER", "WATERMARK")
	for _, u := range users {
		_, _ = fmt.Fprintf(out, "  %-24s %s\n", u, w[u])
	}
}
