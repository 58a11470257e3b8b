package main

import (
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "watchsync",
	Short: "Sync Letterboxd watchlists into Radarr and Jellyfin collections",
	Long: `watchsync - keep Letterboxd watchlists in step with your media server

For every configured user, new watchlist entries are requested in Radarr or
added to the user's Jellyfin collection once downloaded, and titles the user
has watched are dropped from the collection.

Running watchsync without a command performs one sync pass.`,
	SilenceUsage: true,
	RunE:         runSync,
}

// Execute runs the root command and exits 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: discovered)")

	rootCmd.Version = version
	rootCmd.SetVersionTemplate("watchsync {{.Version}}\n")
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Printf("watchsync %s\n", version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
