// Package cmd implements the syncengine command-line surface: serve runs
// the daemon, config and migrate inspect/prepare its on-disk state.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	version    = "dev"
	commit     = "none"
)

var rootCmd = &cobra.Command{
	Use:   "syncengine",
	Short: "SyncML client/server sync-session orchestration daemon",
	Long: `syncengine schedules and drives SyncML synchronization sessions:
one active session at a time, auto-sync on presence/interval, server-alerted
notifications, and an HTTP+WebSocket control surface for attached clients.`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML bootstrap config file (env SYNCENGINE_* overrides)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(versionCmd)
}

// SetVersion records build metadata printed by `version`.
func SetVersion(v, c string) {
	version = v
	commit = c
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("syncengine version %s (%s)\n", version, commit)
		os.Exit(0)
	},
}
