// Package cli provides the command-line interface for leadscout.
package cli

import (
	"github.com/raphaelgruber/leadscout/internal/client"
	"github.com/spf13/cobra"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	serverURL string
	verbose   bool

	// API client, built once per invocation.
	apiClient *client.Client
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "leadscout",
	Short: "Lead scouting pipeline over social content",
	Long: `Leadscout monitors social content sources through configurable watches,
analyzes candidate posts with parallel LLM agents, and promotes
high-confidence matches to leads.

All commands talk to a running scoutd daemon.`,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}
		apiClient = client.New(serverURL)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "scoutd base URL (default: LEADSCOUT_SERVER_URL or http://localhost:8474)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
