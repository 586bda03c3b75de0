package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var refreshProvider string

var refreshContextCmd = &cobra.Command{
	Use:   "refresh-context <account>",
	Short: "Queue a refresh of an author's cached context summary",
	Long: `Queue a background refresh of the cached interests/character summary
for an author, ahead of its TTL. The daemon fetches the author's recent
public items and regenerates both summaries.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := apiClient.RefreshContext(context.Background(), refreshProvider, args[0])
		if err != nil {
			return fmt.Errorf("refresh context: %w", err)
		}

		if result.Created {
			fmt.Printf("Refresh queued (job %s)\n", result.JobID)
		} else {
			fmt.Printf("Refresh already pending (job %s)\n", result.JobID)
		}
		return nil
	},
}

func init() {
	refreshContextCmd.Flags().StringVar(&refreshProvider, "provider", "reddit", "content provider")
	rootCmd.AddCommand(refreshContextCmd)
}
