package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	runWait bool
)

var runCmd = &cobra.Command{
	Use:   "run <watch-id>",
	Short: "Trigger a scan run for a watch",
	Long: `Trigger a scan run for a watch and follow its progress.

The trigger is idempotent: re-triggering while a run is pending or in
progress attaches to the existing one. With a TTY the command shows live
progress; otherwise it prints the job id and returns.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		watchID := args[0]
		ctx := context.Background()

		result, err := apiClient.TriggerRun(ctx, watchID)
		if err != nil {
			return fmt.Errorf("trigger run: %w", err)
		}

		if !result.Created {
			fmt.Printf("Run already pending (job %s), attaching...\n", result.JobID)
		}

		interactive := term.IsTerminal(int(os.Stdout.Fd()))
		if !interactive && !runWait {
			fmt.Printf("Run enqueued (job %s)\n", result.JobID)
			return nil
		}

		streamCtx, cancel := context.WithTimeout(ctx, waitTimeout)
		defer cancel()
		events, err := apiClient.SubscribeEvents(streamCtx)
		if err != nil {
			fmt.Printf("Run enqueued (job %s); event stream unavailable: %v\n", result.JobID, err)
			return nil
		}

		if interactive {
			return followRun(events, watchID)
		}

		// Non-TTY --wait: consume events until the run seals.
		for event := range events {
			if event.WatchID != watchID {
				continue
			}
			if event.Type == "run_sealed" {
				fmt.Printf("Run %s: %d fetched, %d new, %d analyzed, %d leads\n",
					event.Message, event.Fetched, event.New, event.Analyzed, event.Leads)
				if event.Message == "failed" {
					return fmt.Errorf("run failed")
				}
				return nil
			}
		}
		return fmt.Errorf("event stream closed before the run sealed")
	},
}

var runsCmd = &cobra.Command{
	Use:   "runs <watch-id>",
	Short: "List recent runs for a watch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		runs, err := apiClient.ListRuns(context.Background(), args[0], 20)
		if err != nil {
			return fmt.Errorf("list runs: %w", err)
		}

		if len(runs) == 0 {
			fmt.Println("No runs yet")
			return nil
		}

		fmt.Printf("%-24s %-10s %-8s %-5s %-9s %-6s %s\n", "ID", "STATUS", "FETCHED", "NEW", "ANALYZED", "LEADS", "STARTED")
		fmt.Println("--------------------------------------------------------------------------------")
		for _, r := range runs {
			fmt.Printf("%-24s %-10s %-8d %-5d %-9d %-6d %s\n",
				r.ID, r.Status, r.PostsFetched, r.PostsNew, r.PostsAnalyzed, r.LeadsCreated,
				r.StartedAt.Local().Format(time.DateTime))
		}
		return nil
	},
}

func init() {
	runCmd.Flags().BoolVar(&runWait, "wait", false, "wait for the run to finish even without a TTY")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(runsCmd)
}
