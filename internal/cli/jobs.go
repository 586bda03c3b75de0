package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var jobsLimit int

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List background jobs",
	Long: `List recent ledger jobs with their state and retry info.

Examples:
  leadscout jobs              # Recent jobs
  leadscout jobs --limit 100  # More history`,
	RunE: func(cmd *cobra.Command, args []string) error {
		jobs, err := apiClient.ListJobs(context.Background(), jobsLimit)
		if err != nil {
			return fmt.Errorf("list jobs: %w", err)
		}

		if len(jobs) == 0 {
			fmt.Println("No jobs found")
			return nil
		}

		fmt.Printf("%-20s %-16s %-10s %-8s %s\n", "ID", "TYPE", "STATUS", "ATTEMPT", "CREATED")
		fmt.Println("------------------------------------------------------------------------")
		for _, job := range jobs {
			attempt := fmt.Sprintf("%d/%d", job.Attempts, job.MaxAttempts)
			fmt.Printf("%-20s %-16s %-10s %-8s %s\n",
				job.ID, job.JobType, job.Status, attempt,
				job.CreatedAt.Local().Format(time.DateTime))
			if verbose && job.LastError != nil {
				fmt.Printf("    last error: %s\n", *job.LastError)
			}
		}
		return nil
	},
}

func init() {
	jobsCmd.Flags().IntVar(&jobsLimit, "limit", 50, "maximum number of jobs")
	rootCmd.AddCommand(jobsCmd)
}
