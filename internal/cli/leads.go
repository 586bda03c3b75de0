package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var leadsLimit int

var leadsCmd = &cobra.Command{
	Use:   "leads",
	Short: "List promoted leads",
	RunE: func(cmd *cobra.Command, args []string) error {
		leads, err := apiClient.ListLeads(context.Background(), leadsLimit)
		if err != nil {
			return fmt.Errorf("list leads: %w", err)
		}

		if len(leads) == 0 {
			fmt.Println("No leads yet")
			return nil
		}

		fmt.Printf("%-20s %-14s %-16s %-5s %-11s %s\n", "ID", "LOCATION", "AUTHOR", "CONF", "STATUS", "CREATED")
		fmt.Println("--------------------------------------------------------------------------------")
		for _, l := range leads {
			fmt.Printf("%-20s %-14s %-16s %.2f  %-11s %s\n",
				l.ID, l.SourceLocation, l.Author, l.AnalysisConfidence, l.Status,
				l.CreatedAt.Local().Format(time.DateTime))
		}
		return nil
	},
}

func init() {
	leadsCmd.Flags().IntVar(&leadsLimit, "limit", 50, "maximum number of leads")
	rootCmd.AddCommand(leadsCmd)
}
