package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/raphaelgruber/leadscout/internal/client"
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show daemon runtime statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		stats, err := apiClient.GetStats(context.Background())
		if err != nil {
			return fmt.Errorf("get stats: %w", err)
		}

		uptime := time.Duration(stats.UptimeSeconds * float64(time.Second)).Round(time.Second)
		fmt.Printf("Uptime: %s\n\n", uptime)

		if len(stats.Counters) > 0 {
			fmt.Println("Pipeline:")
			for _, name := range []string{"posts_ingested", "posts_analyzed", "leads_created", "runs_completed", "runs_failed"} {
				if v, ok := stats.Counters[name]; ok {
					fmt.Printf("  %-16s %d\n", name, v)
				}
			}
			fmt.Println()
		}

		fmt.Printf("%-16s %-8s %-10s %-10s %-10s %s\n", "OPERATION", "COUNT", "AVG MS", "MIN MS", "MAX MS", "TOTAL MS")
		fmt.Println("----------------------------------------------------------------------")
		printOp := func(name string, op *client.OperationStats) {
			if op == nil {
				return
			}
			fmt.Printf("%-16s %-8d %-10.1f %-10d %-10d %d\n",
				name, op.Count, op.AvgTimeMs, op.MinTimeMs, op.MaxTimeMs, op.TotalTimeMs)
		}
		printOp("provider_list", stats.ProviderList)
		printOp("provider_author", stats.ProviderAuthor)
		printOp("llm_generate", stats.LLMGenerate)
		printOp("dimension", stats.Dimension)
		printOp("meta_analysis", stats.MetaAnalysis)

		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
