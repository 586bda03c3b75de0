package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/raphaelgruber/leadscout/internal/client"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Manage scouting watches",
}

var watchListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all watches",
	RunE: func(cmd *cobra.Command, args []string) error {
		watches, err := apiClient.ListWatches(context.Background())
		if err != nil {
			return fmt.Errorf("list watches: %w", err)
		}

		if len(watches) == 0 {
			fmt.Println("No watches configured")
			return nil
		}

		fmt.Printf("%-24s %-10s %-20s %-7s %-6s %-6s %s\n", "ID", "PROVIDER", "LOCATION", "ACTIVE", "POSTS", "LEADS", "LAST RUN")
		fmt.Println("--------------------------------------------------------------------------------------")
		for _, w := range watches {
			lastRun := "never"
			if w.LastRunAt != nil {
				lastRun = w.LastRunAt.Local().Format("Jan 02 15:04")
			}
			fmt.Printf("%-24s %-10s %-20s %-7t %-6d %-6d %s\n",
				w.ID, w.ProviderID, w.SourceLocation, w.IsActive,
				w.TotalPostsSeen, w.TotalLeadsCreated, lastRun)
		}
		return nil
	},
}

var (
	addQuery         string
	addSortBy        string
	addTimeFilter    string
	addScanEvery     string
	addMinConfidence float64
	addNoAutoAnalyze bool
	addPaused        bool
)

var watchAddCmd = &cobra.Command{
	Use:   "add <provider> <location>",
	Short: "Add a new watch",
	Long: `Add a watch monitoring a source location.

Examples:
  leadscout watch add reddit berlin --every 30m --min-confidence 0.7
  leadscout watch add reddit relocation --query "moving to germany" --every 1h`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		input := client.WatchInput{
			ProviderID:     args[0],
			SourceLocation: args[1],
			SortBy:         addSortBy,
			TimeFilter:     addTimeFilter,
			MinConfidence:  addMinConfidence,
			ScanEvery:      addScanEvery,
		}
		if addQuery != "" {
			input.SearchQuery = &addQuery
		}
		if addNoAutoAnalyze {
			autoAnalyze := false
			input.AutoAnalyze = &autoAnalyze
		}
		if addPaused {
			active := false
			input.IsActive = &active
		}

		watch, err := apiClient.CreateWatch(context.Background(), input)
		if err != nil {
			return fmt.Errorf("create watch: %w", err)
		}

		fmt.Printf("Created watch %s (%s/%s, every %s)\n",
			watch.ID, watch.ProviderID, watch.SourceLocation, addScanEvery)
		return nil
	},
}

var watchEnableCmd = &cobra.Command{
	Use:   "enable <watch-id>",
	Short: "Enable a watch",
	Args:  cobra.ExactArgs(1),
	RunE:  setWatchActive(true),
}

var watchDisableCmd = &cobra.Command{
	Use:   "disable <watch-id>",
	Short: "Disable a watch",
	Args:  cobra.ExactArgs(1),
	RunE:  setWatchActive(false),
}

func setWatchActive(active bool) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if err := apiClient.SetWatchActive(context.Background(), args[0], active); err != nil {
			return err
		}
		state := "disabled"
		if active {
			state = "enabled"
		}
		fmt.Printf("Watch %s %s\n", args[0], state)
		return nil
	}
}

// watchExport is the YAML shape for watch import/export.
type watchExport struct {
	Provider      string  `yaml:"provider"`
	Location      string  `yaml:"location"`
	Query         *string `yaml:"query,omitempty"`
	SortBy        string  `yaml:"sort_by,omitempty"`
	TimeFilter    string  `yaml:"time_filter,omitempty"`
	Active        bool    `yaml:"active"`
	AutoAnalyze   bool    `yaml:"auto_analyze"`
	MinConfidence float64 `yaml:"min_confidence"`
	ScanEvery     string  `yaml:"scan_every"`
}

var watchExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export all watches as YAML to stdout",
	RunE: func(cmd *cobra.Command, args []string) error {
		watches, err := apiClient.ListWatches(context.Background())
		if err != nil {
			return fmt.Errorf("list watches: %w", err)
		}

		exports := make([]watchExport, 0, len(watches))
		for _, w := range watches {
			exports = append(exports, watchExport{
				Provider:      w.ProviderID,
				Location:      w.SourceLocation,
				Query:         w.SearchQuery,
				SortBy:        w.SortBy,
				TimeFilter:    w.TimeFilter,
				Active:        w.IsActive,
				AutoAnalyze:   w.AutoAnalyze,
				MinConfidence: w.MinConfidence,
				ScanEvery:     time.Duration(w.ScanEvery).String(),
			})
		}
		return yaml.NewEncoder(os.Stdout).Encode(exports)
	},
}

var watchImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import watches from a YAML file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read file: %w", err)
		}

		var exports []watchExport
		if err := yaml.Unmarshal(data, &exports); err != nil {
			return fmt.Errorf("parse yaml: %w", err)
		}

		ctx := context.Background()
		created := 0
		for _, e := range exports {
			active := e.Active
			autoAnalyze := e.AutoAnalyze
			_, err := apiClient.CreateWatch(ctx, client.WatchInput{
				ProviderID:     e.Provider,
				SourceLocation: e.Location,
				SearchQuery:    e.Query,
				SortBy:         e.SortBy,
				TimeFilter:     e.TimeFilter,
				IsActive:       &active,
				AutoAnalyze:    &autoAnalyze,
				MinConfidence:  e.MinConfidence,
				ScanEvery:      e.ScanEvery,
			})
			if err != nil {
				fmt.Fprintf(os.Stderr, "skipping %s/%s: %v\n", e.Provider, e.Location, err)
				continue
			}
			created++
		}

		fmt.Printf("Imported %d/%d watches\n", created, len(exports))
		return nil
	},
}

func init() {
	watchAddCmd.Flags().StringVar(&addQuery, "query", "", "restrict listing to a search query")
	watchAddCmd.Flags().StringVar(&addSortBy, "sort", "new", "listing sort order")
	watchAddCmd.Flags().StringVar(&addTimeFilter, "time", "day", "listing time filter")
	watchAddCmd.Flags().StringVar(&addScanEvery, "every", "30m", "scan interval")
	watchAddCmd.Flags().Float64Var(&addMinConfidence, "min-confidence", 0.7, "promotion confidence threshold")
	watchAddCmd.Flags().BoolVar(&addNoAutoAnalyze, "no-auto-analyze", false, "ingest only, skip analysis")
	watchAddCmd.Flags().BoolVar(&addPaused, "paused", false, "create the watch disabled")

	watchCmd.AddCommand(watchListCmd)
	watchCmd.AddCommand(watchAddCmd)
	watchCmd.AddCommand(watchEnableCmd)
	watchCmd.AddCommand(watchDisableCmd)
	watchCmd.AddCommand(watchExportCmd)
	watchCmd.AddCommand(watchImportCmd)
	rootCmd.AddCommand(watchCmd)
}
