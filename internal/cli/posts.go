package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var postsCmd = &cobra.Command{
	Use:   "posts <run-id>",
	Short: "List posts discovered by a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		posts, err := apiClient.ListRunPosts(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("list posts: %w", err)
		}

		if len(posts) == 0 {
			fmt.Println("No posts in this run")
			return nil
		}

		fmt.Printf("%-24s %-16s %-10s %-16s %-5s %s\n", "ID", "AUTHOR", "STATUS", "RECOMMENDATION", "CONF", "TITLE")
		fmt.Println("------------------------------------------------------------------------------------------")
		for _, p := range posts {
			rec := "-"
			if p.AnalysisRecommendation != nil {
				rec = *p.AnalysisRecommendation
			}
			conf := "  -"
			if p.AnalysisConfidence != nil {
				conf = fmt.Sprintf("%.2f", *p.AnalysisConfidence)
			}
			title := p.Title
			if len(title) > 40 {
				title = title[:37] + "..."
			}
			fmt.Printf("%-24s %-16s %-10s %-16s %-5s %s\n",
				p.ID, p.Author, p.AnalysisStatus, rec, conf, title)
		}
		return nil
	},
}

var postShowCmd = &cobra.Command{
	Use:   "post <post-id>",
	Short: "Show a post with its full analysis",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		post, err := apiClient.GetPost(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("get post: %w", err)
		}

		fmt.Printf("Post: %s\n", post.ID)
		fmt.Printf("  Author:   %s\n", post.Author)
		fmt.Printf("  Title:    %s\n", post.Title)
		fmt.Printf("  URL:      %s\n", post.URL)
		fmt.Printf("  Status:   %s\n", post.AnalysisStatus)
		if post.AnalysisRecommendation != nil {
			fmt.Printf("  Verdict:  %s", *post.AnalysisRecommendation)
			if post.AnalysisConfidence != nil {
				fmt.Printf(" (%.2f)", *post.AnalysisConfidence)
			}
			fmt.Println()
		}
		if post.AnalysisError != nil {
			fmt.Printf("  Error:    %s\n", *post.AnalysisError)
		}
		if post.Lead != nil {
			fmt.Printf("  Lead:     %s\n", *post.Lead)
		}
		if reasoning, ok := post.AnalysisDimensions["reasoning"].(string); ok && reasoning != "" {
			fmt.Printf("\nReasoning:\n  %s\n", reasoning)
		}
		return nil
	},
}

var reanalyzeCmd = &cobra.Command{
	Use:   "reanalyze <post-id>",
	Short: "Re-run analysis for a post",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		outcome, err := apiClient.ReanalyzePost(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("reanalyze: %w", err)
		}

		fmt.Printf("Verdict: %s (%.2f)\n", outcome.Recommendation, outcome.Confidence)
		if outcome.FailedDimensions > 0 {
			fmt.Printf("Failed dimensions: %d\n", outcome.FailedDimensions)
		}
		if outcome.Reasoning != "" {
			fmt.Printf("Reasoning: %s\n", outcome.Reasoning)
		}
		return nil
	},
}

var promoteCmd = &cobra.Command{
	Use:   "promote <post-id>",
	Short: "Promote an analyzed post to a lead",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := apiClient.PromotePost(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("promote: %w", err)
		}

		if result.Created {
			fmt.Printf("Created lead %s\n", result.LeadID)
		} else {
			fmt.Printf("Post already promoted as lead %s\n", result.LeadID)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(postsCmd)
	rootCmd.AddCommand(postShowCmd)
	rootCmd.AddCommand(reanalyzeCmd)
	rootCmd.AddCommand(promoteCmd)
}
