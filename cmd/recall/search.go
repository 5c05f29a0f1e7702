package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	searchQuery     string
	searchImagePath string
	searchTopK      int
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search stored items by similarity",
	Long: `Search with a text query, an image query, or both.

Examples:
  recall search --query "large language model scaling"
  recall search --image ./sketch.png --top-k 10
  recall search --query "attention heatmap" --image ./fig2.png`,
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().StringVar(&searchQuery, "query", "", "text query")
	searchCmd.Flags().StringVar(&searchImagePath, "image", "", "path to a query image")
	searchCmd.Flags().IntVar(&searchTopK, "top-k", 5, "number of results to return")
}

func runSearch(cmd *cobra.Command, args []string) error {
	if searchQuery == "" && searchImagePath == "" {
		return fmt.Errorf("at least one of --query or --image is required")
	}
	if searchImagePath != "" {
		if _, err := os.Stat(searchImagePath); err != nil {
			return fmt.Errorf("image path does not exist: %s", searchImagePath)
		}
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	results, err := a.ret.Search(cmd.Context(), searchQuery, searchImagePath, searchTopK)
	if err != nil {
		return fmt.Errorf("searching: %w", err)
	}

	if len(results) == 0 {
		fmt.Println("No results found.")
		return nil
	}

	for i, r := range results {
		fmt.Printf("%d. %s (score: %.4f)\n", i+1, r.Item.Title, r.Similarity)
		fmt.Printf("   type:    %s\n", r.Item.Type)
		fmt.Printf("   content: %s\n", r.Item.Content)
		if r.Item.URL != "" {
			fmt.Printf("   url:     %s\n", r.Item.URL)
		}
		if r.Item.Date != "" {
			fmt.Printf("   date:    %s\n", r.Item.Date)
		}
	}
	return nil
}
