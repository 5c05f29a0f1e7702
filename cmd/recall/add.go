package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/helixline/recall/internal/retriever"
	"github.com/helixline/recall/internal/vectorstore"
)

var (
	addTitle     string
	addContent   string
	addURL       string
	addImagePath string
)

var addCmd = &cobra.Command{
	Use:   "add <type>",
	Short: "Add an item to the store",
	Long: `Add an item of type text, image or image-text.

Examples:
  # Add a text item
  recall add text --title "Llama 3" --content "We introduce Llama 3..." --url https://example.org

  # Add an image item
  recall add image --title "Architecture diagram" --image ./diagram.png

  # Add a combined item
  recall add image-text --title "Figure 2" --content "attention heatmap" --image ./fig2.png`,
	Args: cobra.ExactArgs(1),
	RunE: runAdd,
}

func init() {
	addCmd.Flags().StringVar(&addTitle, "title", "", "item title (required)")
	addCmd.Flags().StringVar(&addContent, "content", "", "text content or description")
	addCmd.Flags().StringVar(&addURL, "url", "", "associated URL")
	addCmd.Flags().StringVar(&addImagePath, "image", "", "path to the image file")
}

func runAdd(cmd *cobra.Command, args []string) error {
	if addImagePath != "" {
		if _, err := os.Stat(addImagePath); err != nil {
			return fmt.Errorf("image path does not exist: %s", addImagePath)
		}
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	id, err := a.ret.AddItem(cmd.Context(), vectorstore.ItemType(args[0]), addTitle, addContent, addURL, addImagePath)
	if err != nil {
		if errors.Is(err, retriever.ErrValidation) {
			return err
		}
		return fmt.Errorf("adding item: %w", err)
	}

	fmt.Printf("Added %q (id: %s)\n", addTitle, id)
	return nil
}
