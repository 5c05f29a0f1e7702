package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/helixline/recall/internal/vectorstore"
)

var importOutput string

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Bulk import text items from a JSON file",
	Long: `Import an array of records with "title", "abstract" and "URL" fields as
text items. Records missing any of the three fields are skipped. The ids of
successfully imported records are written to the output file.

Example:
  recall import data.json --output imported.json`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	importCmd.Flags().StringVar(&importOutput, "output", "imported_data.json", "path for the output JSON file")
}

// importRecord is one input record.
type importRecord struct {
	Title    string `json:"title"`
	Abstract string `json:"abstract"`
	URL      string `json:"URL"`
}

// importedRecord is one output record.
type importedRecord struct {
	ID      string `json:"id_in_db"`
	Title   string `json:"title"`
	Content string `json:"content"`
	URL     string `json:"url"`
}

func runImport(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading input file: %w", err)
	}

	var records []importRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("decoding input file: %w", err)
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	imported := []importedRecord{}
	skipped := 0

	for _, rec := range records {
		if rec.Title == "" || rec.Abstract == "" || rec.URL == "" {
			skipped++
			continue
		}

		id, err := a.ret.AddItem(cmd.Context(), vectorstore.TypeText, rec.Title, rec.Abstract, rec.URL, "")
		if err != nil {
			a.logger.Warn("skipping record",
				zap.String("title", rec.Title),
				zap.Error(err),
			)
			skipped++
			continue
		}

		imported = append(imported, importedRecord{
			ID:      id,
			Title:   rec.Title,
			Content: rec.Abstract,
			URL:     rec.URL,
		})
	}

	out, err := json.MarshalIndent(imported, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}
	if err := os.WriteFile(importOutput, out, 0o600); err != nil {
		return fmt.Errorf("writing output file: %w", err)
	}

	fmt.Printf("Imported %d records, skipped %d. Results saved to %s\n",
		len(imported), skipped, importOutput)
	return nil
}
