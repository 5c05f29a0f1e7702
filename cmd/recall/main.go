// Recall is a multimodal retrieval CLI: items (text, image or image+text)
// are stored with embeddings from an external embedding server, searched by
// semantic similarity, and enriched with structured metadata extracted by a
// language model.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/helixline/recall/internal/config"
	"github.com/helixline/recall/internal/embeddings"
	"github.com/helixline/recall/internal/logging"
	"github.com/helixline/recall/internal/retriever"
	"github.com/helixline/recall/internal/vectorstore"
)

// Version information (set via ldflags during build).
var version = "dev"

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "recall",
	Short: "Multimodal retrieval and enrichment",
	Long: `recall stores text, image and image+text items with semantic embeddings,
searches them by similarity, and enriches them with structured metadata
extracted by a language model.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/recall/config.yaml)")
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(backfillCmd)
	rootCmd.AddCommand(importCmd)
}

// app holds the wired dependencies shared by the commands. Everything is
// constructed once here and passed down explicitly.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	store    *vectorstore.SQLiteStore
	embedder *embeddings.Service
	ret      *retriever.Retriever
}

// newApp loads configuration and wires the store, embedder and retriever.
func newApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Store.Path), 0o700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	store, err := vectorstore.NewSQLiteStore(vectorstore.Config{
		Path:       cfg.Store.Path,
		Collection: cfg.Store.Collection,
		VectorSize: cfg.Store.VectorSize,
	}, logger.Named("store"))
	if err != nil {
		return nil, err
	}

	embedder, err := embeddings.NewService(embeddings.Config{
		BaseURL:   cfg.Embeddings.BaseURL,
		Model:     cfg.Embeddings.Model,
		Dimension: cfg.Store.VectorSize,
		Timeout:   cfg.Embeddings.Timeout,
	}, logger.Named("embeddings"))
	if err != nil {
		store.Close()
		return nil, err
	}

	ret := retriever.New(store, embedder, cfg.Embeddings.SearchInstruction, logger.Named("retriever"))

	return &app{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		embedder: embedder,
		ret:      ret,
	}, nil
}

// Close releases the app's resources.
func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("closing store", zap.Error(err))
	}
	_ = a.logger.Sync()
}
