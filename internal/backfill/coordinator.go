// Package backfill scans the store for items without valid extracted
// metadata and enriches them through a bounded worker pool.
package backfill

import (
	"context"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/helixline/recall/internal/extraction"
	"github.com/helixline/recall/internal/retriever"
	"github.com/helixline/recall/internal/vectorstore"
)

// Store is the subset of the vector store the coordinator needs.
type Store interface {
	GetAll(ctx context.Context) ([]vectorstore.Item, error)
	Update(ctx context.Context, id string, meta vectorstore.Metadata) error
}

// Extractor resolves one item's content into a terminal extraction result.
type Extractor interface {
	Extract(ctx context.Context, text, imagePath string, maxAttempts int) extraction.Result
	MaxAttempts() int
}

// Summary aggregates per-item outcomes of one backfill run.
// Updated + Failed always equals Selected.
type Summary struct {
	Selected int `json:"selected"`
	Updated  int `json:"updated"`
	Failed   int `json:"failed"`
}

// Coordinator drives extraction over the corpus.
type Coordinator struct {
	store     Store
	extractor Extractor
	logger    *zap.Logger

	// fileExists is injectable for tests.
	fileExists func(path string) bool
}

// New creates a Coordinator.
func New(store Store, extractor Extractor, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		store:     store,
		extractor: extractor,
		logger:    logger,
		fileExists: func(path string) bool {
			_, err := os.Stat(path)
			return err == nil
		},
	}
}

// Run selects items needing extraction (all items when forceRefresh) and
// processes them across workerCount concurrent workers. One item's failure
// never aborts the batch; failed items are left unmodified so a later run
// retries them.
func (c *Coordinator) Run(ctx context.Context, forceRefresh bool, workerCount int) (Summary, error) {
	if workerCount <= 0 {
		return Summary{}, fmt.Errorf("worker count must be positive, got %d", workerCount)
	}

	items, err := c.store.GetAll(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("scanning store: %w", err)
	}

	selected := make([]vectorstore.Item, 0, len(items))
	for _, it := range items {
		if forceRefresh || !extraction.ValidInfo(it.ExtractedInfo) {
			selected = append(selected, it)
		}
	}

	summary := Summary{Selected: len(selected)}
	if len(selected) == 0 {
		c.logger.Info("no items require backfill")
		return summary, nil
	}

	c.logger.Info("starting backfill",
		zap.Int("selected", len(selected)),
		zap.Int("total", len(items)),
		zap.Int("workers", workerCount),
		zap.Bool("force_refresh", forceRefresh),
	)

	outcomes := make(chan bool, len(selected))
	sem := make(chan struct{}, workerCount)
	var wg sync.WaitGroup

	for _, it := range selected {
		wg.Add(1)
		go func(item vectorstore.Item) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			outcomes <- c.processItem(ctx, item)
		}(it)
	}

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	for ok := range outcomes {
		if ok {
			summary.Updated++
		} else {
			summary.Failed++
		}
	}

	c.logger.Info("backfill complete",
		zap.Int("selected", summary.Selected),
		zap.Int("updated", summary.Updated),
		zap.Int("failed", summary.Failed),
	)

	return summary, nil
}

// processItem extracts one item and persists the result on success. Returns
// true when the item was updated.
func (c *Coordinator) processItem(ctx context.Context, item vectorstore.Item) bool {
	text, imagePath := c.extractionInput(item)

	result := c.extractor.Extract(ctx, text, imagePath, c.extractor.MaxAttempts())
	if !result.OK() {
		cause := "unknown extraction error"
		if result.Marker != nil {
			cause = result.Marker.LastCause
		}
		c.logger.Warn("item extraction failed",
			zap.String("id", item.ID),
			zap.String("title", item.Title),
			zap.String("cause", cause),
		)
		return false
	}

	meta := item.Metadata
	meta.ExtractedInfo = extraction.MarshalInfo(result)
	if err := c.store.Update(ctx, item.ID, meta); err != nil {
		c.logger.Warn("item update failed",
			zap.String("id", item.ID),
			zap.Error(err),
		)
		return false
	}

	c.logger.Debug("item enriched", zap.String("id", item.ID), zap.String("title", item.Title))
	return true
}

// extractionInput derives the text and optional image reference to extract
// from, based on the item's modality.
func (c *Coordinator) extractionInput(item vectorstore.Item) (text, imagePath string) {
	switch item.Type {
	case vectorstore.TypeImage:
		// The content is the image reference; the title carries the text.
		return item.Title, item.Content

	case vectorstore.TypeImageText:
		textPart, imgPart, ok := retriever.SplitComposite(item.Content)
		if !ok {
			return item.Title, ""
		}
		if !c.fileExists(imgPart) {
			imgPart = ""
		}
		return textPart, imgPart

	default:
		return item.Content, ""
	}
}
