// Package retriever dispatches modality-aware queries to the embedding
// provider and ranks store neighbors by similarity. It also owns the
// interactive add-item path.
package retriever

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/helixline/recall/internal/embeddings"
	"github.com/helixline/recall/internal/vectorstore"
)

// ErrValidation indicates missing or malformed caller input. Nothing is
// persisted when it is returned.
var ErrValidation = errors.New("invalid input")

// DefaultSearchInstruction is passed with every query-side embedding.
const DefaultSearchInstruction = "Find a document that matches the given query."

// timeNow is a variable for testing purposes.
var timeNow = time.Now

// Store is the subset of the vector store the retriever needs.
type Store interface {
	Insert(ctx context.Context, meta vectorstore.Metadata, embedding []float32) (string, error)
	Query(ctx context.Context, embedding []float32, k int) ([]vectorstore.Neighbor, error)
}

// SearchResult pairs an item with its similarity to the query, higher
// meaning more relevant.
type SearchResult struct {
	Similarity float32          `json:"similarity"`
	Item       vectorstore.Item `json:"item"`
}

// Retriever wires the embedding provider and the vector store together.
type Retriever struct {
	store       Store
	embedder    embeddings.Provider
	instruction string
	logger      *zap.Logger
}

// New creates a Retriever. instruction overrides the search instruction;
// empty selects the default.
func New(store Store, embedder embeddings.Provider, instruction string, logger *zap.Logger) *Retriever {
	if logger == nil {
		logger = zap.NewNop()
	}
	if instruction == "" {
		instruction = DefaultSearchInstruction
	}
	return &Retriever{
		store:       store,
		embedder:    embedder,
		instruction: instruction,
		logger:      logger,
	}
}

// Search embeds the query by modality and returns up to k results ordered by
// descending similarity. A query with neither text nor image yields an empty
// result, not an error. Embedding failure aborts the search with no partial
// results.
func (r *Retriever) Search(ctx context.Context, textQuery, imagePath string, k int) ([]SearchResult, error) {
	var (
		embedding []float32
		err       error
	)

	switch {
	case imagePath != "" && textQuery != "":
		embedding, err = r.embedder.EmbedFused(ctx, textQuery, imagePath, true, r.instruction)
	case imagePath != "":
		embedding, err = r.embedder.EmbedImage(ctx, imagePath, true, r.instruction)
	case textQuery != "":
		embedding, err = r.embedder.EmbedText(ctx, textQuery, true, r.instruction)
	default:
		return []SearchResult{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	neighbors, err := r.store.Query(ctx, embedding, k)
	if err != nil {
		return nil, fmt.Errorf("querying store: %w", err)
	}

	results := make([]SearchResult, len(neighbors))
	for i, n := range neighbors {
		results[i] = SearchResult{
			Similarity: 1 - n.Distance,
			Item:       n.Item,
		}
	}

	// The store contracts ascending distance, but its ordering is not
	// trusted blindly. Re-sort only when the contract is violated so a
	// correct store's tie ordering is preserved.
	if !sorted(results) {
		r.logger.Warn("store returned neighbors out of distance order, re-sorting",
			zap.Int("count", len(results)))
		sort.SliceStable(results, func(i, j int) bool {
			return results[i].Similarity > results[j].Similarity
		})
	}

	r.logger.Debug("search complete",
		zap.Int("k", k),
		zap.Int("results", len(results)),
		zap.Bool("has_text", textQuery != ""),
		zap.Bool("has_image", imagePath != ""),
	)

	return results, nil
}

// sorted reports whether results are in descending similarity order.
func sorted(results []SearchResult) bool {
	for i := 1; i < len(results); i++ {
		if results[i].Similarity > results[i-1].Similarity {
			return false
		}
	}
	return true
}

// AddItem validates input per item type, generates the document-side
// embedding and inserts the item. It returns the assigned id.
func (r *Retriever) AddItem(ctx context.Context, typ vectorstore.ItemType, title, content, url, imagePath string) (string, error) {
	if !typ.Valid() {
		return "", fmt.Errorf("%w: unknown item type %q", ErrValidation, typ)
	}
	if title == "" {
		return "", fmt.Errorf("%w: title is required", ErrValidation)
	}

	var (
		embedding    []float32
		finalContent string
		err          error
	)

	switch typ {
	case vectorstore.TypeText:
		if content == "" {
			return "", fmt.Errorf("%w: content is required for type %q", ErrValidation, typ)
		}
		finalContent = content
		embedding, err = r.embedder.EmbedText(ctx, content, false, "")

	case vectorstore.TypeImage:
		if imagePath == "" {
			return "", fmt.Errorf("%w: image path is required for type %q", ErrValidation, typ)
		}
		finalContent = imagePath
		embedding, err = r.embedder.EmbedImage(ctx, imagePath, false, "")

	case vectorstore.TypeImageText:
		if content == "" || imagePath == "" {
			return "", fmt.Errorf("%w: content and image path are required for type %q", ErrValidation, typ)
		}
		finalContent, err = ComposeContent(content, imagePath)
		if err != nil {
			return "", err
		}
		embedding, err = r.embedder.EmbedFused(ctx, content, imagePath, false, "")
	}
	if err != nil {
		return "", fmt.Errorf("embedding item: %w", err)
	}

	meta := vectorstore.Metadata{
		Type:    typ,
		Title:   title,
		Content: finalContent,
		URL:     url,
		Date:    timeNow().Format(time.RFC3339),
	}

	id, err := r.store.Insert(ctx, meta, embedding)
	if err != nil {
		return "", fmt.Errorf("inserting item: %w", err)
	}

	r.logger.Info("item added",
		zap.String("id", id),
		zap.String("type", string(typ)),
		zap.String("title", title),
	)

	return id, nil
}
