// Package vectorstore provides durable storage of items and their
// embeddings with nearest-neighbor query support.
package vectorstore

import (
	"context"
	"errors"
)

// Sentinel errors for vector store operations.
var (
	// ErrDimensionMismatch is returned when an embedding does not match the
	// store's configured dimensionality.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrNotFound is returned when an item id does not exist in the store.
	ErrNotFound = errors.New("item not found")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Store is the interface for item storage and similarity lookup.
//
// Implementations keep exactly one embedding per item. The embedding is
// written once at insert time; Update only replaces metadata. Query returns
// neighbors in ascending distance order (closest first) and never fails on
// an empty store.
type Store interface {
	// Insert assigns a fresh unique id, persists the item and returns the id.
	// Returns ErrDimensionMismatch if the embedding has the wrong length.
	Insert(ctx context.Context, meta Metadata, embedding []float32) (string, error)

	// Query returns up to k nearest neighbors of the given embedding by
	// cosine distance, ascending. Fewer than k results are returned when the
	// store holds fewer items; an empty store yields an empty slice, not an
	// error.
	Query(ctx context.Context, embedding []float32, k int) ([]Neighbor, error)

	// Update replaces the stored metadata for an existing id. The embedding
	// is left untouched. Returns ErrNotFound if the id is absent.
	Update(ctx context.Context, id string, meta Metadata) error

	// GetAll returns every item in the store. Used by the backfill path.
	GetAll(ctx context.Context) ([]Item, error)

	// Close releases the underlying resources.
	Close() error
}
