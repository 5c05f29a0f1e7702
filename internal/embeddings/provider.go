// Package embeddings provides multimodal embedding generation against an
// external embedding server.
package embeddings

import (
	"context"
	"errors"
)

var (
	// ErrEmptyInput indicates empty or missing input.
	ErrEmptyInput = errors.New("empty input")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmbeddingFailed indicates embedding generation failure.
	ErrEmbeddingFailed = errors.New("embedding generation failed")
)

// Provider generates fixed-dimension embeddings for modality-tagged input.
//
// The model is asymmetric between query and document framing: callers must
// pass isQuery=true for search-time embeddings and false for document-side
// embeddings. The instruction string, when non-empty, is forwarded to the
// model verbatim.
type Provider interface {
	// EmbedText embeds plain text.
	EmbedText(ctx context.Context, text string, isQuery bool, instruction string) ([]float32, error)

	// EmbedImage embeds the image at the given path.
	EmbedImage(ctx context.Context, imagePath string, isQuery bool, instruction string) ([]float32, error)

	// EmbedFused embeds text and image jointly.
	EmbedFused(ctx context.Context, text, imagePath string, isQuery bool, instruction string) ([]float32, error)

	// Dimension returns the embedding dimension for the configured model.
	Dimension() int
}
