// Package ai defines the language-model collaborators used around the ranking pipeline.
package ai

import (
	"context"

	"github.com/spigell/candidate-ranker/internal/requirements"
)

// Extractor turns free requisition text into a requirement set.
type Extractor interface {
	Extract(ctx context.Context, text string) (*requirements.Set, error)
}

// Embedder turns text into a vector of the index dimension.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Embedding task hints for providers that distinguish them.
const (
	TaskQuery    = "RETRIEVAL_QUERY"
	TaskDocument = "RETRIEVAL_DOCUMENT"
)
