// Package embeddings defines the Provider interface for vector embedding backends.
//
// An embeddings provider maps text to dense float32 vectors. Job postings and
// candidate profiles are embedded so discovery can rank postings by semantic
// fit and the posting store can answer nearest-neighbour queries.
//
// Implementations must be safe for concurrent use.
package embeddings

import "context"

// Provider is the abstraction over any text-embedding backend.
//
// All vectors returned by a single Provider share the same dimensionality.
// Vectors from different providers must not be compared.
type Provider interface {
	// Embed computes the embedding vector for a single text string.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch computes embedding vectors for texts in a single provider call.
	// The i-th result corresponds to texts[i]. On error the entire slice is nil.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the fixed length of every vector produced.
	Dimensions() int

	// ModelID returns the provider-specific model identifier.
	ModelID() string
}
