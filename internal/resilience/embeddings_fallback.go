package resilience

import (
	"context"
	"errors"
	"fmt"

	"github.com/AnsuryX/Autojob-Mvp/pkg/provider/embeddings"
)

// ErrDimensionMismatch is returned by [EmbeddingsFallback.AddFallback] for a
// backend whose vectors differ in size from the primary's.
var ErrDimensionMismatch = errors.New("resilience: embedding dimensions differ")

// EmbeddingsFallback is an [embeddings.Provider] that fails over across
// embedding backends of equal dimension.
type EmbeddingsFallback struct {
	group *FallbackGroup[embeddings.Provider]
}

var _ embeddings.Provider = (*EmbeddingsFallback)(nil)

// NewEmbeddingsFallback returns an EmbeddingsFallback with primary as the
// preferred backend.
func NewEmbeddingsFallback(primary embeddings.Provider, primaryName string, cfg FallbackConfig) *EmbeddingsFallback {
	if cfg.Kind == "" {
		cfg.Kind = "embeddings"
	}
	return &EmbeddingsFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers another backend.
func (f *EmbeddingsFallback) AddFallback(name string, provider embeddings.Provider) error {
	if want, got := f.group.Primary().Dimensions(), provider.Dimensions(); want != got {
		return fmt.Errorf("%w: %s has %d dimensions, primary has %d", ErrDimensionMismatch, name, got, want)
	}
	f.group.AddFallback(name, provider)
	return nil
}

// Embed implements [embeddings.Provider].
func (f *EmbeddingsFallback) Embed(ctx context.Context, text string) ([]float32, error) {
	return ExecuteWithResult(f.group, func(p embeddings.Provider) ([]float32, error) {
		return p.Embed(ctx, text)
	})
}

// EmbedBatch implements [embeddings.Provider].
func (f *EmbeddingsFallback) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return ExecuteWithResult(f.group, func(p embeddings.Provider) ([][]float32, error) {
		return p.EmbedBatch(ctx, texts)
	})
}

// Dimensions reports the primary's vector size.
func (f *EmbeddingsFallback) Dimensions() int { return f.group.Primary().Dimensions() }

// ModelID reports the primary's model.
func (f *EmbeddingsFallback) ModelID() string { return f.group.Primary().ModelID() }
