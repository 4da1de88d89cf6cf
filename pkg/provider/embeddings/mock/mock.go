// Package mock provides a test double for the embeddings.Provider interface.
//
// By default the mock derives a deterministic vector from each text through
// VectorFor, so ranking tests can control similarity without a live model.
//
// Example:
//
//	p := &mock.Provider{
//	    VectorFor: func(text string) []float32 {
//	        if strings.Contains(text, "Go") { return []float32{1, 0} }
//	        return []float32{0, 1}
//	    },
//	}
package mock

import (
	"context"
	"sync"

	"github.com/AnsuryX/Autojob-Mvp/pkg/provider/embeddings"
)

// Provider is a mock implementation of embeddings.Provider.
type Provider struct {
	mu sync.Mutex

	// VectorFor maps a text to its vector. If nil, every text maps to a
	// zero vector of length DimensionsValue.
	VectorFor func(text string) []float32

	// Err, if non-nil, is returned by Embed and EmbedBatch.
	Err error

	// DimensionsValue is returned by Dimensions.
	DimensionsValue int

	// ModelIDValue is returned by ModelID.
	ModelIDValue string

	// Texts records every text submitted, in order.
	Texts []string

	// BatchCalls is the number of EmbedBatch invocations.
	BatchCalls int
}

func (p *Provider) vector(text string) []float32 {
	if p.VectorFor != nil {
		return p.VectorFor(text)
	}
	return make([]float32, p.DimensionsValue)
}

// Embed records the call and returns VectorFor(text).
func (p *Provider) Embed(_ context.Context, text string) ([]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Texts = append(p.Texts, text)
	if p.Err != nil {
		return nil, p.Err
	}
	return p.vector(text), nil
}

// EmbedBatch records the call and returns one vector per text.
func (p *Provider) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.BatchCalls++
	p.Texts = append(p.Texts, texts...)
	if p.Err != nil {
		return nil, p.Err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = p.vector(t)
	}
	return out, nil
}

// Dimensions returns DimensionsValue.
func (p *Provider) Dimensions() int { return p.DimensionsValue }

// ModelID returns ModelIDValue.
func (p *Provider) ModelID() string { return p.ModelIDValue }

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Texts = nil
	p.BatchCalls = 0
}

var _ embeddings.Provider = (*Provider)(nil)
