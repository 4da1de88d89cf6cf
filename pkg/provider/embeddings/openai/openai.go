// Package openai embeds text through the OpenAI /embeddings endpoint. Ollama,
// vLLM and LM Studio expose the same endpoint and work via [WithBaseURL].
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/AnsuryX/Autojob-Mvp/pkg/provider/embeddings"
)

// DefaultModel is used when New is given no model.
const DefaultModel = oai.EmbeddingModelTextEmbedding3Small

// maxBatch is the largest input array one request may carry.
const maxBatch = 2048

var _ embeddings.Provider = (*Provider)(nil)

// Provider implements [embeddings.Provider].
type Provider struct {
	client     oai.Client
	model      string
	dimensions int
	batch      int
}

// Option configures a [Provider].
type Option func(*Provider, *[]option.RequestOption)

// WithBaseURL points the client at a compatible server.
func WithBaseURL(url string) Option {
	return func(_ *Provider, o *[]option.RequestOption) { *o = append(*o, option.WithBaseURL(url)) }
}

// WithTimeout bounds each HTTP request.
func WithTimeout(d time.Duration) Option {
	return func(_ *Provider, o *[]option.RequestOption) {
		*o = append(*o, option.WithHTTPClient(&http.Client{Timeout: d}))
	}
}

// WithDimensions asks text-embedding-3 models for shortened vectors so they
// match the store's vector column width.
func WithDimensions(n int) Option {
	return func(p *Provider, _ *[]option.RequestOption) { p.dimensions = n }
}

// WithBatchSize caps the texts sent per request. Values outside (0, 2048]
// are ignored.
func WithBatchSize(n int) Option {
	return func(p *Provider, _ *[]option.RequestOption) {
		if n > 0 && n <= maxBatch {
			p.batch = n
		}
	}
}

// New returns a provider for model, or [DefaultModel] when model is empty.
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai embeddings: apiKey must not be empty")
	}
	if model == "" {
		model = DefaultModel
	}
	p := &Provider{model: model, batch: maxBatch}
	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	for _, o := range opts {
		o(p, &reqOpts)
	}
	p.client = oai.NewClient(reqOpts...)
	return p, nil
}

// Embed implements [embeddings.Provider].
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch implements [embeddings.Provider]. Inputs above the batch size
// are split across sequential requests.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	size := p.batch
	if size <= 0 {
		size = maxBatch
	}
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += size {
		vecs, err := p.request(ctx, texts[start:min(start+size, len(texts))])
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

// request embeds one batch and orders the result by the response indices.
func (p *Provider) request(ctx context.Context, texts []string) ([][]float32, error) {
	params := oai.EmbeddingNewParams{
		Model: p.model,
		Input: oai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
	}
	if p.dimensions > 0 {
		params.Dimensions = param.NewOpt(int64(p.dimensions))
	}
	resp, err := p.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: embed batch: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai embeddings: expected %d embeddings, got %d", len(texts), len(resp.Data))
	}
	vecs := make([][]float32, len(texts))
	for _, d := range resp.Data {
		i := int(d.Index)
		if i < 0 || i >= len(texts) || vecs[i] != nil {
			return nil, fmt.Errorf("openai embeddings: unexpected index %d", d.Index)
		}
		v := make([]float32, len(d.Embedding))
		for j, f := range d.Embedding {
			v[j] = float32(f)
		}
		vecs[i] = v
	}
	return vecs, nil
}

// Dimensions implements [embeddings.Provider].
func (p *Provider) Dimensions() int {
	if p.dimensions > 0 {
		return p.dimensions
	}
	return modelDimensions(p.model)
}

// ModelID implements [embeddings.Provider].
func (p *Provider) ModelID() string { return p.model }

// modelDimensions is the native width of known models; 1536 otherwise.
func modelDimensions(model string) int {
	m := strings.ToLower(model)
	switch {
	case strings.Contains(m, "text-embedding-3-large"):
		return 3072
	case strings.Contains(m, "nomic-embed-text"):
		return 768
	case strings.Contains(m, "mxbai-embed-large"):
		return 1024
	}
	return 1536
}
