// Package mock is an in-memory [llm.Provider] for tests. Set the exported
// fields before use; every call is recorded and can be inspected afterwards.
//
//	p := &mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: `{"action":"search"}`}}
package mock

import (
	"context"
	"sync"

	"github.com/AnsuryX/Autojob-Mvp/pkg/provider/llm"
)

var _ llm.Provider = (*Provider)(nil)

// Call is one recorded request.
type Call struct {
	Ctx    context.Context
	Req    llm.CompletionRequest
	Stream bool
}

// Provider returns canned results. The zero value answers Complete with
// (nil, nil) and streams nothing.
type Provider struct {
	StreamChunks []llm.Chunk
	StreamErr    error

	CompleteResponse *llm.CompletionResponse
	CompleteErr      error
	// CompleteFunc, when set, replaces CompleteResponse and CompleteErr.
	CompleteFunc func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)

	ModelCapabilities llm.ModelCapabilities

	mu    sync.Mutex
	calls []Call
}

func (p *Provider) record(c Call) {
	p.mu.Lock()
	p.calls = append(p.calls, c)
	p.mu.Unlock()
}

// StreamCompletion emits StreamChunks and closes the channel, or fails with
// StreamErr.
func (p *Provider) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	p.record(Call{Ctx: ctx, Req: req, Stream: true})
	if p.StreamErr != nil {
		return nil, p.StreamErr
	}
	ch := make(chan llm.Chunk, len(p.StreamChunks))
	for _, c := range p.StreamChunks {
		ch <- c
	}
	close(ch)
	return ch, nil
}

// Complete returns the configured response.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.record(Call{Ctx: ctx, Req: req})
	if p.CompleteFunc != nil {
		return p.CompleteFunc(ctx, req)
	}
	return p.CompleteResponse, p.CompleteErr
}

// Capabilities returns ModelCapabilities.
func (p *Provider) Capabilities() llm.ModelCapabilities { return p.ModelCapabilities }

// Calls returns the recorded Complete calls in order.
func (p *Provider) Calls() []Call {
	return p.filter(false)
}

// StreamCalls returns the recorded StreamCompletion calls in order.
func (p *Provider) StreamCalls() []Call {
	return p.filter(true)
}

func (p *Provider) filter(stream bool) []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []Call
	for _, c := range p.calls {
		if c.Stream == stream {
			out = append(out, c)
		}
	}
	return out
}

// Reset forgets all recorded calls.
func (p *Provider) Reset() {
	p.mu.Lock()
	p.calls = nil
	p.mu.Unlock()
}
