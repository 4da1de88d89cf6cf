// Package anyllm adapts github.com/mozilla-ai/any-llm-go to [llm.Provider],
// giving autojob one code path for every hosted and local backend that
// library knows.
//
// None of those backends share a structured-output API, so a requested
// [llm.ResponseFormat] travels in the system prompt and the caller decodes
// the reply with [llm.DecodeJSON].
package anyllm

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/llamacpp"
	"github.com/mozilla-ai/any-llm-go/providers/llamafile"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/AnsuryX/Autojob-Mvp/pkg/provider/llm"
)

var _ llm.Provider = (*Provider)(nil)

type constructor func(...anyllmlib.Option) (anyllmlib.Provider, error)

// wrap lifts a backend constructor returning its concrete type.
func wrap[P anyllmlib.Provider](fn func(...anyllmlib.Option) (P, error)) constructor {
	return func(opts ...anyllmlib.Option) (anyllmlib.Provider, error) {
		return fn(opts...)
	}
}

var backends = map[string]constructor{
	"openai":    wrap(anyllmoai.New),
	"anthropic": wrap(anthropic.New),
	"gemini":    wrap(gemini.New),
	"ollama":    wrap(ollama.New),
	"deepseek":  wrap(deepseek.New),
	"mistral":   wrap(mistral.New),
	"groq":      wrap(groq.New),
	"llamacpp":  wrap(llamacpp.New),
	"llamafile": wrap(llamafile.New),
}

// Backends returns the supported backend names in sorted order.
func Backends() []string {
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Provider is an [llm.Provider] over one any-llm-go backend.
type Provider struct {
	backend anyllmlib.Provider
	model   string
}

// New builds a provider for backend (see [Backends]) serving model. Without
// anyllmlib.WithAPIKey the backend reads its usual environment variable,
// e.g. ANTHROPIC_API_KEY.
func New(backend, model string, opts ...anyllmlib.Option) (*Provider, error) {
	if backend == "" {
		return nil, errors.New("anyllm: backend name must not be empty")
	}
	if model == "" {
		return nil, errors.New("anyllm: model must not be empty")
	}
	ctor, ok := backends[strings.ToLower(backend)]
	if !ok {
		return nil, fmt.Errorf("anyllm: unsupported backend %q (supported: %s)", backend, strings.Join(Backends(), ", "))
	}
	b, err := ctor(opts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm: create %s backend: %w", backend, err)
	}
	return &Provider{backend: b, model: model}, nil
}

// Complete implements [llm.Provider].
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	resp, err := p.backend.Completion(ctx, p.buildParams(req))
	if err != nil {
		return nil, fmt.Errorf("anyllm: completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("anyllm: completion returned no choices")
	}
	out := &llm.CompletionResponse{Content: resp.Choices[0].Message.ContentString()}
	if u := resp.Usage; u != nil {
		out.Usage = llm.Usage{
			PromptTokens:     u.PromptTokens,
			CompletionTokens: u.CompletionTokens,
			TotalTokens:      u.TotalTokens,
		}
	}
	return out, nil
}

// StreamCompletion implements [llm.Provider]. A backend failure after the
// stream opened arrives as a final chunk with FinishReason "error".
func (p *Provider) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	chunks, errs := p.backend.CompletionStream(ctx, p.buildParams(req))

	out := make(chan llm.Chunk, 32)
	go func() {
		defer close(out)
		send := func(c llm.Chunk) bool {
			select {
			case out <- c:
				return true
			case <-ctx.Done():
				return false
			}
		}
		for chunk := range chunks {
			if len(chunk.Choices) == 0 {
				continue
			}
			c := chunk.Choices[0]
			if !send(llm.Chunk{Text: c.Delta.Content, FinishReason: c.FinishReason}) {
				return
			}
		}
		if err := <-errs; err != nil {
			send(llm.Chunk{FinishReason: "error", Text: err.Error()})
		}
	}()
	return out, nil
}

// Capabilities implements [llm.Provider].
func (p *Provider) Capabilities() llm.ModelCapabilities {
	return modelCapabilities(p.model)
}

func (p *Provider) buildParams(req llm.CompletionRequest) anyllmlib.CompletionParams {
	system := req.SystemPrompt
	if hint := llm.SchemaInstruction(req.ResponseFormat); hint != "" {
		system = strings.TrimSpace(system + "\n\n" + hint)
	}

	msgs := make([]anyllmlib.Message, 0, len(req.Messages)+1)
	if system != "" {
		msgs = append(msgs, anyllmlib.Message{Role: anyllmlib.RoleSystem, Content: system})
	}
	for _, m := range req.Messages {
		msgs = append(msgs, convertMessage(m))
	}

	params := anyllmlib.CompletionParams{Model: p.model, Messages: msgs}
	if req.Temperature != 0 {
		params.Temperature = &req.Temperature
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = &req.MaxTokens
	}
	return params
}

func convertMessage(m llm.Message) anyllmlib.Message {
	return anyllmlib.Message{Role: m.Role, Content: m.Content}
}

// capabilityRule applies to models whose lowercased name matches.
type capabilityRule struct {
	match         func(string) bool
	contextWindow int
	maxOutput     int
}

func prefix(p string) func(string) bool   { return func(s string) bool { return strings.HasPrefix(s, p) } }
func contains(p string) func(string) bool { return func(s string) bool { return strings.Contains(s, p) } }

// capabilityRules are checked in order; the first match wins. Zero fields keep
// the default.
var capabilityRules = []capabilityRule{
	{match: prefix("gpt-4o"), maxOutput: 16_384},
	{match: prefix("o1"), contextWindow: 200_000, maxOutput: 100_000},
	{match: prefix("o3"), contextWindow: 200_000, maxOutput: 100_000},
	{match: prefix("claude"), contextWindow: 200_000, maxOutput: 8_192},
	{match: contains("gemini-2"), contextWindow: 1_048_576, maxOutput: 8_192},
	{match: contains("gemini-1.5-flash"), contextWindow: 1_048_576, maxOutput: 8_192},
	{match: contains("gemini-1.5-pro"), contextWindow: 2_097_152, maxOutput: 8_192},
	{match: prefix("gemini"), maxOutput: 8_192},
}

// modelCapabilities looks model up in capabilityRules. Unknown models get a
// 128k window and 4k output.
func modelCapabilities(model string) llm.ModelCapabilities {
	caps := llm.ModelCapabilities{
		SupportsStreaming: true,
		ContextWindow:     128_000,
		MaxOutputTokens:   4_096,
	}
	lower := strings.ToLower(model)
	for _, r := range capabilityRules {
		if !r.match(lower) {
			continue
		}
		if r.contextWindow > 0 {
			caps.ContextWindow = r.contextWindow
		}
		if r.maxOutput > 0 {
			caps.MaxOutputTokens = r.maxOutput
		}
		break
	}
	return caps
}
