// Package gemini provides an LLM provider backed by the Google Gen AI SDK
// (google.golang.org/genai) against the Gemini Developer API.
//
// Structured output uses the native responseJsonSchema field, so replies are
// constrained server-side rather than through prompt instructions.
package gemini

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/AnsuryX/Autojob-Mvp/pkg/provider/llm"
)

var _ llm.Provider = (*Provider)(nil)

// Provider implements llm.Provider using google.golang.org/genai.
type Provider struct {
	client *genai.Client
	model  string
}

type config struct {
	baseURL string
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the Gemini API endpoint. Primarily used in tests.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// New constructs a Gemini LLM Provider.
func New(ctx context.Context, apiKey, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: apiKey must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("gemini: model must not be empty")
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	cc := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.baseURL}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("gemini: new client: %w", err)
	}
	return &Provider{client: client, model: model}, nil
}

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	contents, gcfg := buildRequest(req)

	resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, gcfg)
	if err != nil {
		return nil, fmt.Errorf("gemini: generate content: %w", err)
	}
	if len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("gemini: empty candidates in response")
	}

	out := &llm.CompletionResponse{Content: resp.Text()}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = llm.Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	return out, nil
}

// StreamCompletion implements llm.Provider.
func (p *Provider) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	contents, gcfg := buildRequest(req)

	ch := make(chan llm.Chunk, 32)
	go func() {
		defer close(ch)
		for resp, err := range p.client.Models.GenerateContentStream(ctx, p.model, contents, gcfg) {
			out := llm.Chunk{}
			if err != nil {
				out = llm.Chunk{FinishReason: "error", Text: err.Error()}
			} else {
				out.Text = resp.Text()
				if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason != "" {
					out.FinishReason = strings.ToLower(string(resp.Candidates[0].FinishReason))
				}
			}
			select {
			case ch <- out:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()
	return ch, nil
}

// Capabilities implements llm.Provider.
func (p *Provider) Capabilities() llm.ModelCapabilities {
	caps := llm.ModelCapabilities{
		ContextWindow:            1_048_576,
		MaxOutputTokens:          8_192,
		SupportsStructuredOutput: true,
		SupportsStreaming:        true,
	}
	if strings.Contains(strings.ToLower(p.model), "2.5") {
		caps.MaxOutputTokens = 65_536
	}
	return caps
}

// buildRequest converts a CompletionRequest into genai contents and config.
// Assistant turns map to the model role; system messages are folded into the
// system instruction.
func buildRequest(req llm.CompletionRequest) ([]*genai.Content, *genai.GenerateContentConfig) {
	gcfg := &genai.GenerateContentConfig{}

	system := []string{}
	if req.SystemPrompt != "" {
		system = append(system, req.SystemPrompt)
	}

	var contents []*genai.Content
	for _, m := range req.Messages {
		switch m.Role {
		case llm.RoleSystem:
			system = append(system, m.Content)
		case llm.RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}

	if len(system) > 0 {
		gcfg.SystemInstruction = genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser)
	}
	if req.Temperature != 0 {
		gcfg.Temperature = genai.Ptr(float32(req.Temperature))
	}
	if req.MaxTokens > 0 {
		gcfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.ResponseFormat != nil {
		gcfg.ResponseMIMEType = "application/json"
		gcfg.ResponseJsonSchema = req.ResponseFormat.Schema
	}
	return contents, gcfg
}
