// Package openai is the native OpenAI chat-completions [llm.Provider].
//
// Unlike the any-llm adapter it sends a [llm.ResponseFormat] as a strict
// json_schema response format, so models that support it are constrained to
// valid output. Older models get the schema in the system prompt instead.
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
	"github.com/openai/openai-go/shared"

	"github.com/AnsuryX/Autojob-Mvp/pkg/provider/llm"
)

var _ llm.Provider = (*Provider)(nil)

// Provider talks to the OpenAI API, or any server exposing the same
// /chat/completions surface.
type Provider struct {
	client oai.Client
	model  string
	caps   llm.ModelCapabilities
}

// Option customises the underlying client.
type Option func(*[]option.RequestOption)

// WithBaseURL points the client at a compatible server.
func WithBaseURL(url string) Option {
	return func(o *[]option.RequestOption) { *o = append(*o, option.WithBaseURL(url)) }
}

// WithOrganization sends the OpenAI-Organization header.
func WithOrganization(org string) Option {
	return func(o *[]option.RequestOption) { *o = append(*o, option.WithOrganization(org)) }
}

// WithTimeout bounds each HTTP request.
func WithTimeout(d time.Duration) Option {
	return func(o *[]option.RequestOption) {
		*o = append(*o, option.WithHTTPClient(&http.Client{Timeout: d}))
	}
}

// New returns a provider for model. Retries are disabled; failover is the
// resilience layer's job.
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai: apiKey must not be empty")
	}
	if model == "" {
		return nil, errors.New("openai: model must not be empty")
	}
	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}
	for _, o := range opts {
		o(&reqOpts)
	}
	return &Provider{
		client: oai.NewClient(reqOpts...),
		model:  model,
		caps:   modelCapabilities(model),
	}, nil
}

// Complete implements [llm.Provider].
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	params, err := p.buildParams(req)
	if err != nil {
		return nil, err
	}
	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("openai: completion returned no choices")
	}
	return &llm.CompletionResponse{
		Content: resp.Choices[0].Message.Content,
		Usage: llm.Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}, nil
}

// StreamCompletion implements [llm.Provider].
func (p *Provider) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	params, err := p.buildParams(req)
	if err != nil {
		return nil, err
	}
	stream := p.client.Chat.Completions.NewStreaming(ctx, params)
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("openai: start stream: %w", err)
	}

	out := make(chan llm.Chunk, 32)
	go func() {
		defer close(out)
		defer stream.Close()
		emit := func(c llm.Chunk) bool {
			select {
			case out <- c:
				return true
			case <-ctx.Done():
				return false
			}
		}
		for stream.Next() {
			cur := stream.Current()
			if len(cur.Choices) == 0 {
				continue
			}
			if !emit(llm.Chunk{Text: cur.Choices[0].Delta.Content, FinishReason: cur.Choices[0].FinishReason}) {
				return
			}
		}
		if err := stream.Err(); err != nil {
			emit(llm.Chunk{FinishReason: "error", Text: err.Error()})
		}
	}()
	return out, nil
}

// Capabilities implements [llm.Provider].
func (p *Provider) Capabilities() llm.ModelCapabilities { return p.caps }

func (p *Provider) buildParams(req llm.CompletionRequest) (oai.ChatCompletionNewParams, error) {
	system := req.SystemPrompt
	rf := req.ResponseFormat
	if rf != nil && !p.caps.SupportsStructuredOutput {
		system = strings.TrimSpace(system + "\n\n" + llm.SchemaInstruction(rf))
		rf = nil
	}

	msgs := make([]oai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if system != "" {
		msgs = append(msgs, oai.SystemMessage(system))
	}
	for _, m := range req.Messages {
		msg, err := convertMessage(m)
		if err != nil {
			return oai.ChatCompletionNewParams{}, err
		}
		msgs = append(msgs, msg)
	}

	params := oai.ChatCompletionNewParams{Model: shared.ChatModel(p.model), Messages: msgs}
	if req.Temperature != 0 {
		params.Temperature = param.NewOpt(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(req.MaxTokens))
	}
	if rf != nil {
		schema := oai.ResponseFormatJSONSchemaJSONSchemaParam{
			Name:   rf.Name,
			Schema: rf.Schema,
			Strict: oai.Bool(true),
		}
		if rf.Description != "" {
			schema.Description = oai.String(rf.Description)
		}
		params.ResponseFormat = oai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &oai.ResponseFormatJSONSchemaParam{JSONSchema: schema},
		}
	}
	return params, nil
}

func convertMessage(m llm.Message) (oai.ChatCompletionMessageParamUnion, error) {
	switch m.Role {
	case llm.RoleSystem:
		return oai.SystemMessage(m.Content), nil
	case llm.RoleUser:
		return oai.UserMessage(m.Content), nil
	case llm.RoleAssistant:
		return oai.AssistantMessage(m.Content), nil
	}
	return oai.ChatCompletionMessageParamUnion{}, fmt.Errorf("openai: unknown message role %q", m.Role)
}

// modelFamily describes models whose lowercased name starts with prefix.
// Zero sizes keep the defaults.
type modelFamily struct {
	prefix        string
	contextWindow int
	maxOutput     int
	noSchema      bool
}

// modelFamilies is ordered so longer prefixes precede the shorter ones they
// share a start with.
var modelFamilies = []modelFamily{
	{prefix: "gpt-4.1", contextWindow: 1_047_576, maxOutput: 32_768},
	{prefix: "gpt-4o", maxOutput: 16_384},
	{prefix: "gpt-4-turbo", noSchema: true},
	{prefix: "gpt-4", contextWindow: 8_192, noSchema: true},
	{prefix: "gpt-3.5-turbo", contextWindow: 16_385, noSchema: true},
	{prefix: "o1-mini", maxOutput: 65_536, noSchema: true},
	{prefix: "o1", contextWindow: 200_000, maxOutput: 100_000},
	{prefix: "o3", contextWindow: 200_000, maxOutput: 100_000},
	{prefix: "o4", contextWindow: 200_000, maxOutput: 100_000},
}

func modelCapabilities(model string) llm.ModelCapabilities {
	caps := llm.ModelCapabilities{
		SupportsStreaming:        true,
		SupportsStructuredOutput: true,
		ContextWindow:            128_000,
		MaxOutputTokens:          4_096,
	}
	lower := strings.ToLower(model)
	for _, f := range modelFamilies {
		if !strings.HasPrefix(lower, f.prefix) {
			continue
		}
		if f.contextWindow > 0 {
			caps.ContextWindow = f.contextWindow
		}
		if f.maxOutput > 0 {
			caps.MaxOutputTokens = f.maxOutput
		}
		caps.SupportsStructuredOutput = !f.noSchema
		break
	}
	return caps
}
