// Package llm defines the Provider interface for Large Language Model backends.
//
// An LLM provider wraps a remote or local model API (OpenAI, Gemini, or any
// backend reachable through any-llm-go) and exposes a uniform interface for
// completions with optional structured JSON output, without coupling callers
// to any specific SDK.
//
// Implementors must be safe for concurrent use. Channels returned by
// StreamCompletion must be closed by the implementation when the stream ends or
// when the supplied context is cancelled.
package llm

import "context"

// Message roles understood by every provider.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a single message in an LLM conversation history.
type Message struct {
	// Role is one of RoleSystem, RoleUser or RoleAssistant.
	Role string

	// Content is the text content of the message.
	Content string
}

// ResponseFormat constrains the model to emit a single JSON document matching
// Schema. Providers without native structured output append the schema to the
// system prompt instead (see SchemaInstruction).
type ResponseFormat struct {
	// Name identifies the schema. Must match ^[a-zA-Z0-9_-]+$ for OpenAI.
	Name string

	// Description is an optional hint for the model.
	Description string

	// Schema is a JSON Schema object.
	Schema map[string]any
}

// Usage holds token accounting information returned by the LLM backend.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest carries everything the LLM needs to produce a response.
// At minimum Messages must be non-empty.
type CompletionRequest struct {
	// Messages is the ordered conversation history. The last message is typically
	// from the user role and drives the response.
	Messages []Message

	// SystemPrompt is an optional high-priority instruction injected before the
	// conversation history.
	SystemPrompt string

	// Temperature controls output randomness in the range [0.0, 2.0]. Zero means
	// the provider default.
	Temperature float64

	// MaxTokens caps the number of completion tokens. Zero means provider default.
	MaxTokens int

	// ResponseFormat, when non-nil, requests structured JSON output.
	ResponseFormat *ResponseFormat
}

// Chunk is a single fragment emitted by a streaming completion.
type Chunk struct {
	// Text is the incremental text content of this chunk.
	Text string

	// FinishReason is set on the final chunk: "stop", "length", or "error" when
	// the stream failed after it started (Text then carries the error message).
	FinishReason string
}

// CompletionResponse is returned by the non-streaming Complete method.
type CompletionResponse struct {
	// Content is the full text of the assistant's reply.
	Content string

	// Usage contains token accounting for this request/response pair.
	Usage Usage
}

// ModelCapabilities describes what an LLM model supports.
type ModelCapabilities struct {
	// ContextWindow is the maximum token count for input + output.
	ContextWindow int

	// MaxOutputTokens is the maximum tokens the model can generate in one completion.
	MaxOutputTokens int

	// SupportsStructuredOutput indicates native JSON-schema constrained decoding.
	SupportsStructuredOutput bool

	// SupportsStreaming indicates the model supports streaming completions.
	SupportsStreaming bool
}

// Provider is the abstraction over any LLM backend.
//
// Each method should propagate context cancellation promptly: when ctx is
// cancelled the method must return (or close its channel) as quickly as possible.
type Provider interface {
	// StreamCompletion sends req to the model and returns a read-only channel that
	// emits Chunk values as they arrive. The channel is closed by the implementation
	// when generation finishes or when ctx is cancelled.
	//
	// Errors after the channel is opened are surfaced as a Chunk with
	// FinishReason "error". The returned channel is never nil when error is nil.
	StreamCompletion(ctx context.Context, req CompletionRequest) (<-chan Chunk, error)

	// Complete sends req to the model and waits for the full response.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Capabilities returns static metadata describing the underlying model.
	Capabilities() ModelCapabilities
}
