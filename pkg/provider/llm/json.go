package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyResponse is returned when the model produced no content.
var ErrEmptyResponse = errors.New("llm: empty response")

// ErrDecode wraps every failure to turn model output into the requested
// type. Callers that substitute a default for unusable output test for it
// with errors.Is; transport and provider errors never match.
var ErrDecode = errors.New("llm: decode json")

// CleanJSON strips Markdown code fences and surrounding whitespace that models
// commonly wrap around JSON output.
func CleanJSON(input string) string {
	clean := strings.TrimSpace(input)

	if rest, ok := strings.CutPrefix(clean, "```json"); ok {
		clean = rest
	} else if rest, ok := strings.CutPrefix(clean, "```"); ok {
		clean = rest
	}
	clean = strings.TrimLeft(clean, "\r\n")
	clean = strings.TrimSuffix(strings.TrimSpace(clean), "```")

	return strings.TrimSpace(clean)
}

// DecodeJSON cleans content and unmarshals it into a T.
func DecodeJSON[T any](content string) (T, error) {
	var v T
	clean := CleanJSON(content)
	if clean == "" {
		return v, fmt.Errorf("%w: %w", ErrDecode, ErrEmptyResponse)
	}
	if err := json.Unmarshal([]byte(clean), &v); err != nil {
		return v, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return v, nil
}

// CompleteJSON runs a non-streaming completion and decodes the reply into a T.
// req.ResponseFormat should describe T.
func CompleteJSON[T any](ctx context.Context, p Provider, req CompletionRequest) (T, error) {
	var zero T
	resp, err := p.Complete(ctx, req)
	if err != nil {
		return zero, err
	}
	if resp == nil {
		return zero, fmt.Errorf("%w: %w", ErrDecode, ErrEmptyResponse)
	}
	return DecodeJSON[T](resp.Content)
}

// SchemaInstruction renders rf as a prompt suffix for providers that cannot
// constrain decoding natively. It returns "" when rf is nil.
func SchemaInstruction(rf *ResponseFormat) string {
	if rf == nil {
		return ""
	}
	schema, err := json.Marshal(rf.Schema)
	if err != nil {
		return ""
	}
	var b strings.Builder
	b.WriteString("Respond with a single JSON object and nothing else. ")
	if rf.Description != "" {
		b.WriteString(rf.Description)
		b.WriteString(" ")
	}
	b.WriteString("The object must conform to this JSON Schema:\n")
	b.Write(schema)
	return b.String()
}
