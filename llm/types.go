// Package llm implements the unified LLM Router: provider resolution, fallback
// substitution, per-provider circuit breaking, truncation recovery, and credential
// scoping across the anthropic/google/openai/openrouter/bedrock vendor clients.
package llm

import "context"

// Message is one turn in a chat-completion request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Tool describes a callable tool advertised to the model (opaque pass-through; the
// Router does not interpret tool schemas itself).
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// CompletionRequest is the Router's single entry point signature (spec §4.1).
type CompletionRequest struct {
	Model          string
	Messages       []Message
	Temperature    float32
	MaxTokens      int
	Tools          []Tool
	Stream         bool
	ResponseFormat string // e.g. "json_object", empty for free text

	// APIKey overrides the provider's configured credential for this call only
	// (spec §4.1 credential scoping).
	APIKey string
}

// FinishReason enumerates the vendor-normalized stop reasons the Router understands.
type FinishReason string

const (
	FinishStop      FinishReason = "stop"
	FinishLength    FinishReason = "length"
	FinishToolCalls FinishReason = "tool_calls"
	FinishError     FinishReason = "error"
)

// Usage is the normalized token accounting returned by every vendor client.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// CompletionResponse is the Router's normalized result.
type CompletionResponse struct {
	Content      string       `json:"content"`
	Model        string       `json:"model"`
	Provider     string       `json:"provider"`
	Usage        Usage        `json:"usage"`
	FinishReason FinishReason `json:"finish_reason"`
}

// Client is implemented by every vendor-specific provider client.
type Client interface {
	// Complete issues one vendor call. apiKeyOverride, when non-empty, takes
	// precedence over the client's configured credential for this call only.
	Complete(ctx context.Context, req CompletionRequest, apiKeyOverride string) (*CompletionResponse, error)

	// Name is the vendor identifier ("anthropic", "google", "openai", "openrouter",
	// "bedrock").
	Name() string
}
