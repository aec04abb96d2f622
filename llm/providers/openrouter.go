package providers

import (
	"context"

	"github.com/flowmesh/swarmcore/core"
	"github.com/flowmesh/swarmcore/llm"
)

const (
	openRouterDefaultBaseURL = "https://openrouter.ai/api/v1"
	openRouterDefaultModel   = "openrouter/auto"
)

// OpenRouterClient reuses the OpenAI-compatible request/response shape since
// OpenRouter's API is a drop-in superset of OpenAI's chat completions endpoint.
type OpenRouterClient struct {
	*OpenAIClient
}

// NewOpenRouterClient creates an OpenRouter client (priority-4 fallback provider, spec §4.1).
func NewOpenRouterClient(apiKey, baseURL string, logger core.Logger) *OpenRouterClient {
	if baseURL == "" {
		baseURL = openRouterDefaultBaseURL
	}
	inner := NewOpenAIClient(apiKey, baseURL, logger)
	inner.DefaultModel = openRouterDefaultModel
	inner.BaseClient.MaxRetries = 2
	return &OpenRouterClient{OpenAIClient: inner}
}

func (c *OpenRouterClient) Name() string { return "openrouter" }

// Complete delegates to the embedded OpenAI-compatible client and relabels the
// provider field, since OpenRouter speaks the OpenAI wire format verbatim.
func (c *OpenRouterClient) Complete(ctx context.Context, req llm.CompletionRequest, apiKeyOverride string) (*llm.CompletionResponse, error) {
	resp, err := c.OpenAIClient.Complete(ctx, req, apiKeyOverride)
	if err != nil {
		return nil, err
	}
	resp.Provider = "openrouter"
	return resp, nil
}
