package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/flowmesh/swarmcore/core"
	"github.com/flowmesh/swarmcore/llm"
)

const (
	openAIDefaultBaseURL = "https://api.openai.com/v1"
	openAIDefaultModel   = "gpt-4o"
)

// OpenAIClient implements llm.Client against the OpenAI chat completions API.
type OpenAIClient struct {
	*BaseClient
	apiKey  string
	baseURL string
}

// NewOpenAIClient creates an OpenAI client. baseURL defaults to the public API when empty,
// allowing OpenAI-compatible local endpoints to be substituted.
func NewOpenAIClient(apiKey, baseURL string, logger core.Logger) *OpenAIClient {
	if baseURL == "" {
		baseURL = openAIDefaultBaseURL
	}
	base := NewBaseClient(120*time.Second, logger)
	base.DefaultModel = openAIDefaultModel
	return &OpenAIClient{BaseClient: base, apiKey: apiKey, baseURL: baseURL}
}

func (c *OpenAIClient) Name() string { return "openai" }

type openAIChatRequest struct {
	Model          string                    `json:"model"`
	Messages       []openAIMessage           `json:"messages"`
	Temperature    float32                   `json:"temperature,omitempty"`
	MaxTokens      int                       `json:"max_tokens,omitempty"`
	Stream         bool                      `json:"stream,omitempty"`
	ResponseFormat *openAIResponseFormat     `json:"response_format,omitempty"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponseFormat struct {
	Type string `json:"type"`
}

type openAIChatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      openAIMessage `json:"message"`
		FinishReason string        `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (c *OpenAIClient) Complete(ctx context.Context, req llm.CompletionRequest, apiKeyOverride string) (*llm.CompletionResponse, error) {
	apiKey := c.apiKey
	if apiKeyOverride != "" {
		apiKey = apiKeyOverride
	}
	if apiKey == "" {
		return nil, fmt.Errorf("openai: API key not configured")
	}

	model, temperature, maxTokens := c.ApplyDefaults(req.Model, req.Temperature, req.MaxTokens)
	c.LogRequest("openai", model)

	messages := make([]openAIMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, openAIMessage{Role: m.Role, Content: m.Content})
	}

	body := openAIChatRequest{
		Model:       model,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}
	if req.ResponseFormat == "json_object" {
		body.ResponseFormat = &openAIResponseFormat{Type: "json_object"}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("openai: encode request: %w", err)
	}

	resp, err := c.DoWithRetry(ctx, func() (*http.Request, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+apiKey)
		return httpReq, nil
	})
	if err != nil {
		c.LogError("openai", err)
		return nil, fmt.Errorf("openai: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("openai: read response: %w", err)
	}

	var parsed openAIChatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("openai: decode response: %w", err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("openai: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("openai: empty choices")
	}

	finish := llm.FinishStop
	if parsed.Choices[0].FinishReason == "length" {
		finish = llm.FinishLength
	}

	return &llm.CompletionResponse{
		Content:  parsed.Choices[0].Message.Content,
		Model:    parsed.Model,
		Provider: "openai",
		Usage: llm.Usage{
			PromptTokens:     parsed.Usage.PromptTokens,
			CompletionTokens: parsed.Usage.CompletionTokens,
			TotalTokens:      parsed.Usage.TotalTokens,
		},
		FinishReason: finish,
	}, nil
}
