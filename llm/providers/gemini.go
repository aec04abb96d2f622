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
	geminiDefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	geminiDefaultModel   = "gemini-2.0-flash"
)

// GeminiClient implements llm.Client against the Google Generative Language API.
type GeminiClient struct {
	*BaseClient
	apiKey  string
	baseURL string
}

func NewGeminiClient(apiKey, baseURL string, logger core.Logger) *GeminiClient {
	if baseURL == "" {
		baseURL = geminiDefaultBaseURL
	}
	base := NewBaseClient(120*time.Second, logger)
	base.DefaultModel = geminiDefaultModel
	return &GeminiClient{BaseClient: base, apiKey: apiKey, baseURL: baseURL}
}

func (c *GeminiClient) Name() string { return "google" }

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent         `json:"systemInstruction,omitempty"`
	Contents          []geminiContent        `json:"contents"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
}

type geminiGenerationConfig struct {
	Temperature     float32 `json:"temperature,omitempty"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
	ResponseMIMEType string `json:"responseMimeType,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *GeminiClient) Complete(ctx context.Context, req llm.CompletionRequest, apiKeyOverride string) (*llm.CompletionResponse, error) {
	apiKey := c.apiKey
	if apiKeyOverride != "" {
		apiKey = apiKeyOverride
	}
	if apiKey == "" {
		return nil, fmt.Errorf("google: API key not configured")
	}

	model, temperature, maxTokens := c.ApplyDefaults(req.Model, req.Temperature, req.MaxTokens)
	c.LogRequest("google", model)

	var system *geminiContent
	contents := make([]geminiContent, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m.Role == "system" {
			system = &geminiContent{Parts: []geminiPart{{Text: m.Content}}}
			continue
		}
		role := "user"
		if m.Role == "assistant" {
			role = "model"
		}
		contents = append(contents, geminiContent{Role: role, Parts: []geminiPart{{Text: m.Content}}})
	}

	genConfig := geminiGenerationConfig{Temperature: temperature, MaxOutputTokens: maxTokens}
	if req.ResponseFormat == "json_object" {
		genConfig.ResponseMIMEType = "application/json"
	}

	body := geminiRequest{
		SystemInstruction: system,
		Contents:          contents,
		GenerationConfig:  genConfig,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("google: encode request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, model, apiKey)

	resp, err := c.DoWithRetry(ctx, func() (*http.Request, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		return httpReq, nil
	})
	if err != nil {
		c.LogError("google", err)
		return nil, fmt.Errorf("google: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("google: read response: %w", err)
	}

	var parsed geminiResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("google: decode response: %w", err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("google: %s", parsed.Error.Message)
	}
	if len(parsed.Candidates) == 0 {
		return nil, fmt.Errorf("google: empty candidates")
	}

	var text string
	for _, part := range parsed.Candidates[0].Content.Parts {
		text += part.Text
	}

	finish := llm.FinishStop
	if parsed.Candidates[0].FinishReason == "MAX_TOKENS" {
		finish = llm.FinishLength
	}

	return &llm.CompletionResponse{
		Content:  text,
		Model:    model,
		Provider: "google",
		Usage: llm.Usage{
			PromptTokens:     parsed.UsageMetadata.PromptTokenCount,
			CompletionTokens: parsed.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      parsed.UsageMetadata.TotalTokenCount,
		},
		FinishReason: finish,
	}, nil
}
