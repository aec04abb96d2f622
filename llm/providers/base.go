// Package providers holds the hand-rolled net/http vendor clients for the LLM Router:
// one file per vendor (anthropic, gemini, openai, openrouter) sharing BaseClient, plus
// a build-tag-gated bedrock.go for AWS Bedrock's Converse API.
package providers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/flowmesh/swarmcore/core"
)

// BaseClient provides the HTTP transport, retry policy, and default-option handling
// shared by every vendor client.
type BaseClient struct {
	HTTPClient *http.Client
	Logger     core.Logger

	MaxRetries int

	DefaultModel       string
	DefaultTemperature float32
	DefaultMaxTokens   int
}

// NewBaseClient creates a base client with the given per-call timeout.
func NewBaseClient(timeout time.Duration, logger core.Logger) *BaseClient {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &BaseClient{
		HTTPClient:         &http.Client{Timeout: timeout},
		Logger:             logger,
		MaxRetries:         3,
		DefaultTemperature: 0.7,
		DefaultMaxTokens:   1000,
	}
}

// DoWithRetry executes build once per attempt (so callers can re-sign/re-body the
// request) under a bounded exponential backoff policy, retrying on network errors and
// 429/5xx responses.
func (b *BaseClient) DoWithRetry(ctx context.Context, build func() (*http.Request, error)) (*http.Response, error) {
	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(b.MaxRetries))
	policy = backoff.WithContext(policy, ctx) //nolint:staticcheck // explicit ctx propagation

	var resp *http.Response
	operation := func() error {
		req, err := build()
		if err != nil {
			return backoff.Permanent(err)
		}

		r, err := b.HTTPClient.Do(req)
		if err != nil {
			return err
		}

		if r.StatusCode == http.StatusTooManyRequests || r.StatusCode >= 500 {
			r.Body.Close()
			return fmt.Errorf("retryable status %d", r.StatusCode)
		}

		resp = r
		return nil
	}

	if err := backoff.Retry(operation, policy); err != nil {
		return nil, fmt.Errorf("request failed after retries: %w", err)
	}
	return resp, nil
}

// ApplyDefaults fills unset request fields from the client's configured defaults.
func (b *BaseClient) ApplyDefaults(model string, temperature float32, maxTokens int) (string, float32, int) {
	if model == "" {
		model = b.DefaultModel
	}
	if temperature == 0 {
		temperature = b.DefaultTemperature
	}
	if maxTokens == 0 {
		maxTokens = b.DefaultMaxTokens
	}
	return model, temperature, maxTokens
}

// LogRequest logs a normalized pre-call trace line.
func (b *BaseClient) LogRequest(provider, model string) {
	b.Logger.Debug("llm request", map[string]interface{}{
		"provider": provider,
		"model":    model,
	})
}

// LogError logs a normalized vendor-call failure.
func (b *BaseClient) LogError(provider string, err error) {
	b.Logger.Error("llm provider error", map[string]interface{}{
		"provider": provider,
		"error":    err.Error(),
	})
}
