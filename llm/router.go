package llm

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/flowmesh/swarmcore/core"
)

// fallbackMap is the static provider -> alternative-provider table consulted when the
// primary provider's circuit breaker is open (spec §4.1).
var fallbackMap = map[string]string{
	"anthropic":  "openrouter",
	"google":     "openrouter",
	"openai":     "openrouter",
	"openrouter": "anthropic",
	"bedrock":    "openrouter",
}

// legacyModelAliases maps historical shorthand model names to a concrete provider, the
// way the original router.py normalizes requests that predate the provider-prefixed
// naming scheme.
var legacyModelAliases = map[string]string{
	"gemini-flash":  "google",
	"claude-sonnet": "anthropic",
	"gpt-4o":        "openai",
}

// credentialEnvVars lists, per provider, every environment variable that must be
// temporarily overridden for the duration of a call (spec §4.1: some vendors are
// addressed by more than one env var name, e.g. Google accepts both GEMINI_API_KEY and
// GOOGLE_API_KEY).
var credentialEnvVars = map[string][]string{
	"anthropic":  {"ANTHROPIC_API_KEY"},
	"google":     {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
	"openai":     {"OPENAI_API_KEY"},
	"openrouter": {"OPENROUTER_API_KEY"},
}

// Router is the unified LLM entry point (spec §4.1): provider resolution, fallback
// substitution, per-provider circuit breaking, truncation recovery, and credential
// scoping.
type Router struct {
	registry  *Registry
	breakers  map[string]*ProviderBreaker
	breakersMu sync.Mutex
	cbConfig  core.CircuitBreakerConfig

	logger    core.Logger
	telemetry core.Telemetry

	encoder *tiktoken.Tiktoken
}

// NewRouter constructs a Router over a populated provider Registry.
func NewRouter(registry *Registry, logger core.Logger, telemetry core.Telemetry) *Router {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if telemetry == nil {
		telemetry = &core.NoOpTelemetry{}
	}

	// cl100k_base is a single stable encoding used purely for token estimation across
	// vendors (spec §4.1/§4.2); it need not match any one vendor's exact tokenizer.
	encoder, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		encoder = nil
	}

	return &Router{
		registry:  registry,
		breakers:  make(map[string]*ProviderBreaker),
		cbConfig:  core.DefaultCircuitBreakerDefaults(),
		logger:    logger,
		telemetry: telemetry,
		encoder:   encoder,
	}
}

// EstimateTokens returns a BPE-based token count estimate for s, or a conservative
// chars/4 fallback if the encoder failed to initialize.
func (r *Router) EstimateTokens(s string) int {
	if r.encoder != nil {
		return len(r.encoder.Encode(s, nil, nil))
	}
	return len(s)/4 + 1
}

// ProviderStatus is one cloud provider's configuration and circuit-breaker snapshot, for
// the dashboard's GET /api/providers/status endpoint.
type ProviderStatus struct {
	Provider     string `json:"provider"`
	Configured   bool   `json:"configured"`
	BreakerState string `json:"breaker_state"`
	FailureCount int    `json:"failure_count"`
}

// ProviderStatuses reports every configured cloud provider's circuit-breaker state. A
// provider that has never been called yet is reported "closed" with zero failures, since
// breakerFor lazily creates breakers in the closed state.
func (r *Router) ProviderStatuses() []ProviderStatus {
	names := r.registry.CloudProviders()
	out := make([]ProviderStatus, 0, len(names))
	for _, name := range names {
		b := r.breakerFor(name)
		metrics := b.GetMetrics()
		failureCount, _ := metrics["failure_count"].(int)
		out = append(out, ProviderStatus{
			Provider:     name,
			Configured:   true,
			BreakerState: b.GetState(),
			FailureCount: failureCount,
		})
	}
	return out
}

func (r *Router) breakerFor(provider string) *ProviderBreaker {
	r.breakersMu.Lock()
	defer r.breakersMu.Unlock()

	b, ok := r.breakers[provider]
	if !ok {
		b = NewProviderBreaker(provider, r.cbConfig)
		r.breakers[provider] = b
	}
	return b
}

// resolveModel normalizes a symbolic model string into (provider, vendorModel).
// Handles: "auto", legacy aliases, bare provider names, and already-prefixed
// "provider/model" strings (treated as already-resolved, spec §4.1).
func resolveModel(model string) (provider string, vendorModel string) {
	if model == "" || model == "auto" {
		return "auto", ""
	}
	if strings.Contains(model, "/") {
		parts := strings.SplitN(model, "/", 2)
		return parts[0], parts[1]
	}
	if p, ok := legacyModelAliases[model]; ok {
		return p, ""
	}
	switch model {
	case "anthropic", "google", "openai", "openrouter", "bedrock":
		return model, ""
	}
	// Unknown bare string: treat as a vendor model id for the auto-selected provider.
	return "auto", model
}

// Completion is the Router's single entry point (spec §4.1).
func (r *Router) Completion(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	provider, vendorModel := resolveModel(req.Model)

	client, ok := r.registry.Resolve(provider)
	if !ok {
		return nil, core.NewTaskError("llm.Completion", core.KindFatalPlan, "", fmt.Errorf("no provider available for model %q", req.Model))
	}
	resolvedProvider := client.Name()

	// Fallback substitution: if the primary provider's breaker is open, walk the static
	// fallback table until a reachable provider is found.
	breaker := r.breakerFor(resolvedProvider)
	seen := map[string]bool{resolvedProvider: true}
	for !breaker.CanExecute() {
		next, ok := fallbackMap[resolvedProvider]
		if !ok || seen[next] {
			return nil, core.NewTaskError("llm.Completion", core.KindLLMCallFailed, "", fmt.Errorf("provider %q and its fallback chain are unavailable", resolvedProvider))
		}
		fallbackClient, ok := r.registry.Resolve(next)
		if !ok {
			return nil, core.NewTaskError("llm.Completion", core.KindLLMCallFailed, "", fmt.Errorf("fallback provider %q not configured", next))
		}
		client = fallbackClient
		resolvedProvider = client.Name()
		breaker = r.breakerFor(resolvedProvider)
		seen[resolvedProvider] = true
	}

	callReq := req
	if vendorModel != "" {
		callReq.Model = vendorModel
	} else {
		callReq.Model = ""
	}

	resp, err := r.callWithCredentials(ctx, client, resolvedProvider, breaker, callReq)
	if err != nil {
		return nil, err
	}

	// Truncation recovery: at most one continuation per call (spec §4.1).
	if resp.FinishReason == FinishLength {
		contReq := callReq
		contReq.Messages = append(append([]Message{}, callReq.Messages...), Message{
			Role:    "assistant",
			Content: resp.Content,
		}, Message{
			Role:    "user",
			Content: "continue",
		})

		contResp, err := r.callWithCredentials(ctx, client, resolvedProvider, breaker, contReq)
		if err == nil {
			resp.Content += contResp.Content
			resp.Usage.PromptTokens += contResp.Usage.PromptTokens
			resp.Usage.CompletionTokens += contResp.Usage.CompletionTokens
			resp.Usage.TotalTokens += contResp.Usage.TotalTokens
			resp.FinishReason = contResp.FinishReason
		}
	}

	return resp, nil
}

// callWithCredentials executes one vendor call, temporarily overriding the provider's
// credential env vars for the duration of the call and restoring them on every exit
// path (spec §4.1), while also passing the key directly to the client.
func (r *Router) callWithCredentials(ctx context.Context, client Client, provider string, breaker *ProviderBreaker, req CompletionRequest) (*CompletionResponse, error) {
	envVars := credentialEnvVars[provider]
	original := make(map[string]string, len(envVars))
	hadOriginal := make(map[string]bool, len(envVars))

	if req.APIKey != "" {
		for _, name := range envVars {
			if v, ok := os.LookupEnv(name); ok {
				original[name] = v
				hadOriginal[name] = true
			}
			os.Setenv(name, req.APIKey)
		}
		defer func() {
			for _, name := range envVars {
				if hadOriginal[name] {
					os.Setenv(name, original[name])
				} else {
					os.Unsetenv(name)
				}
			}
		}()
	}

	var resp *CompletionResponse
	err := breaker.Execute(ctx, func() error {
		var callErr error
		resp, callErr = client.Complete(ctx, req, req.APIKey)
		return callErr
	})
	if err != nil {
		r.logger.ErrorWithContext(ctx, "llm call failed", map[string]interface{}{
			"provider": provider,
			"error":    err.Error(),
		})
		if err == core.ErrCircuitOpen {
			return nil, core.NewTaskError("llm.Completion", core.KindLLMCallFailed, "", fmt.Errorf("circuit open for provider %s", provider))
		}
		return nil, core.NewTaskError("llm.Completion", core.KindLLMCallFailed, "", fmt.Errorf("provider %s: %w", provider, err))
	}

	r.telemetry.RecordMetric("llm.completion.tokens", float64(resp.Usage.TotalTokens), map[string]string{"provider": provider})
	return resp, nil
}
