// Package tools implements the Tool Registry: a name -> callable map agents invoke
// during proposal/execution to ground their output in live data (spec §4.10).
package tools

import (
	"context"
	"fmt"
	"sync"

	"github.com/flowmesh/swarmcore/core"
)

// Result is one tool invocation's structured output. Execute never returns a Go error
// for a failed call; failures are carried in Error so a bad tool call degrades an
// agent's evidence instead of failing its whole turn (spec §4.10, mirrors web_fetch.py's
// non-raising contract).
type Result struct {
	Data  any    `json:"data"`
	Error string `json:"error,omitempty"`
}

// Tool is one registered callable. params carries the JSON-decoded argument object an
// agent's tool call produced.
type Tool func(ctx context.Context, params map[string]any) Result

// Schema describes one tool's parameters for inclusion in an agent's system prompt.
type Schema struct {
	Description string                    `json:"description"`
	Parameters  map[string]ParameterSchema `json:"parameters"`
}

// ParameterSchema describes a single named parameter of a Schema.
type ParameterSchema struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	Default     any    `json:"default,omitempty"`
}

// Registry is the central, concurrency-safe map of tool name to Tool.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	schemas map[string]Schema
	logger  core.Logger
}

// NewRegistry constructs an empty Registry. Callers wire concrete tools in with
// Register (see NewDefaultRegistry for the spec's standard vendor fallback chain).
func NewRegistry(logger core.Logger) *Registry {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &Registry{
		tools:   make(map[string]Tool),
		schemas: make(map[string]Schema),
		logger:  logger,
	}
}

// Register adds or replaces the tool named name.
func (r *Registry) Register(name string, tool Tool, schema Schema) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[name] = tool
	r.schemas[name] = schema
}

// Call runs the named tool and returns its structured Result. An unknown tool name
// surfaces as a Go error; once a tool is found, its own execution failures are carried
// in Result.Error rather than returned (spec §4.10).
func (r *Registry) Call(ctx context.Context, name string, params map[string]any) (Result, error) {
	r.mu.RLock()
	tool, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return Result{}, fmt.Errorf("tools: %q not found", name)
	}
	return tool(ctx, params), nil
}

// Execute adapts Call to the agent.ToolExecutor interface the agent package depends on:
// a plain map[string]any an agent's prompt-building code can index without importing
// this package's result types.
func (r *Registry) Execute(ctx context.Context, name string, params map[string]any) (map[string]any, error) {
	result, err := r.Call(ctx, name, params)
	if err != nil {
		return nil, err
	}
	if result.Error != "" {
		return map[string]any{"error": result.Error}, nil
	}

	switch name {
	case "web_search":
		hits, _ := result.Data.([]SearchHit)
		results := make([]any, 0, len(hits))
		for _, h := range hits {
			results = append(results, map[string]any{
				"title":   h.Title,
				"snippet": h.Content,
				"url":     h.URL,
				"score":   h.Score,
			})
		}
		return map[string]any{"results": results}, nil
	case "fetch_url":
		page, _ := result.Data.(FetchedPage)
		return map[string]any{
			"url":         page.URL,
			"content":     page.Content,
			"status_code": page.StatusCode,
		}, nil
	default:
		return map[string]any{"data": result.Data}, nil
	}
}

// ListTools returns the registered tool schemas, keyed by name, for inclusion in an
// agent's available-tools prompt section.
func (r *Registry) ListTools() map[string]Schema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Schema, len(r.schemas))
	for k, v := range r.schemas {
		out[k] = v
	}
	return out
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// NewDefaultRegistry builds the standard Registry: a web_search tool resolved through
// the Tavily -> Brave -> Gemini-native fallback chain (first configured key wins) plus
// an always-available fetch_url tool (spec §4.10).
func NewDefaultRegistry(providers core.ProvidersConfig, logger core.Logger) *Registry {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	r := NewRegistry(logger)

	searchSchema := Schema{
		Description: "Search the web for current information",
		Parameters: map[string]ParameterSchema{
			"query":       {Type: "string", Description: "Search query"},
			"max_results": {Type: "integer", Default: 5},
		},
	}

	switch {
	case providers.TavilyAPIKey != "":
		r.Register("web_search", NewTavilySearch(providers.TavilyAPIKey).Search, searchSchema)
		logger.Info("tools: web_search backed by Tavily", nil)
	case providers.BraveAPIKey != "":
		r.Register("web_search", NewBraveSearch(providers.BraveAPIKey).Search, searchSchema)
		logger.Info("tools: web_search backed by Brave", nil)
	case providers.GoogleAPIKey != "":
		r.Register("web_search", NewGeminiSearch(providers.GoogleAPIKey).Search, searchSchema)
		logger.Info("tools: web_search backed by Gemini fallback", nil)
	default:
		logger.Warn("tools: web_search disabled, no TAVILY_API_KEY/BRAVE_API_KEY/GOOGLE_API_KEY configured", nil)
	}

	r.Register("fetch_url", NewFetchURL().Fetch, Schema{
		Description: "Extract content from a specific URL",
		Parameters: map[string]ParameterSchema{
			"url": {Type: "string", Description: "URL to fetch"},
		},
	})

	return r
}
