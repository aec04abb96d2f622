package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_CallUnknownToolErrors(t *testing.T) {
	r := NewRegistry(nil)
	_, err := r.Call(context.Background(), "nope", nil)
	require.Error(t, err)
}

func TestRegistry_CallRegisteredTool(t *testing.T) {
	r := NewRegistry(nil)
	r.Register("echo", func(ctx context.Context, params map[string]any) Result {
		return Result{Data: params["value"]}
	}, Schema{Description: "echoes its input"})

	result, err := r.Call(context.Background(), "echo", map[string]any{"value": "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hi", result.Data)
	assert.True(t, r.Has("echo"))
	assert.False(t, r.Has("nope"))
}

func TestRegistry_ExecuteCarriesToolErrorWithoutGoError(t *testing.T) {
	r := NewRegistry(nil)
	r.Register("failing", func(ctx context.Context, params map[string]any) Result {
		return Result{Error: "boom"}
	}, Schema{})

	out, err := r.Execute(context.Background(), "failing", nil)
	require.NoError(t, err)
	assert.Equal(t, "boom", out["error"])
}

func TestRegistry_ExecuteWebSearchShapesResults(t *testing.T) {
	r := NewRegistry(nil)
	r.Register("web_search", func(ctx context.Context, params map[string]any) Result {
		return Result{Data: []SearchHit{{Title: "t", Content: "c", URL: "u", Score: 0.5}}}
	}, Schema{})

	out, err := r.Execute(context.Background(), "web_search", map[string]any{"query": "x"})
	require.NoError(t, err)
	results, ok := out["results"].([]any)
	require.True(t, ok)
	require.Len(t, results, 1)
	entry := results[0].(map[string]any)
	assert.Equal(t, "t", entry["title"])
	assert.Equal(t, "u", entry["url"])
}

func TestRegistry_ListToolsReturnsSchemas(t *testing.T) {
	r := NewRegistry(nil)
	r.Register("a", func(ctx context.Context, params map[string]any) Result { return Result{} }, Schema{Description: "a tool"})

	schemas := r.ListTools()
	require.Contains(t, schemas, "a")
	assert.Equal(t, "a tool", schemas["a"].Description)
}
