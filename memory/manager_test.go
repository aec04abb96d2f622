package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/flowmesh/swarmcore/core"
)

type charCountEstimator struct{}

func (charCountEstimator) EstimateTokens(s string) int { return len(s) }

func TestDedup_ByIDAndByContentPrefix(t *testing.T) {
	entries := []*core.MemoryEntry{
		{ID: "a", Content: "hello"},
		{ID: "a", Content: "hello duplicate id"},
		{ID: "", Content: strings_repeat("x", 150)},
		{ID: "", Content: strings_repeat("x", 150) + "-extra-tail"},
	}
	out := dedup(entries)
	assert.Len(t, out, 2)
}

func strings_repeat(s string, n int) string {
	out := make([]byte, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, s[0])
	}
	return string(out)
}

func TestTruncateAtWordBoundary(t *testing.T) {
	s := "the quick brown fox jumps over the lazy dog"
	got := truncateAtWordBoundary(s, 13)
	assert.Equal(t, "the quick", got)
	assert.LessOrEqual(t, len(got), 13)
}

func TestCompress_ReturnsAsIsUnderBudget(t *testing.T) {
	m := NewManager(nil, nil, nil, charCountEstimator{}, nil)
	entries := []*core.MemoryEntry{{Content: "short"}}
	out := m.compress(entries, "openai")
	assert.Equal(t, entries, out)
}

func TestCompress_CapsEntryCountWhenStillOverBudget(t *testing.T) {
	m := NewManager(nil, nil, nil, charCountEstimator{}, nil)
	orig := providerLimits["default"]
	providerLimits["default"] = 100
	defer func() { providerLimits["default"] = orig }()

	var entries []*core.MemoryEntry
	for i := 0; i < 50; i++ {
		entries = append(entries, &core.MemoryEntry{Content: strings_repeat("a", 50)})
	}
	out := m.compress(entries, "test-tiny")
	assert.LessOrEqual(t, len(out), 1)
}

func TestNormalizeProviderFamily(t *testing.T) {
	assert.Equal(t, "anthropic", normalizeProviderFamily("anthropic/claude-sonnet-4"))
	assert.Equal(t, "google", normalizeProviderFamily("gemini-2.0-flash"))
	assert.Equal(t, "openai", normalizeProviderFamily("gpt-4o"))
	assert.Equal(t, "default", normalizeProviderFamily("unknown-vendor"))
}
