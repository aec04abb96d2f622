package api

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettingsStore_LoadDefaultsWhenFileMissing(t *testing.T) {
	store := newSettingsStore(filepath.Join(t.TempDir(), "settings.json"))
	assert.Equal(t, defaultModelSettings(), store.load())
}

func TestSettingsStore_SaveThenLoadRoundTrips(t *testing.T) {
	store := newSettingsStore(filepath.Join(t.TempDir(), "nested", "settings.json"))

	updated := modelSettings{
		GoogleModel:     "google/gemini-1.5-pro",
		AnthropicModel:  "claude-3-opus-20240229",
		OpenAIModel:     "gpt-4o-mini",
		OpenRouterModel: "openrouter/openai/gpt-4o",
	}
	require.NoError(t, store.save(updated))

	fresh := newSettingsStore(store.path)
	assert.Equal(t, updated, fresh.load())
}

func TestSettingsStore_CachesAfterFirstLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	store := newSettingsStore(path)

	first := store.load()
	require.NotNil(t, store.cached)

	// Mutating the cached pointer's backing value should not be possible through
	// load's value-copy return; a second load must still equal the first snapshot.
	second := store.load()
	assert.Equal(t, first, second)
}
