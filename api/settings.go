package api

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/gin-gonic/gin"
)

// modelSettings is the per-provider model preference persisted across restarts
// (spec §6, §9; grounded on the original settings.py ModelSettings defaults).
type modelSettings struct {
	GoogleModel     string `json:"google_model"`
	AnthropicModel  string `json:"anthropic_model"`
	OpenAIModel     string `json:"openai_model"`
	OpenRouterModel string `json:"openrouter_model"`
}

func defaultModelSettings() modelSettings {
	return modelSettings{
		GoogleModel:     "google/gemini-2.0-flash-exp",
		AnthropicModel:  "claude-3-5-sonnet-20241022",
		OpenAIModel:     "gpt-4o",
		OpenRouterModel: "openrouter/anthropic/claude-3-sonnet",
	}
}

// settingsStore persists modelSettings to a local JSON file, caching the last loaded
// value in memory the way the original settings module does with its module-level
// cache (spec §9: settings are a local JSON artifact, not a database table).
type settingsStore struct {
	mu       sync.Mutex
	path     string
	cached   *modelSettings
}

func newSettingsStore(path string) *settingsStore {
	return &settingsStore{path: path}
}

func (s *settingsStore) load() modelSettings {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cached != nil {
		return *s.cached
	}

	settings := defaultModelSettings()
	if data, err := os.ReadFile(s.path); err == nil {
		_ = json.Unmarshal(data, &settings)
	}
	s.cached = &settings
	return settings
}

func (s *settingsStore) save(settings modelSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cached = &settings

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o644)
}

func (s *Server) handleGetSettings(c *gin.Context) {
	c.JSON(http.StatusOK, s.settings.load())
}

func (s *Server) handleUpdateSettings(c *gin.Context) {
	var settings modelSettings
	if err := c.ShouldBindJSON(&settings); err != nil {
		writeError(c, http.StatusBadRequest, "invalid request body", "INVALID_REQUEST")
		return
	}
	if err := s.settings.save(settings); err != nil {
		writeError(c, http.StatusInternalServerError, "failed to save settings", "SETTINGS_SAVE_FAILED")
		return
	}
	c.JSON(http.StatusOK, settings)
}

type modelOption struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// handleListModels implements GET /api/settings/models: the catalog of selectable
// models per provider, grounded on the original get_available_models() table.
func (s *Server) handleListModels(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"google": []modelOption{
			{ID: "google/gemini-1.5-flash", Name: "Gemini 1.5 Flash (Recommended)"},
			{ID: "google/gemini-1.5-pro", Name: "Gemini 1.5 Pro"},
			{ID: "google/gemini-2.0-flash-exp", Name: "Gemini 2.0 Flash (Experimental)"},
		},
		"anthropic": []modelOption{
			{ID: "claude-3-5-sonnet-20241022", Name: "Claude 3.5 Sonnet"},
			{ID: "claude-3-5-haiku-20241022", Name: "Claude 3.5 Haiku"},
			{ID: "claude-3-opus-20240229", Name: "Claude 3 Opus"},
		},
		"openai": []modelOption{
			{ID: "gpt-4o", Name: "GPT-4o"},
			{ID: "gpt-4o-mini", Name: "GPT-4o Mini"},
			{ID: "gpt-4-turbo", Name: "GPT-4 Turbo"},
		},
		"openrouter": []modelOption{
			{ID: "openrouter/anthropic/claude-3-sonnet", Name: "Claude 3 Sonnet (via OpenRouter)"},
			{ID: "openrouter/google/gemini-pro", Name: "Gemini Pro (via OpenRouter)"},
			{ID: "openrouter/openai/gpt-4o", Name: "GPT-4o (via OpenRouter)"},
		},
	})
}
