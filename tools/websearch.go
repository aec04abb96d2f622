package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// SearchHit is one normalized web_search result, regardless of which vendor produced it.
type SearchHit struct {
	Title string  `json:"title"`
	URL   string  `json:"url"`
	Content string `json:"content"`
	Score float64 `json:"score,omitempty"`
}

func intParam(params map[string]any, key string, fallback int) int {
	switch v := params[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return fallback
	}
}

func stringParam(params map[string]any, key string) string {
	if v, ok := params[key].(string); ok {
		return v
	}
	return ""
}

// TavilySearch wraps the Tavily AI-native search API, the first-choice web_search
// backend when configured (spec §4.10).
type TavilySearch struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewTavilySearch constructs a TavilySearch client.
func NewTavilySearch(apiKey string) *TavilySearch {
	return &TavilySearch{
		apiKey:  apiKey,
		baseURL: "https://api.tavily.com",
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

type tavilyRequest struct {
	APIKey       string   `json:"api_key"`
	Query        string   `json:"query"`
	SearchDepth  string   `json:"search_depth"`
	MaxResults   int      `json:"max_results"`
}

type tavilyResponse struct {
	Results []struct {
		Title   string  `json:"title"`
		URL     string  `json:"url"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	} `json:"results"`
}

// Search executes a Tavily query and returns normalized SearchHits.
func (t *TavilySearch) Search(ctx context.Context, params map[string]any) Result {
	query := stringParam(params, "query")
	maxResults := intParam(params, "max_results", 5)

	body, err := json.Marshal(tavilyRequest{
		APIKey: t.apiKey, Query: query, SearchDepth: "basic", MaxResults: maxResults,
	})
	if err != nil {
		return Result{Error: err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return Result{Error: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return Result{Error: err.Error()}
	}
	defer resp.Body.Close()

	var parsed tavilyResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Result{Error: fmt.Sprintf("tavily: decode response: %v", err)}
	}

	hits := make([]SearchHit, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		hits = append(hits, SearchHit{Title: r.Title, URL: r.URL, Content: r.Content, Score: r.Score})
	}
	return Result{Data: hits}
}

// BraveSearch wraps the Brave Search API, the fallback when Tavily is not configured
// (spec §4.10).
type BraveSearch struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewBraveSearch constructs a BraveSearch client.
func NewBraveSearch(apiKey string) *BraveSearch {
	return &BraveSearch{
		apiKey:  apiKey,
		baseURL: "https://api.search.brave.com/res/v1",
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

type braveResponse struct {
	Web struct {
		Results []struct {
			Title           string  `json:"title"`
			URL             string  `json:"url"`
			Description     string  `json:"description"`
			RelevanceScore  float64 `json:"relevance_score"`
		} `json:"results"`
	} `json:"web"`
}

// Search executes a Brave query and returns normalized SearchHits.
func (b *BraveSearch) Search(ctx context.Context, params map[string]any) Result {
	query := stringParam(params, "query")
	maxResults := intParam(params, "max_results", 5)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/web/search", nil)
	if err != nil {
		return Result{Error: err.Error()}
	}
	q := req.URL.Query()
	q.Set("q", query)
	q.Set("count", fmt.Sprintf("%d", maxResults))
	req.URL.RawQuery = q.Encode()
	req.Header.Set("X-Subscription-Token", b.apiKey)

	resp, err := b.client.Do(req)
	if err != nil {
		return Result{Error: err.Error()}
	}
	defer resp.Body.Close()

	var parsed braveResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Result{Error: fmt.Sprintf("brave: decode response: %v", err)}
	}

	hits := make([]SearchHit, 0, len(parsed.Web.Results))
	for _, r := range parsed.Web.Results {
		hits = append(hits, SearchHit{Title: r.Title, URL: r.URL, Content: r.Description, Score: r.RelevanceScore})
	}
	return Result{Data: hits}
}

// GeminiSearch uses Gemini's native Google-Search grounding tool as the web_search
// backend of last resort, when only a Google API key is configured (spec §4.10).
type GeminiSearch struct {
	apiKey string
	client *http.Client
}

// NewGeminiSearch constructs a GeminiSearch client.
func NewGeminiSearch(apiKey string) *GeminiSearch {
	return &GeminiSearch{apiKey: apiKey, client: &http.Client{Timeout: 30 * time.Second}}
}

type geminiGroundedRequest struct {
	Contents []geminiContent `json:"contents"`
	Tools    []geminiTool    `json:"tools"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiTool struct {
	GoogleSearchRetrieval struct{} `json:"google_search_retrieval"`
}

type geminiGroundedResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		GroundingMetadata struct {
			GroundingChunks []struct {
				Web struct {
					Title string `json:"title"`
					URI   string `json:"uri"`
				} `json:"web"`
			} `json:"groundingChunks"`
		} `json:"groundingMetadata"`
	} `json:"candidates"`
}

// Search asks Gemini to ground a free-text query against live web search, returning
// whatever grounding chunks come back (or, absent any, a single synthesized hit built
// from the model's own text).
func (g *GeminiSearch) Search(ctx context.Context, params map[string]any) Result {
	query := stringParam(params, "query")
	maxResults := intParam(params, "max_results", 5)

	prompt := fmt.Sprintf(
		"Search the web for current information about: %s\n\nReturn the top %d most relevant results with their titles, URLs, and key content.",
		query, maxResults,
	)

	body, err := json.Marshal(geminiGroundedRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}}},
		Tools:    []geminiTool{{}},
	})
	if err != nil {
		return Result{Error: err.Error()}
	}

	url := fmt.Sprintf(
		"https://generativelanguage.googleapis.com/v1beta/models/gemini-2.0-flash-exp:generateContent?key=%s",
		g.apiKey,
	)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Result{Error: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return Result{Error: err.Error()}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{Error: err.Error()}
	}

	var parsed geminiGroundedResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return Result{Error: fmt.Sprintf("gemini search: decode response: %v", err)}
	}
	if len(parsed.Candidates) == 0 {
		return Result{Data: []SearchHit{}}
	}

	candidate := parsed.Candidates[0]
	var text string
	for _, p := range candidate.Content.Parts {
		text += p.Text
	}

	hits := make([]SearchHit, 0, maxResults)
	for i, chunk := range candidate.GroundingMetadata.GroundingChunks {
		if i >= maxResults {
			break
		}
		hits = append(hits, SearchHit{
			Title: chunk.Web.Title,
			URL:   chunk.Web.URI,
			Content: clip(text, 500),
			Score: 1.0 - float64(i)*0.1,
		})
	}
	if len(hits) == 0 && text != "" {
		hits = append(hits, SearchHit{
			Title:   fmt.Sprintf("Search results for: %s", query),
			Content: clip(text, 1000),
			Score:   0.8,
		})
	}
	return Result{Data: hits}
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
