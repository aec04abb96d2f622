package tools

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const fetchContentLimit = 10000

// FetchURL implements the fetch_url tool: it GETs a URL and strips it down to plain
// text (spec §4.10).
type FetchURL struct {
	client *http.Client
}

// NewFetchURL constructs a FetchURL tool.
func NewFetchURL() *FetchURL {
	return &FetchURL{client: &http.Client{Timeout: 30 * time.Second}}
}

// FetchedPage is the fetch_url tool's successful result shape.
type FetchedPage struct {
	URL        string `json:"url"`
	Content    string `json:"content"`
	StatusCode int    `json:"status_code"`
}

// Fetch retrieves url and, when extract_mode is "text" (the default), strips scripts,
// styles, and tags down to whitespace-normalized plain text clipped to 10000 characters.
func (f *FetchURL) Fetch(ctx context.Context, params map[string]any) Result {
	url := stringParam(params, "url")
	extractMode := stringParam(params, "extract_mode")
	if extractMode == "" {
		extractMode = "text"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Result{Data: FetchedPage{URL: url}, Error: err.Error()}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return Result{Data: FetchedPage{URL: url}, Error: err.Error()}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{Data: FetchedPage{URL: url, StatusCode: resp.StatusCode}, Error: err.Error()}
	}
	content := string(raw)

	if extractMode == "text" {
		content = stripHTML(content)
	}

	return Result{Data: FetchedPage{
		URL:        url,
		Content:    clip(content, fetchContentLimit),
		StatusCode: resp.StatusCode,
	}}
}

// stripHTML walks the document with golang.org/x/net/html's tokenizer, dropping
// script/style subtrees and tags, then collapses whitespace (spec §4.10).
func stripHTML(document string) string {
	tokenizer := html.NewTokenizer(strings.NewReader(document))
	var b strings.Builder
	var skipDepth int

	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(b.String()), " ")

		case html.TextToken:
			if skipDepth == 0 {
				b.Write(tokenizer.Text())
				b.WriteByte(' ')
			}

		case html.StartTagToken:
			tok := tokenizer.Token()
			if isSkippedElement(tok.DataAtom) {
				skipDepth++
			}

		case html.EndTagToken:
			tok := tokenizer.Token()
			if isSkippedElement(tok.DataAtom) && skipDepth > 0 {
				skipDepth--
			}
		}
	}
}

func isSkippedElement(a atom.Atom) bool {
	return a == atom.Script || a == atom.Style
}
