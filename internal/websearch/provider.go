package websearch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Result is a single search result entry.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
	Source  string `json:"source"`
}

// Response is a normalized search response.
type Response struct {
	Query    string   `json:"query"`
	Provider string   `json:"provider"`
	Results  []Result `json:"results"`
}

// Provider performs web searches.
type Provider interface {
	Name() string
	Search(ctx context.Context, query string, limit int) (Response, error)
}

// maxBodyBytes caps how much of a result page is read
const maxBodyBytes = 2 << 20

// New builds the provider selected by name: "duckduckgo-html" (default),
// "duckduckgo" or "searxng".
func New(name, baseURL, userAgent, apiKey string, timeout time.Duration) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "duckduckgo-html":
		return NewDuckDuckGoHTMLProvider(baseURL, userAgent, timeout), nil
	case "duckduckgo":
		return NewDuckDuckGoProvider(baseURL, userAgent, timeout), nil
	case "searxng":
		return NewSearXNGProvider(baseURL, userAgent, apiKey, timeout), nil
	default:
		return nil, fmt.Errorf("unknown search provider %q", name)
	}
}

// fetch performs a GET and returns the body and Content-Type
func fetch(ctx context.Context, client *http.Client, endpoint, userAgent string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept-Language", "uk,en;q=0.8")

	resp, err := client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("search request failed with status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read response: %w", err)
	}
	return body, resp.Header.Get("Content-Type"), nil
}

// collector accumulates unique results up to a limit
type collector struct {
	source  string
	limit   int
	seen    map[string]bool
	results []Result
}

func newCollector(source string, limit int) *collector {
	return &collector{
		source:  source,
		limit:   limit,
		seen:    make(map[string]bool),
		results: make([]Result, 0, limit),
	}
}

func (c *collector) full() bool {
	return len(c.results) >= c.limit
}

func (c *collector) add(title, link, snippet string) {
	if c.full() {
		return
	}
	link = strings.TrimSpace(link)
	if link == "" || c.seen[link] {
		return
	}
	c.seen[link] = true
	c.results = append(c.results, Result{
		Title:   collapseSpace(title),
		URL:     link,
		Snippet: collapseSpace(snippet),
		Source:  c.source,
	})
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
