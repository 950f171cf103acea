package websearch

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// SearXNGProvider queries a SearXNG instance's JSON API
type SearXNGProvider struct {
	baseURL   string
	userAgent string
	apiKey    string
	client    *http.Client
}

func NewSearXNGProvider(baseURL, userAgent, apiKey string, timeout time.Duration) *SearXNGProvider {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	if strings.TrimSpace(userAgent) == "" {
		userAgent = "CampusBot/1.0"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &SearXNGProvider{
		baseURL:   strings.TrimRight(baseURL, "/"),
		userAgent: userAgent,
		apiKey:    strings.TrimSpace(apiKey),
		client:    &http.Client{Timeout: timeout},
	}
}

func (p *SearXNGProvider) Name() string {
	return "searxng"
}

func (p *SearXNGProvider) Search(ctx context.Context, query string, limit int) (Response, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Response{}, fmt.Errorf("query cannot be empty")
	}
	if limit <= 0 {
		limit = 3
	}

	endpoint, err := url.Parse(p.baseURL)
	if err != nil {
		return Response{}, fmt.Errorf("invalid base url: %w", err)
	}
	endpoint.Path = strings.TrimRight(endpoint.Path, "/") + "/search"

	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("categories", "general")
	params.Set("language", "auto")
	params.Set("safesearch", "1")
	params.Set("count", strconv.Itoa(limit))
	if p.apiKey != "" {
		params.Set("apikey", p.apiKey)
	}
	endpoint.RawQuery = params.Encode()

	body, _, err := fetch(ctx, p.client, endpoint.String(), p.userAgent)
	if err != nil {
		return Response{}, err
	}
	if !gjson.ValidBytes(body) {
		return Response{}, fmt.Errorf("failed to decode response: invalid JSON")
	}

	out := newCollector(p.Name(), limit)
	gjson.GetBytes(body, "results").ForEach(func(_, res gjson.Result) bool {
		out.add(res.Get("title").String(), res.Get("url").String(), res.Get("content").String())
		return !out.full()
	})

	return Response{
		Query:    query,
		Provider: p.Name(),
		Results:  out.results,
	}, nil
}
