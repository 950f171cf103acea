package websearch

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// DuckDuckGoProvider queries the DuckDuckGo instant-answer JSON API.
// It answers well for encyclopedic queries and poorly for everything else.
type DuckDuckGoProvider struct {
	baseURL   string
	userAgent string
	client    *http.Client
}

func NewDuckDuckGoProvider(baseURL, userAgent string, timeout time.Duration) *DuckDuckGoProvider {
	if strings.TrimSpace(baseURL) == "" || strings.Contains(baseURL, "html.duckduckgo.com") {
		baseURL = "https://api.duckduckgo.com"
	}
	if strings.TrimSpace(userAgent) == "" {
		userAgent = "CampusBot/1.0"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &DuckDuckGoProvider{
		baseURL:   strings.TrimRight(baseURL, "/"),
		userAgent: userAgent,
		client:    &http.Client{Timeout: timeout},
	}
}

func (p *DuckDuckGoProvider) Name() string {
	return "duckduckgo"
}

func (p *DuckDuckGoProvider) Search(ctx context.Context, query string, limit int) (Response, error) {
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
	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("no_html", "1")
	params.Set("skip_disambig", "1")
	endpoint.RawQuery = params.Encode()

	body, _, err := fetch(ctx, p.client, endpoint.String(), p.userAgent)
	if err != nil {
		return Response{}, err
	}
	if !gjson.ValidBytes(body) {
		return Response{}, fmt.Errorf("failed to decode response: invalid JSON")
	}

	payload := gjson.ParseBytes(body)
	out := newCollector(p.Name(), limit)

	if abstract := payload.Get("AbstractText").String(); abstract != "" {
		title := payload.Get("Heading").String()
		if title == "" {
			title = abstract
		}
		out.add(title, payload.Get("AbstractURL").String(), abstract)
	}

	payload.Get("Results").ForEach(func(_, res gjson.Result) bool {
		text := res.Get("Text").String()
		out.add(text, res.Get("FirstURL").String(), text)
		return !out.full()
	})

	// RelatedTopics nests one level of grouped topics
	var walk func(topics gjson.Result)
	walk = func(topics gjson.Result) {
		topics.ForEach(func(_, topic gjson.Result) bool {
			if nested := topic.Get("Topics"); nested.IsArray() {
				walk(nested)
			} else {
				text := topic.Get("Text").String()
				out.add(text, topic.Get("FirstURL").String(), text)
			}
			return !out.full()
		})
	}
	walk(payload.Get("RelatedTopics"))

	return Response{
		Query:    query,
		Provider: p.Name(),
		Results:  out.results,
	}, nil
}
