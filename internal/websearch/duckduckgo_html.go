package websearch

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
)

// DuckDuckGoHTMLProvider scrapes the no-JavaScript DuckDuckGo result page.
// Unlike the instant-answer API it returns ordinary organic results.
type DuckDuckGoHTMLProvider struct {
	baseURL   string
	userAgent string
	client    *http.Client
}

func NewDuckDuckGoHTMLProvider(baseURL, userAgent string, timeout time.Duration) *DuckDuckGoHTMLProvider {
	if strings.TrimSpace(baseURL) == "" || strings.Contains(baseURL, "api.duckduckgo.com") {
		baseURL = "https://html.duckduckgo.com"
	}
	if strings.TrimSpace(userAgent) == "" {
		userAgent = "Mozilla/5.0 (X11; Linux x86_64) CampusBot/1.0"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &DuckDuckGoHTMLProvider{
		baseURL:   strings.TrimRight(baseURL, "/"),
		userAgent: userAgent,
		client:    &http.Client{Timeout: timeout},
	}
}

func (p *DuckDuckGoHTMLProvider) Name() string {
	return "duckduckgo-html"
}

func (p *DuckDuckGoHTMLProvider) Search(ctx context.Context, query string, limit int) (Response, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Response{}, fmt.Errorf("query cannot be empty")
	}
	if limit <= 0 {
		limit = 3
	}

	endpoint, err := url.Parse(p.baseURL + "/html/")
	if err != nil {
		return Response{}, fmt.Errorf("invalid base url: %w", err)
	}
	params := url.Values{}
	params.Set("q", query)
	endpoint.RawQuery = params.Encode()

	body, contentType, err := fetch(ctx, p.client, endpoint.String(), p.userAgent)
	if err != nil {
		return Response{}, err
	}

	results, err := parseDuckDuckGoHTML(body, contentType, limit, p.Name())
	if err != nil {
		return Response{}, err
	}

	return Response{
		Query:    query,
		Provider: p.Name(),
		Results:  results,
	}, nil
}

// parseDuckDuckGoHTML extracts organic results from a result page,
// skipping sponsored blocks.
func parseDuckDuckGoHTML(body []byte, contentType string, limit int, source string) ([]Result, error) {
	reader, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		return nil, fmt.Errorf("failed to detect charset: %w", err)
	}
	doc, err := html.Parse(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to parse result page: %w", err)
	}

	out := newCollector(source, limit)

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if out.full() {
			return
		}
		if n.Type == html.ElementNode && n.Data == "div" && hasClass(n, "result") {
			if !hasClass(n, "result--ad") {
				collectResult(n, out)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return out.results, nil
}

func collectResult(container *html.Node, out *collector) {
	var title, link, snippet string

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch {
			case n.Data == "a" && hasClass(n, "result__a"):
				title = textContent(n)
				link = resolveRedirect(attr(n, "href"))
				return
			case hasClass(n, "result__snippet"):
				snippet = textContent(n)
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(container)

	if title != "" {
		out.add(title, link, snippet)
	}
}

// resolveRedirect unwraps "//duckduckgo.com/l/?uddg=<target>" links
func resolveRedirect(href string) string {
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	return href
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return collapseSpace(sb.String())
}
