package enrich

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/hession/campusbot/internal/websearch"
)

const defaultSearchLimit = 3

// A leading trigger phrase followed by the query
var searchIntent = regexp.MustCompile(`(?is)^\s*(?:знайди|пошукай|шукай|загугли|погугли|search(?:\s+for)?|find|google|look\s+up)[\s:,]+(.+)$`)

// SearchSource runs a web search when a message starts with a search
// trigger phrase.
type SearchSource struct {
	provider websearch.Provider
	limit    int
}

func NewSearchSource(provider websearch.Provider, limit int) *SearchSource {
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	return &SearchSource{provider: provider, limit: limit}
}

func (s *SearchSource) Kind() Kind {
	return KindSearch
}

func (s *SearchSource) Match(text string) (string, bool) {
	m := searchIntent.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	query := strings.Join(strings.Fields(m[1]), " ")
	query = strings.TrimRight(query, "?.!")
	if query == "" {
		return "", false
	}
	return query, true
}

func (s *SearchSource) Fetch(ctx context.Context, query string) (string, error) {
	resp, err := s.provider.Search(ctx, query, s.limit)
	if err != nil {
		return "", err
	}
	if len(resp.Results) == 0 {
		return "", fmt.Errorf("no results for %q", query)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Query: %s\n", query)
	for i, r := range resp.Results {
		if i == s.limit {
			break
		}
		fmt.Fprintf(&sb, "\n%d. %s\n", i+1, r.Title)
		if r.Snippet != "" {
			fmt.Fprintf(&sb, "%s\n", r.Snippet)
		}
		fmt.Fprintf(&sb, "%s\n", r.URL)
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}
