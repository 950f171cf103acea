package enrich

import (
	"fmt"
	"time"

	"github.com/hession/campusbot/internal/config"
	"github.com/hession/campusbot/internal/github"
	"github.com/hession/campusbot/internal/websearch"
)

// NewFromConfig builds the standard pipeline: repository links first, then
// generic links, then search intent.
func NewFromConfig(cfg *config.Config, opts ...PipelineOption) (*Pipeline, error) {
	e := cfg.Enrichment
	timeout := cfg.EnrichmentTimeout()

	gh := github.NewClient(e.GitHubAPIBase, e.GitHubToken, e.UserAgent, timeout, e.ETagCacheSize)

	ws := cfg.WebSearch
	provider, err := websearch.New(ws.Provider, ws.BaseURL, ws.UserAgent, ws.APIKey,
		time.Duration(ws.TimeoutSeconds)*time.Second)
	if err != nil {
		return nil, fmt.Errorf("failed to create search provider: %w", err)
	}

	opts = append([]PipelineOption{
		WithTimeout(timeout),
		WithCacheTTL(cfg.EnrichmentCacheTTL()),
	}, opts...)

	return NewPipeline([]Source{
		NewRepoSource(gh),
		NewPageSource(e.UserAgent, e.PageMaxChars),
		NewSearchSource(provider, ws.DefaultLimit),
	}, opts...), nil
}
