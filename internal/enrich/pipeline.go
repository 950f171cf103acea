package enrich

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/hession/campusbot/internal/logger"
)

// Outcome of one Enrich call, reported to the observer
const (
	OutcomeFetched = "fetched"
	OutcomeCached  = "cached"
	OutcomeFailed  = "failed"
)

const defaultTimeout = 10 * time.Second

// PipelineOption configures a Pipeline
type PipelineOption func(*Pipeline)

// WithTimeout sets the per-fetch deadline
func WithTimeout(d time.Duration) PipelineOption {
	return func(p *Pipeline) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithCacheTTL keeps successful results for ttl; zero disables caching
func WithCacheTTL(ttl time.Duration) PipelineOption {
	return func(p *Pipeline) {
		if ttl > 0 {
			p.cache = cache.New(ttl, 2*ttl)
		} else {
			p.cache = nil
		}
	}
}

// WithObserver registers a callback for every matched message
func WithObserver(fn func(kind Kind, outcome string)) PipelineOption {
	return func(p *Pipeline) { p.observe = fn }
}

// Pipeline evaluates sources in registration order and uses the first one
// that matches. A failed fetch does not fall through to later sources.
type Pipeline struct {
	mu      sync.RWMutex
	sources []Source
	timeout time.Duration
	cache   *cache.Cache
	observe func(Kind, string)
}

// NewPipeline creates a pipeline with the given sources, in priority order
func NewPipeline(sources []Source, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		timeout: defaultTimeout,
		cache:   cache.New(10*time.Minute, 20*time.Minute),
	}
	for _, opt := range opts {
		opt(p)
	}
	for _, s := range sources {
		_ = p.Register(s)
	}
	return p
}

// Register appends a source with the lowest priority so far
func (p *Pipeline) Register(s Source) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, existing := range p.sources {
		if existing.Kind() == s.Kind() {
			return fmt.Errorf("source %s already registered", s.Kind())
		}
	}
	p.sources = append(p.sources, s)
	return nil
}

// Sources returns the registered kinds in priority order
func (p *Pipeline) Sources() []Kind {
	p.mu.RLock()
	defer p.mu.RUnlock()

	kinds := make([]Kind, len(p.sources))
	for i, s := range p.sources {
		kinds[i] = s.Kind()
	}
	return kinds
}

// Enrich fetches context for text. It returns ErrNoMatch when no source
// applies and a wrapped fetch error when the matched source fails; in both
// cases the caller proceeds without enrichment.
func (p *Pipeline) Enrich(ctx context.Context, text string) (Result, error) {
	src, query := p.match(text)
	if src == nil {
		return Result{}, ErrNoMatch
	}
	kind := src.Kind()
	key := string(kind) + "\x00" + query

	if p.cache != nil {
		if v, ok := p.cache.Get(key); ok {
			p.report(kind, OutcomeCached)
			return Result{Kind: kind, Query: query, Text: v.(string)}, nil
		}
	}

	fetchCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	text, err := src.Fetch(fetchCtx, query)
	if err == nil && text == "" {
		err = fmt.Errorf("empty result")
	}
	if err != nil {
		p.report(kind, OutcomeFailed)
		logger.Warn("Enrichment %s failed for %q: %v", kind, query, err)
		return Result{Kind: kind, Query: query}, fmt.Errorf("enrich %s: %w", kind, err)
	}

	logger.Debug("Enrichment %s for %q took %v (%d chars)", kind, query, time.Since(start), len(text))
	if p.cache != nil {
		p.cache.Set(key, text, cache.DefaultExpiration)
	}
	p.report(kind, OutcomeFetched)
	return Result{Kind: kind, Query: query, Text: text}, nil
}

func (p *Pipeline) match(text string) (Source, string) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, s := range p.sources {
		if query, ok := s.Match(text); ok {
			return s, query
		}
	}
	return nil, ""
}

func (p *Pipeline) report(kind Kind, outcome string) {
	if p.observe != nil {
		p.observe(kind, outcome)
	}
}
