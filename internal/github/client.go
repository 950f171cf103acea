package github

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/hession/campusbot/internal/logger"
)

// ErrNotFound is returned when the repository or path does not exist
var ErrNotFound = errors.New("github: not found")

const (
	defaultBaseURL = "https://api.github.com"
	maxBodyBytes   = 4 << 20
)

// cachedResponse is a body kept for ETag revalidation
type cachedResponse struct {
	etag string
	body []byte
}

// Client is a small read-only GitHub REST v3 client. Responses carrying an
// ETag are kept in a bounded LRU and revalidated with If-None-Match, so
// repeated lookups of the same repository do not spend rate limit.
type Client struct {
	baseURL   string
	token     string
	userAgent string
	http      *http.Client
	etags     *lru.Cache[string, cachedResponse]
}

// NewClient creates a client. An empty token uses anonymous access.
func NewClient(baseURL, token, userAgent string, timeout time.Duration, cacheSize int) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultBaseURL
	}
	if userAgent == "" {
		userAgent = "CampusBot/1.0"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if cacheSize <= 0 {
		cacheSize = 256
	}
	// lru.New only fails for a non-positive size
	etags, _ := lru.New[string, cachedResponse](cacheSize)

	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		token:     strings.TrimSpace(token),
		userAgent: userAgent,
		http:      &http.Client{Timeout: timeout},
		etags:     etags,
	}
}

// get fetches an API path and returns the JSON body
func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	endpoint := c.baseURL + path

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	req.Header.Set("User-Agent", c.userAgent)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	cached, haveCached := c.etags.Get(endpoint)
	if haveCached {
		req.Header.Set("If-None-Match", cached.etag)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("github request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified && haveCached:
		logger.Debug("GitHub cache hit: %s", path)
		return cached.body, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("github returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read github response: %w", err)
	}

	if etag := resp.Header.Get("ETag"); etag != "" {
		c.etags.Add(endpoint, cachedResponse{etag: etag, body: body})
	}
	return body, nil
}
