package enrich

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"syscall"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
)

const (
	defaultPageMaxChars  = 1500
	defaultPageMaxBytes  = int64(1 << 20)
	defaultPageUserAgent = "Mozilla/5.0 (X11; Linux x86_64) CampusBot/1.0"
)

var (
	urlPattern = regexp.MustCompile(`https?://\S+`)

	errBlockedAddress = errors.New("address is not publicly routable")
)

// Elements whose text never reaches the model
var skippedElements = map[string]bool{
	"script": true, "style": true, "nav": true, "footer": true, "aside": true,
	"noscript": true, "svg": true, "iframe": true, "head": true, "template": true,
}

// Elements that end a line of text
var blockElements = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "tr": true, "section": true,
	"article": true, "h1": true, "h2": true, "h3": true, "h4": true, "h5": true,
	"h6": true, "pre": true, "blockquote": true, "header": true, "main": true,
}

// PageSource fetches the first http(s) link in a message and extracts the
// page title and readable text.
type PageSource struct {
	userAgent string
	maxChars  int
	maxBytes  int64
	client    *http.Client

	allowPrivate bool
}

func NewPageSource(userAgent string, maxChars int) *PageSource {
	if strings.TrimSpace(userAgent) == "" {
		userAgent = defaultPageUserAgent
	}
	if maxChars <= 0 {
		maxChars = defaultPageMaxChars
	}
	s := &PageSource{
		userAgent: userAgent,
		maxChars:  maxChars,
		maxBytes:  defaultPageMaxBytes,
	}
	dialer := &net.Dialer{Timeout: 5 * time.Second, Control: s.checkAddress}
	s.client = &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           dialer.DialContext,
			TLSHandshakeTimeout:   5 * time.Second,
			ResponseHeaderTimeout: 10 * time.Second,
			MaxIdleConns:          10,
			IdleConnTimeout:       90 * time.Second,
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return fmt.Errorf("stopped after %d redirects", len(via))
			}
			if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
				return fmt.Errorf("redirect to unsupported scheme %q", req.URL.Scheme)
			}
			return nil
		},
	}
	return s
}

func (s *PageSource) Kind() Kind {
	return KindWebpage
}

func (s *PageSource) Match(text string) (string, bool) {
	raw := urlPattern.FindString(text)
	if raw == "" {
		return "", false
	}
	raw = strings.TrimRight(raw, ".,;:!?)]}»\"'>")
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", false
	}
	return u.String(), true
}

func (s *PageSource) Fetch(ctx context.Context, query string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, query, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.5")
	req.Header.Set("Accept-Language", "uk,en;q=0.8")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("request failed with status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	mediaType, _, _ := mime.ParseMediaType(contentType)
	switch {
	case mediaType == "" || strings.Contains(mediaType, "html"):
		title, text, err := extractPage(body, contentType)
		if err != nil {
			return "", err
		}
		return renderPage(query, title, text, s.maxChars), nil
	case strings.HasPrefix(mediaType, "text/"):
		return renderPage(query, "", collapseLines(string(body)), s.maxChars), nil
	default:
		return "", fmt.Errorf("unsupported content type %q", mediaType)
	}
}

// checkAddress rejects connections to loopback, private and link-local
// addresses, including ones reached through redirects or DNS rebinding.
func (s *PageSource) checkAddress(network, address string, _ syscall.RawConn) error {
	if s.allowPrivate {
		return nil
	}
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return err
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return fmt.Errorf("%s: %w", host, errBlockedAddress)
	}
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() || ip.IsUnspecified() || ip.IsMulticast() {
		return fmt.Errorf("%s: %w", ip, errBlockedAddress)
	}
	return nil
}

// extractPage returns the document title and its visible text
func extractPage(body []byte, contentType string) (string, string, error) {
	reader, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		return "", "", fmt.Errorf("failed to detect charset: %w", err)
	}
	doc, err := html.Parse(reader)
	if err != nil {
		return "", "", fmt.Errorf("failed to parse page: %w", err)
	}

	var title string
	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && skippedElements[n.Data] {
			return
		}
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && blockElements[n.Data] {
			sb.WriteByte('\n')
		}
	}
	// <head> is skipped by the walk, so the title is read separately
	if head := findElement(doc, "head"); head != nil {
		if t := findElement(head, "title"); t != nil && t.FirstChild != nil {
			title = strings.Join(strings.Fields(t.FirstChild.Data), " ")
		}
	}
	walk(doc)

	return title, collapseLines(sb.String()), nil
}

func findElement(n *html.Node, name string) *html.Node {
	if n.Type == html.ElementNode && n.Data == name {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, name); found != nil {
			return found
		}
	}
	return nil
}

// collapseLines squeezes whitespace inside lines and drops empty lines
func collapseLines(s string) string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

func renderPage(pageURL, title, text string, maxChars int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "URL: %s\n", pageURL)
	if title != "" {
		fmt.Fprintf(&sb, "Title: %s\n", title)
	}
	if text != "" {
		sb.WriteString("\n")
		sb.WriteString(truncateRunes(text, maxChars))
	}
	return sb.String()
}

// truncateRunes cuts s to n runes, appending "..." when it was longer
func truncateRunes(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos] + "..."
		}
		i++
	}
	return s
}
