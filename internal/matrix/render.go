package matrix

import (
	"bytes"
	"regexp"
	"strings"
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

var (
	markdownOnce sync.Once
	markdown     goldmark.Markdown
)

func getMarkdown() goldmark.Markdown {
	markdownOnce.Do(func() {
		markdown = goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			// Chat text uses single newlines as line breaks
			goldmark.WithRendererOptions(html.WithHardWraps()),
		)
	})
	return markdown
}

var (
	codeSpan = regexp.MustCompile("(?s)```.*?```|`[^`\n]*`")
	boldSpan = regexp.MustCompile(`\*([^*\n]+)\*`)
	italic   = regexp.MustCompile(`(^|[^\p{L}\p{N}_])_([^_\n]+)_`)
	strike   = regexp.MustCompile(`~([^~\n]+)~`)
)

// toMarkdown rewrites the chat dialect (*bold*, _italic_, ~strike~) into
// CommonMark/GFM, leaving code spans and fenced blocks untouched
func toMarkdown(text string) string {
	var sb strings.Builder
	last := 0
	for _, loc := range codeSpan.FindAllStringIndex(text, -1) {
		sb.WriteString(rewriteProse(text[last:loc[0]]))
		sb.WriteString(text[loc[0]:loc[1]])
		last = loc[1]
	}
	sb.WriteString(rewriteProse(text[last:]))
	return sb.String()
}

func rewriteProse(s string) string {
	s = boldSpan.ReplaceAllString(s, "**$1**")
	s = italic.ReplaceAllString(s, "$1*$2*")
	return strike.ReplaceAllString(s, "~~$1~~")
}

// renderHTML converts chat markup into the HTML used for formatted_body
func renderHTML(text string) (string, error) {
	var buf bytes.Buffer
	if err := getMarkdown().Convert([]byte(toMarkdown(text)), &buf); err != nil {
		return "", err
	}
	return strings.TrimSpace(buf.String()), nil
}
