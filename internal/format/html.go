package format

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

type rewrite struct {
	pattern *regexp.Regexp
	replace string
}

const (
	htmlElements = `a|abbr|article|aside|b|blockquote|br|center|cite|code|dd|del|details|div|dl|dt|em|` +
		`figcaption|figure|font|footer|h[1-6]|header|hr|i|img|ins|kbd|li|mark|nav|ol|p|pre|q|s|` +
		`section|small|span|strike|strong|sub|summary|sup|table|tbody|td|tfoot|th|thead|tr|tt|u|ul|var`
	htmlAttr = `\s+[a-zA-Z_:][-a-zA-Z0-9_:.]*\s*=\s*(?:"[^"]*"|'[^']*'|[^\s"'=<>` + "`" + `]+)`
)

var (
	// Known elements only, with name="value" attributes, so generics like
	// Vec<String> and comparisons like a<b and c>d are left alone
	anyTag = regexp.MustCompile(`(?i)</?(?:` + htmlElements + `)(?:` + htmlAttr + `)*\s*/?>`)

	inlineCode = regexp.MustCompile("`[^`\n]*`")

	preBlock = regexp.MustCompile(`(?is)<pre(?:\s[^>]*)?>\s*(?:<code(?:\s[^>]*)?>)?(.*?)(?:</code>)?\s*</pre>`)
	anchor   = regexp.MustCompile(`(?is)<a\s[^>]*?href\s*=\s*["']([^"']*)["'][^>]*>(.*?)</a>`)
	image    = regexp.MustCompile(`(?i)<img(?:\s[^>]*)?/?>`)
	altAttr  = regexp.MustCompile(`(?i)\balt\s*=\s*["']([^"']*)["']`)

	// Applied in order after <pre>, <a> and <img> have been handled
	htmlRewrites = []rewrite{
		{regexp.MustCompile(`(?i)<br\s*/?>`), "\n"},
		{regexp.MustCompile(`(?i)</?(?:p|div)(?:\s[^>]*)?>`), "\n"},
		{regexp.MustCompile(`(?is)<(?:b|strong)(?:\s[^>]*)?>(.*?)</(?:b|strong)>`), "*$1*"},
		{regexp.MustCompile(`(?is)<(?:i|em)(?:\s[^>]*)?>(.*?)</(?:i|em)>`), "_${1}_"},
		{regexp.MustCompile(`(?is)<code(?:\s[^>]*)?>(.*?)</code>`), "`$1`"},
		{regexp.MustCompile(`(?is)<(?:s|del|strike)(?:\s[^>]*)?>(.*?)</(?:s|del|strike)>`), "~$1~"},
		{regexp.MustCompile(`(?is)<h[1-6](?:\s[^>]*)?>(.*?)</h[1-6]>`), "\n*$1*\n"},
		{regexp.MustCompile(`(?i)</?(?:ul|ol)(?:\s[^>]*)?>`), "\n"},
		{regexp.MustCompile(`(?i)<li(?:\s[^>]*)?>`), "\n• "},
		{regexp.MustCompile(`(?i)</li>`), ""},
		{regexp.MustCompile(`(?i)<hr\s*/?>`), "\n---\n"},
	}
)

// translateHTML rewrites structural HTML tags into the markup dialect and
// strips whatever tags remain. Text without tags is returned unchanged.
func translateHTML(prose string) string {
	if !anyTag.MatchString(prose) {
		return prose
	}

	prose = preBlock.ReplaceAllStringFunc(prose, func(m string) string {
		body := preBlock.FindStringSubmatch(m)[1]
		return "\n" + fence(strings.Trim(html.UnescapeString(anyTag.ReplaceAllString(body, "")), "\n")) + "\n"
	})
	// Blocks produced from <pre> are fenced now and must stay verbatim
	return mapProse(prose, func(p string) string {
		return outsideCode(p, translateInline)
	})
}

// outsideCode applies fn to the text between inline code spans
func outsideCode(prose string, fn func(string) string) string {
	spans := inlineCode.FindAllStringIndex(prose, -1)
	if spans == nil {
		return fn(prose)
	}
	var sb strings.Builder
	last := 0
	for _, sp := range spans {
		sb.WriteString(fn(prose[last:sp[0]]))
		sb.WriteString(prose[sp[0]:sp[1]])
		last = sp[1]
	}
	sb.WriteString(fn(prose[last:]))
	return sb.String()
}

func translateInline(prose string) string {
	prose = anchor.ReplaceAllStringFunc(prose, func(m string) string {
		sub := anchor.FindStringSubmatch(m)
		label := strings.TrimSpace(anyTag.ReplaceAllString(sub[2], ""))
		if label == "" {
			label = sub[1]
		}
		return "[" + label + "](" + sub[1] + ")"
	})
	prose = image.ReplaceAllStringFunc(prose, func(m string) string {
		if sub := altAttr.FindStringSubmatch(m); sub != nil && strings.TrimSpace(sub[1]) != "" {
			return "🖼 " + strings.TrimSpace(sub[1])
		}
		return "🖼"
	})
	for _, r := range htmlRewrites {
		prose = r.pattern.ReplaceAllString(prose, r.replace)
	}

	prose = anyTag.ReplaceAllString(prose, "")
	return html.UnescapeString(prose)
}
