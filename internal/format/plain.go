package format

import (
	"regexp"
	"strings"
)

var fenceLine = regexp.MustCompile("`{3,}[\\w+-]*\\n?")

// PlainText removes fence markers and every *, _, ~ and ` so the text can be
// sent without markup. Links become "label (url)".
func PlainText(text string) string {
	text = fenceLine.ReplaceAllString(text, "")
	text = markdownLink.ReplaceAllStringFunc(text, func(m string) string {
		sub := markdownLink.FindStringSubmatch(m)
		if sub[1] == "" || sub[1] == sub[2] {
			return sub[2]
		}
		return sub[1] + " (" + sub[2] + ")"
	})
	return strings.TrimSpace(stripDelimiters.Replace(text))
}

// StripMarkup is PlainText applied after removing HTML tags
func StripMarkup(text string) string {
	return PlainText(anyTag.ReplaceAllString(text, ""))
}
