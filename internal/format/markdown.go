package format

import (
	"regexp"
	"strings"
)

var (
	boldItalic     = regexp.MustCompile(`\*\*\*([^*\n]+?)\*\*\*`)
	doubleStar     = regexp.MustCompile(`\*\*([^*\n]+?)\*\*`)
	doubleUnder    = regexp.MustCompile(`(^|[^\w])__([^_\n]+?)__([^\w]|$)`)
	doubleTilde    = regexp.MustCompile(`~~([^~\n]+?)~~`)
	atxHeading     = regexp.MustCompile(`(?m)^[ \t]{0,3}#{1,6}[ \t]+(.+?)[ \t#]*$`)
	bulletMarker   = regexp.MustCompile(`(?m)^([ \t]*)[-*+][ \t]+`)
	trailingSpaces = regexp.MustCompile(`(?m)[ \t]+$`)
	blankLineRuns  = regexp.MustCompile(`\n{3,}`)
)

// normalizeMarkdown maps common Markdown onto the single-character
// dialect: **bold** and __bold__ become *bold*, ~~strike~~ becomes ~strike~,
// headings become bold lines and bullets become "• ".
func normalizeMarkdown(prose string) string {
	prose = atxHeading.ReplaceAllStringFunc(prose, func(m string) string {
		title := atxHeading.FindStringSubmatch(m)[1]
		return "*" + strings.Trim(strings.ReplaceAll(title, "*", ""), " ") + "*"
	})
	prose = boldItalic.ReplaceAllString(prose, "*_${1}_*")
	prose = doubleStar.ReplaceAllString(prose, "*$1*")
	prose = doubleUnder.ReplaceAllString(prose, "$1*$2*$3")
	prose = doubleTilde.ReplaceAllString(prose, "~$1~")
	prose = bulletMarker.ReplaceAllString(prose, "$1• ")
	prose = trailingSpaces.ReplaceAllString(prose, "")
	return blankLineRuns.ReplaceAllString(prose, "\n\n")
}
