package format

import (
	"regexp"
	"strings"
)

// A run of three or more backticks opens a fenced block; the block is closed
// by the next run at least as long as the opening one
var fencePattern = regexp.MustCompile("`{3,}")

// segment a slice of text that is either prose or a fenced block, markers
// included
type segment struct {
	text   string
	fenced bool
}

// splitFences splits text into alternating prose and fenced segments. An
// opening marker without a closing one stays in the prose.
func splitFences(text string) []segment {
	var segs []segment
	for {
		open := fencePattern.FindStringIndex(text)
		if open == nil {
			break
		}
		end := closingFence(text, open[1], open[1]-open[0])
		if end < 0 {
			break
		}
		if open[0] > 0 {
			segs = append(segs, segment{text: text[:open[0]]})
		}
		segs = append(segs, segment{text: text[open[0]:end], fenced: true})
		text = text[end:]
	}
	if text != "" {
		segs = append(segs, segment{text: text})
	}
	return segs
}

// closingFence returns the end offset of the first backtick run at or after
// from that is at least width long, or -1
func closingFence(text string, from, width int) int {
	for from < len(text) {
		m := fencePattern.FindStringIndex(text[from:])
		if m == nil {
			return -1
		}
		if m[1]-m[0] >= width {
			return from + m[1]
		}
		from += m[1]
	}
	return -1
}

func joinSegments(segs []segment) string {
	var sb strings.Builder
	for _, s := range segs {
		sb.WriteString(s.text)
	}
	return sb.String()
}

// mapProse applies fn to every prose segment and leaves fenced blocks alone
func mapProse(text string, fn func(string) string) string {
	segs := splitFences(text)
	for i := range segs {
		if !segs[i].fenced {
			segs[i].text = fn(segs[i].text)
		}
	}
	return joinSegments(segs)
}

func fence(body string) string {
	return "```\n" + body + "\n```"
}
