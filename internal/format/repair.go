package format

import (
	"regexp"
	"strings"
)

var (
	markdownLink = regexp.MustCompile(`\[([^\]\n]*)\]\(([^)\s]*)\)`)
	bareURL      = regexp.MustCompile(`https?://[^\s)\]]+`)

	stripDelimiters = strings.NewReplacer("*", "", "_", "", "~", "", "`", "")
	escapeURL       = strings.NewReplacer("*", "%2A", "_", "%5F", "~", "%7E", "`", "%60")
)

// RepairDelimiters makes every *, _, ~ and ` delimiter paired so the text
// is accepted in markup mode. Fenced blocks keep their content but open and
// close with exactly ```; each prose segment is balanced on its own:
//
//   - delimiters are removed from link labels and escaped in URLs
//   - empty pairs disappear and longer runs collapse to one marker
//   - a dangling ``` is dropped
//   - for each class with an odd count the last occurrence is dropped,
//     ignoring markers inside `code` spans
//
// This is a heuristic. Nested or overlapping spans can lose a boundary.
func RepairDelimiters(text string) string {
	// Collapsing an unpaired long fence can create new pairs, so repeat
	// until the fence structure is stable. Backticks never increase.
	for {
		next := repairPass(text)
		if next == text {
			return text
		}
		text = next
	}
}

func repairPass(text string) string {
	var sb strings.Builder
	for _, seg := range splitFences(text) {
		out := seg.text
		if seg.fenced {
			out = normalizeFence(out)
		} else {
			out = repairProse(out)
		}
		// Keep a fence marker from merging with a neighbouring backtick
		if out != "" && out[0] == '`' && strings.HasSuffix(sb.String(), "`") {
			sb.WriteByte('\n')
		}
		sb.WriteString(out)
	}
	return sb.String()
}

// nestedFence replaces backticks of shorter runs nested inside a longer
// fence, which would otherwise end the block early
const nestedFence = "ˋ"

// normalizeFence rewrites a fenced block so it opens and closes with exactly
// ```. The info string after the opening marker is kept.
func normalizeFence(block string) string {
	open := len(block) - len(strings.TrimLeft(block, "`"))
	body := strings.TrimRight(block[open:], "`")
	body = fencePattern.ReplaceAllStringFunc(body, func(run string) string {
		return strings.Repeat(nestedFence, len(run))
	})
	return "```" + body + "```"
}

// repairProse repeats until nothing changes. Every pass that changes the
// text removes or escapes at least one delimiter, so the loop terminates.
func repairProse(s string) string {
	for {
		next := repairOnce(s)
		if next == s {
			return s
		}
		s = next
	}
}

func repairOnce(s string) string {
	s = markdownLink.ReplaceAllStringFunc(s, func(m string) string {
		sub := markdownLink.FindStringSubmatch(m)
		return "[" + stripDelimiters.Replace(sub[1]) + "](" + escapeURL.Replace(sub[2]) + ")"
	})
	s = bareURL.ReplaceAllStringFunc(s, escapeURL.Replace)

	s = collapseBackticks(s)
	if strings.Count(s, "```")%2 == 1 {
		i := strings.LastIndex(s, "```")
		s = s[:i] + s[i+3:]
	}
	if strings.Count(s, "`")%2 == 1 {
		i := strings.LastIndexByte(s, '`')
		s = s[:i] + s[i+1:]
	}

	m := newMarked(s)
	for _, d := range []byte("*_~") {
		m.collapse(d)
		if m.count(d)%2 == 1 {
			m.removeLast(d)
		}
	}
	return string(m.b)
}

// collapseBackticks drops empty backtick pairs and shortens longer runs
// to three
func collapseBackticks(s string) string {
	if !strings.Contains(s, "``") {
		return s
	}
	var sb strings.Builder
	for i := 0; i < len(s); {
		if s[i] != '`' {
			sb.WriteByte(s[i])
			i++
			continue
		}
		j := i
		for j < len(s) && s[j] == '`' {
			j++
		}
		switch n := j - i; {
		case n == 1:
			sb.WriteByte('`')
		case n >= 3:
			sb.WriteString("```")
		}
		i = j
	}
	return sb.String()
}

// marked text with a per-byte flag for inline code spans
type marked struct {
	b    []byte
	code []bool
}

func newMarked(s string) *marked {
	m := &marked{b: []byte(s), code: make([]bool, len(s))}
	open := -1
	for i, c := range m.b {
		if c != '`' {
			continue
		}
		if open < 0 {
			open = i
			continue
		}
		for j := open; j <= i; j++ {
			m.code[j] = true
		}
		open = -1
	}
	return m
}

// collapse removes even runs of d and shortens odd runs to one
func (m *marked) collapse(d byte) {
	b := m.b[:0:0]
	code := m.code[:0:0]
	for i := 0; i < len(m.b); {
		if m.b[i] != d || m.code[i] {
			b = append(b, m.b[i])
			code = append(code, m.code[i])
			i++
			continue
		}
		j := i
		for j < len(m.b) && m.b[j] == d && !m.code[j] {
			j++
		}
		if (j-i)%2 == 1 {
			b = append(b, d)
			code = append(code, false)
		}
		i = j
	}
	m.b, m.code = b, code
}

func (m *marked) count(d byte) int {
	n := 0
	for i, c := range m.b {
		if c == d && !m.code[i] {
			n++
		}
	}
	return n
}

func (m *marked) removeLast(d byte) {
	for i := len(m.b) - 1; i >= 0; i-- {
		if m.b[i] == d && !m.code[i] {
			m.b = append(m.b[:i], m.b[i+1:]...)
			m.code = append(m.code[:i], m.code[i+1:]...)
			return
		}
	}
}
