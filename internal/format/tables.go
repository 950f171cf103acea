package format

import (
	"regexp"
	"strings"

	"github.com/olekukonko/tablewriter"
)

var (
	keyValueLine  = regexp.MustCompile(`^\s*[-*+•]\s+[^:|\n]{1,60}:\s+\S`)
	separatorCell = regexp.MustCompile(`^:?-{3,}:?$`)

	emphasisMarkers = strings.NewReplacer("**", "", "__", "", "`", "")
)

// DetectTables wraps tabular blocks found outside fenced code in a fence so
// they render monospaced. Recognised shapes: two or more pipe-delimited
// rows, two or more "left | right" lines, and three or more bulleted
// "key: value" lines. Pipe tables whose rows agree on a column count are
// re-aligned.
func DetectTables(text string) string {
	return mapProse(text, wrapTables)
}

func wrapTables(prose string) string {
	lines := strings.Split(prose, "\n")
	out := make([]string, 0, len(lines))

	for i := 0; i < len(lines); {
		rest := lines[i:]
		if n := leadingRun(rest, isPipeRow); n >= 2 {
			out = append(out, renderPipeTable(rest[:n]))
			i += n
			continue
		}
		if n := leadingRun(rest, isSplitLine); n >= 2 {
			out = append(out, fence(strings.Join(rest[:n], "\n")))
			i += n
			continue
		}
		if n := leadingRun(rest, keyValueLine.MatchString); n >= 3 {
			block := make([]string, n)
			for j, line := range rest[:n] {
				block[j] = emphasisMarkers.Replace(line)
			}
			out = append(out, fence(strings.Join(block, "\n")))
			i += n
			continue
		}
		out = append(out, lines[i])
		i++
	}
	return strings.Join(out, "\n")
}

func leadingRun(lines []string, match func(string) bool) int {
	n := 0
	for n < len(lines) && match(lines[n]) {
		n++
	}
	return n
}

func isPipeRow(line string) bool {
	return strings.Count(line, "|") >= 2
}

// isSplitLine matches "left | right" with text on both sides
func isSplitLine(line string) bool {
	if strings.Count(line, "|") != 1 {
		return false
	}
	left, right, _ := strings.Cut(line, "|")
	return strings.TrimSpace(left) != "" && strings.TrimSpace(right) != ""
}

func renderPipeTable(lines []string) string {
	var rows [][]string
	hasSeparator := false
	for _, line := range lines {
		cells := splitRow(line)
		if isSeparatorRow(cells) {
			hasSeparator = true
			continue
		}
		rows = append(rows, cells)
	}

	if len(rows) == 0 || len(rows[0]) < 2 {
		return fence(strings.Join(lines, "\n"))
	}
	for _, r := range rows[1:] {
		if len(r) != len(rows[0]) {
			return fence(strings.Join(lines, "\n"))
		}
	}

	var sb strings.Builder
	table := tablewriter.NewWriter(&sb)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	if hasSeparator && len(rows) > 1 {
		table.SetHeader(rows[0])
		rows = rows[1:]
	}
	table.AppendBulk(rows)
	table.Render()

	return fence(strings.TrimRight(sb.String(), "\n"))
}

func splitRow(line string) []string {
	line = strings.TrimSpace(line)
	line = strings.TrimPrefix(line, "|")
	line = strings.TrimSuffix(line, "|")
	cells := strings.Split(line, "|")
	for i, c := range cells {
		cells[i] = strings.TrimSpace(emphasisMarkers.Replace(c))
	}
	return cells
}

func isSeparatorRow(cells []string) bool {
	for _, c := range cells {
		if !separatorCell.MatchString(strings.ReplaceAll(c, " ", "")) {
			return false
		}
	}
	return true
}
