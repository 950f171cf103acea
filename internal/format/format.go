// Package format turns model output into the paired-delimiter markup
// dialect used for delivery: *bold*, _italic_, `code`, ```blocks```,
// ~strike~ and [label](url).
package format

import (
	"strings"

	"github.com/hession/campusbot/internal/logger"
)

// stages run in order; each one leaves fenced blocks alone
var stages = []func(string) string{
	DetectTables,
	func(s string) string { return mapProse(s, translateHTML) },
	func(s string) string { return mapProse(s, normalizeMarkdown) },
	RepairDelimiters,
}

// Format converts text into the markup dialect. It never panics: on an
// internal failure it returns StripMarkup of the input.
func Format(text string) (out string) {
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("Formatter failed, sending plain text: %v", r)
			out = StripMarkup(text)
		}
	}()

	out = text
	for _, stage := range stages {
		out = stage(out)
	}
	return strings.TrimSpace(out)
}
