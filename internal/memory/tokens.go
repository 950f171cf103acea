package memory

import (
	"math"
	"unicode/utf8"
)

// charsPerToken is the average characters-per-token ratio used for estimates
const charsPerToken = 3.5

// EstimateTokens approximates the model-token cost of text as
// ceil(runes / 3.5). It is a gate for compaction, not a billing figure.
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	return int(math.Ceil(float64(n) / charsPerToken))
}

// EstimateHistoryTokens sums the per-entry estimates
func EstimateHistoryTokens(entries []Entry) int {
	total := 0
	for _, e := range entries {
		total += EstimateTokens(e.Content)
	}
	return total
}
