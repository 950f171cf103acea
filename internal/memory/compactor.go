package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/hession/campusbot/internal/logger"
)

const (
	digestInstruction = "Summarize the following conversation in 2-3 sentences, preserving the key points:"
	summaryTemplate   = "[Summary of prior conversation: %s]"

	// digestEntryChars caps how much of each entry goes into the digest
	digestEntryChars = 200

	defaultCompactTail  = 3
	defaultFallbackKeep = 10
)

// Outcome reports what a compaction pass did
type Outcome int

const (
	// OutcomeSkipped means the history was too short to compact
	OutcomeSkipped Outcome = iota
	// OutcomeSummarized means the middle segment was replaced by a summary
	OutcomeSummarized
	// OutcomeFallback means summarization failed and the history was truncated
	OutcomeFallback
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSummarized:
		return "summarized"
	case OutcomeFallback:
		return "fallback"
	default:
		return "skipped"
	}
}

// Compactor replaces the older part of a history with a model summary
type Compactor struct {
	summarizer   Summarizer
	tail         int
	fallbackKeep int
}

// NewCompactor creates a compactor keeping tail recent entries verbatim and
// falling back to the last fallbackKeep entries when summarization fails.
// Non-positive values select the defaults (3 and 10).
func NewCompactor(s Summarizer, tail, fallbackKeep int) *Compactor {
	if tail <= 0 {
		tail = defaultCompactTail
	}
	if fallbackKeep <= 0 {
		fallbackKeep = defaultFallbackKeep
	}
	return &Compactor{
		summarizer:   s,
		tail:         tail,
		fallbackKeep: fallbackKeep,
	}
}

// Compact returns the compacted history. The input slice is not modified.
func (c *Compactor) Compact(ctx context.Context, history []Entry) []Entry {
	out, _ := c.compact(ctx, history)
	return out
}

func (c *Compactor) compact(ctx context.Context, history []Entry) ([]Entry, Outcome) {
	if len(history) <= c.tail {
		return history, OutcomeSkipped
	}

	var system *Entry
	rest := history
	if history[0].Role == RoleSystem {
		system = &history[0]
		rest = history[1:]
	}
	if len(rest) <= c.tail {
		return history, OutcomeSkipped
	}

	middle := rest[:len(rest)-c.tail]
	tail := rest[len(rest)-c.tail:]

	summary, err := c.summarize(ctx, middle)
	if err != nil {
		logger.Warn("History compaction failed, keeping last %d entries: %v", c.fallbackKeep, err)
		return lastN(history, c.fallbackKeep), OutcomeFallback
	}

	out := make([]Entry, 0, len(tail)+2)
	if system != nil {
		out = append(out, *system)
	}
	out = append(out, Entry{
		Role:        RoleAssistant,
		Content:     fmt.Sprintf(summaryTemplate, summary),
		Timestamp:   middle[len(middle)-1].Timestamp,
		IsCompacted: true,
	})
	out = append(out, tail...)

	logger.Debug("History compacted: %d entries -> %d", len(history), len(out))
	return out, OutcomeSummarized
}

func (c *Compactor) summarize(ctx context.Context, middle []Entry) (string, error) {
	if c.summarizer == nil {
		return "", fmt.Errorf("no summarizer configured")
	}
	summary, err := c.summarizer.Summarize(ctx, BuildDigest(middle))
	if err != nil {
		return "", err
	}
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return "", fmt.Errorf("summarizer returned empty summary")
	}
	return summary, nil
}

// BuildDigest renders entries as the summarization prompt: the instruction
// followed by one "<role>: <first 200 chars>..." line per entry.
func BuildDigest(entries []Entry) string {
	var sb strings.Builder
	sb.WriteString(digestInstruction)
	sb.WriteString("\n\n")
	for i, e := range entries {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(e.Role)
		sb.WriteString(": ")
		sb.WriteString(truncateRunes(e.Content, digestEntryChars))
		sb.WriteString("...")
	}
	return sb.String()
}

func lastN(entries []Entry, n int) []Entry {
	if len(entries) <= n {
		return entries
	}
	out := make([]Entry, n)
	copy(out, entries[len(entries)-n:])
	return out
}

// truncateRunes cuts s to at most n runes
func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
