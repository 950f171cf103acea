package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf16"

	"github.com/hession/campusbot/internal/format"
	"github.com/hession/campusbot/internal/journal"
	"github.com/hession/campusbot/internal/logger"
)

const (
	fenceMarker = "```"
	// minChunk keeps room for a reopened and a closed fence around content
	minChunk = 16
)

// Deliver sends text, split into platform-sized chunks. Every chunk is first
// sent with markup; a chunk whose markup is rejected is resent once as plain
// text. A second failure stops delivery and is returned. Only the first
// chunk is sent as a reply.
func (b *Bot) Deliver(ctx context.Context, s Sender, platform, chatID, text, replyTo string) error {
	chunks := SplitMessage(text, b.cfg.MaxMessageLength)
	if len(chunks) > 1 {
		for i := range chunks {
			chunks[i] = format.RepairDelimiters(chunks[i])
		}
	}

	rec := &journal.Delivery{Platform: platform, ChatID: chatID, Chunks: len(chunks)}
	var err error
	for i, chunk := range chunks {
		if i > 0 {
			replyTo = ""
		}
		fallback, sendErr := b.sendChunk(ctx, s, platform, chatID, chunk, replyTo)
		rec.Fallback = rec.Fallback || fallback
		if sendErr != nil {
			err = fmt.Errorf("deliver chunk %d/%d to %s chat %s: %w", i+1, len(chunks), platform, chatID, sendErr)
			break
		}
	}

	if err != nil {
		rec.Failed = true
		rec.Error = err.Error()
		logger.Error("%v", err)
	}
	if b.recorder != nil {
		if jerr := b.recorder.RecordDelivery(rec); jerr != nil {
			logger.Warn("Failed to journal delivery: %v", jerr)
		}
	}
	return err
}

// sendChunk performs at most two attempts: markup, then plain text when the
// platform rejected the markup
func (b *Bot) sendChunk(ctx context.Context, s Sender, platform, chatID, chunk, replyTo string) (fallback bool, err error) {
	err = s.Send(ctx, chatID, chunk, replyTo, true)
	b.metrics.Delivery(platform, "markup", err)
	if err == nil || !errors.Is(err, ErrMarkupRejected) {
		return false, err
	}

	logger.Warn("%s rejected markup in chat %s, resending as plain text: %v", platform, chatID, err)
	err = s.Send(ctx, chatID, format.PlainText(chunk), replyTo, false)
	b.metrics.Delivery(platform, "plain", err)
	return true, err
}

// SplitMessage cuts text into chunks of at most limit UTF-16 code units,
// the unit platform length limits are counted in, breaking
// at line boundaries where possible. A code fence open at a cut is closed at
// the end of the chunk and reopened at the start of the next one.
func SplitMessage(text string, limit int) []string {
	if limit <= 0 || utf16Len(text) <= limit {
		return []string{text}
	}
	if limit < minChunk {
		limit = minChunk
	}
	// Room for "```\n" in front and "\n```" behind
	pieceMax := limit - 2*(len(fenceMarker)+1)

	var (
		chunks  []string
		cur     []string
		curLen  int
		inFence bool
	)
	flush := func() {
		chunk := strings.Join(cur, "\n")
		if inFence {
			chunk += "\n" + fenceMarker
		}
		if strings.TrimSpace(strings.ReplaceAll(chunk, fenceMarker, "")) != "" {
			chunks = append(chunks, strings.TrimRight(chunk, "\n "))
		}
		cur, curLen = nil, 0
		if inFence {
			cur, curLen = []string{fenceMarker}, len(fenceMarker)
		}
	}

	for _, line := range strings.Split(text, "\n") {
		for _, piece := range splitLine(line, pieceMax) {
			n := utf16Len(piece)
			sep := 0
			if len(cur) > 0 {
				sep = 1
			}
			if len(cur) > 0 && curLen+sep+n+len(fenceMarker)+1 > limit {
				flush()
				sep = 0
				if len(cur) > 0 {
					sep = 1
				}
			}
			cur = append(cur, piece)
			curLen += sep + n
		}
		if strings.HasPrefix(strings.TrimSpace(line), fenceMarker) {
			inFence = !inFence
		}
	}
	inFence = false
	flush()
	return chunks
}

// splitLine hard-splits a line longer than max UTF-16 units, preferring to
// break at a space in the second half of each piece
func splitLine(line string, max int) []string {
	if utf16Len(line) <= max {
		return []string{line}
	}
	runes := []rune(line)
	var pieces []string
	for utf16Len(string(runes)) > max {
		end, width := 0, 0
		for end < len(runes) && width+utf16.RuneLen(runes[end]) <= max {
			width += utf16.RuneLen(runes[end])
			end++
		}
		if end == 0 {
			end = 1
		}
		cut := end
		for i := end; i > end/2; i-- {
			if runes[i] == ' ' {
				cut = i
				break
			}
		}
		pieces = append(pieces, string(runes[:cut]))
		runes = runes[cut:]
		if len(runes) > 0 && runes[0] == ' ' {
			runes = runes[1:]
		}
	}
	if len(runes) > 0 {
		pieces = append(pieces, string(runes))
	}
	return pieces
}

// utf16Len counts s in UTF-16 code units; characters outside the BMP, most
// emoji among them, take two
func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		if l := utf16.RuneLen(r); l > 0 {
			n += l
		} else {
			n++
		}
	}
	return n
}
