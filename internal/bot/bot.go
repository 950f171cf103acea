// Package bot routes inbound chat messages: it records them in chat memory,
// answers commands, decides whether the bot is addressed, applies the rate
// limit and delivers replies with a plain-text fallback.
package bot

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/hession/campusbot/internal/agent"
	"github.com/hession/campusbot/internal/config"
	"github.com/hession/campusbot/internal/journal"
	"github.com/hession/campusbot/internal/logger"
	"github.com/hession/campusbot/internal/memory"
	"github.com/hession/campusbot/internal/metrics"
)

// ErrMarkupRejected is returned by a Sender when the platform refused the
// message because of its markup
var ErrMarkupRejected = errors.New("markup rejected by platform")

const typingInterval = 4 * time.Second

// Message an inbound text message, normalised across platforms
type Message struct {
	Platform   string
	ChatID     string
	UserID     string
	MessageID  string
	Author     string
	Text       string
	Private    bool   // one-to-one chat with the bot
	ReplyToBot bool   // a reply to one of the bot's messages
	Mentioned  bool   // the platform reported a mention of the bot
	Joined     string // display names of members who just joined, comma separated
}

// Sender delivers messages on one platform
type Sender interface {
	// Send delivers text as a reply to replyTo ("" for none). With markup
	// set the platform's markup mode is used and a refusal caused by the
	// markup is reported as ErrMarkupRejected.
	Send(ctx context.Context, chatID, text, replyTo string, markup bool) error
	// Typing shows a typing indicator
	Typing(ctx context.Context, chatID string) error
}

// Responder produces the reply to an addressed message
type Responder interface {
	Respond(ctx context.Context, userMessage, chatID, userID string) string
}

// Bot platform-independent message handler
type Bot struct {
	cfg       config.BotConfig
	prompts   config.LanguagePrompts
	responder Responder
	history   *memory.Store
	chat      *memory.ChatMemory
	limiter   *RateLimiter
	recorder  journal.Recorder
	metrics   *metrics.Metrics
}

// Option bot configuration option
type Option func(*Bot)

// WithJournal records every delivery
func WithJournal(r journal.Recorder) Option {
	return func(b *Bot) { b.recorder = r }
}

// WithMetrics counts messages and deliveries
func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Bot) { b.metrics = m }
}

// WithRateLimiter replaces the limiter built from the config
func WithRateLimiter(l *RateLimiter) Option {
	return func(b *Bot) { b.limiter = l }
}

// New creates a bot
func New(cfg config.BotConfig, prompts config.LanguagePrompts, responder Responder, history *memory.Store, chat *memory.ChatMemory, opts ...Option) *Bot {
	if cfg.Name == "" {
		cfg.Name = "CampusBot"
	}
	if cfg.MaxMessageLength <= 0 {
		cfg.MaxMessageLength = 4096
	}
	cfg.Username = strings.TrimPrefix(cfg.Username, "@")

	b := &Bot{
		cfg:       cfg,
		prompts:   prompts,
		responder: responder,
		history:   history,
		chat:      chat,
		limiter:   NewRateLimiter(cfg.RateLimitPerMinute, time.Minute),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name returns the display name the bot records its own replies under
func (b *Bot) Name() string {
	return b.cfg.Name
}

// SetUsername sets the handle used for mention and command matching, once
// the transport has learned it
func (b *Bot) SetUsername(username string) {
	b.cfg.Username = strings.TrimPrefix(username, "@")
}

// Handle processes one inbound message. The returned error is a delivery
// failure for this message only.
func (b *Bot) Handle(ctx context.Context, s Sender, msg Message) error {
	if msg.Joined != "" {
		return b.greet(ctx, s, msg)
	}
	msg.Text = strings.TrimSpace(msg.Text)
	if msg.Text == "" {
		return nil
	}
	b.chat.Record(msg.ChatID, msg.Text, msg.Author)

	if cmd, args, ok := b.parseCommand(msg.Text); ok {
		if reply, handled := b.runCommand(cmd, args, msg); handled {
			b.metrics.Message(msg.Platform, "command")
			return b.reply(ctx, s, msg, reply)
		}
	} else if cmd != "" {
		// A command for another bot in the same group
		b.metrics.Message(msg.Platform, "ignored")
		return nil
	}

	text, ok := b.addressed(msg)
	if !ok {
		b.metrics.Message(msg.Platform, "ignored")
		return nil
	}
	if text == "" {
		b.metrics.Message(msg.Platform, "command")
		return b.reply(ctx, s, msg, b.prompts.Start)
	}

	if !b.limiter.Allow(msg.Platform + ":" + msg.UserID) {
		logger.Info("Rate limit hit for %s user %s", msg.Platform, msg.UserID)
		b.metrics.Message(msg.Platform, "rate_limited")
		return b.send(ctx, s, msg, b.prompts.RateLimited)
	}

	ctx = agent.NewRequestContext(ctx, msg.Platform)
	logger.Debug("[%s] %s chat %s user %s (%d left this minute): %q", agent.RequestIDFrom(ctx), msg.Platform, msg.ChatID, msg.UserID,
		b.limiter.Remaining(msg.Platform+":"+msg.UserID), truncate(text, 80))

	stopTyping := b.keepTyping(ctx, s, msg.ChatID)
	answer := b.responder.Respond(ctx, text, msg.ChatID, msg.UserID)
	stopTyping()

	b.metrics.Message(msg.Platform, "answered")
	return b.reply(ctx, s, msg, answer)
}

// greet welcomes members who joined a group chat
func (b *Bot) greet(ctx context.Context, s Sender, msg Message) error {
	if !b.cfg.GreetNewMembers || msg.Private {
		return nil
	}
	b.metrics.Message(msg.Platform, "welcome")
	return b.reply(ctx, s, msg, strings.ReplaceAll(b.prompts.Welcome, "{names}", msg.Joined))
}

// reply delivers text and records it in chat memory under the bot's name
func (b *Bot) reply(ctx context.Context, s Sender, msg Message, text string) error {
	if err := b.send(ctx, s, msg, text); err != nil {
		return err
	}
	b.chat.Record(msg.ChatID, text, b.cfg.Name)
	return nil
}

func (b *Bot) send(ctx context.Context, s Sender, msg Message, text string) error {
	replyTo := ""
	if !msg.Private {
		replyTo = msg.MessageID
	}
	return b.Deliver(ctx, s, msg.Platform, msg.ChatID, text, replyTo)
}

// addressed reports whether a message is meant for the bot and returns it
// without the mention or trigger word. Private chats and replies to the bot
// are always addressed; in groups a mention or a leading trigger word is
// required.
func (b *Bot) addressed(msg Message) (string, bool) {
	text, mentioned := b.stripMention(msg.Text)
	if msg.Private || msg.ReplyToBot || msg.Mentioned || mentioned {
		return text, true
	}
	for _, trigger := range b.cfg.TriggerWords {
		if rest, ok := cutTrigger(text, trigger); ok {
			return rest, true
		}
	}
	return "", false
}

func (b *Bot) stripMention(text string) (string, bool) {
	if b.cfg.Username == "" {
		return text, false
	}
	mention := "@" + b.cfg.Username
	i := indexFold(text, mention)
	if i < 0 {
		return text, false
	}
	stripped := text[:i] + text[i+len(mention):]
	return strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(stripped), ",:")), true
}

// cutTrigger removes a leading trigger word followed by a word boundary
func cutTrigger(text, trigger string) (string, bool) {
	trigger = strings.TrimSpace(trigger)
	if trigger == "" || len(text) < len(trigger) || !strings.EqualFold(text[:len(trigger)], trigger) {
		return "", false
	}
	rest := text[len(trigger):]
	if r, _ := utf8.DecodeRuneInString(rest); rest != "" && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
		return "", false
	}
	return strings.TrimSpace(strings.TrimLeft(rest, " ,:!")), true
}

func indexFold(s, substr string) int {
	return strings.Index(strings.ToLower(s), strings.ToLower(substr))
}

// keepTyping refreshes the typing indicator until the returned func is called
func (b *Bot) keepTyping(ctx context.Context, s Sender, chatID string) func() {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(typingInterval)
		defer ticker.Stop()
		for {
			if err := s.Typing(ctx, chatID); err != nil && ctx.Err() == nil {
				logger.Debug("typing indicator failed: %v", err)
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
