// Package telegram connects the bot to the Telegram Bot API using long
// polling.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/hession/campusbot/internal/bot"
	"github.com/hession/campusbot/internal/config"
	"github.com/hession/campusbot/internal/logger"
)

// Platform label used in logs, metrics and the journal
const Platform = "telegram"

const defaultPollTimeout = 30

// Handler processes one inbound message
type Handler interface {
	Handle(ctx context.Context, s bot.Sender, msg bot.Message) error
}

// Transport Telegram long-polling transport. It implements bot.Sender.
type Transport struct {
	api         *tgbotapi.BotAPI
	handler     Handler
	pollTimeout int
	wg          sync.WaitGroup
}

// New authenticates with the Bot API and returns a transport that has not
// started polling yet
func New(cfg config.TelegramConfig, handler Handler) (*Transport, error) {
	return newTransport(cfg, handler, tgbotapi.APIEndpoint)
}

func newTransport(cfg config.TelegramConfig, handler Handler, endpoint string) (*Transport, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, fmt.Errorf("telegram token is not configured")
	}
	if l := logger.GetDefault(); l != nil {
		if err := tgbotapi.SetLogger(l); err != nil {
			logger.Warn("Failed to attach Telegram logger: %v", err)
		}
	}

	api, err := tgbotapi.NewBotAPIWithAPIEndpoint(cfg.Token, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Telegram: %w", err)
	}
	api.Debug = cfg.Debug

	timeout := cfg.PollTimeoutSeconds
	if timeout <= 0 {
		timeout = defaultPollTimeout
	}
	return &Transport{api: api, handler: handler, pollTimeout: timeout}, nil
}

// Username returns the bot's @handle without the "@"
func (t *Transport) Username() string {
	return t.api.Self.UserName
}

// Run polls for updates until ctx is cancelled, handling each message in
// its own goroutine. It returns after in-flight handlers have finished.
func (t *Transport) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = t.pollTimeout
	updates := t.api.GetUpdatesChan(u)
	logger.Info("Telegram: polling as @%s", t.api.Self.UserName)

	defer t.wg.Wait()
	for {
		select {
		case <-ctx.Done():
			t.api.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			msg, ok := toMessage(update, t.api.Self)
			if !ok {
				continue
			}
			t.wg.Add(1)
			go t.handle(ctx, msg)
		}
	}
}

func (t *Transport) handle(ctx context.Context, msg bot.Message) {
	defer t.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Telegram handler panic in chat %s: %v", msg.ChatID, r)
		}
	}()
	if err := t.handler.Handle(ctx, t, msg); err != nil {
		logger.Error("Telegram: failed to answer chat %s: %v", msg.ChatID, err)
	}
}

// Send implements bot.Sender. Markup mode uses the legacy Markdown parse
// mode, whose delimiters match the formatter's output.
func (t *Transport) Send(ctx context.Context, chatID, text, replyTo string, markup bool) error {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid telegram chat id %q: %w", chatID, err)
	}

	msg := tgbotapi.NewMessage(id, text)
	if markup {
		msg.ParseMode = tgbotapi.ModeMarkdown
	}
	if replyTo != "" {
		if mid, err := strconv.Atoi(replyTo); err == nil {
			msg.ReplyToMessageID = mid
		}
	}

	if _, err := t.api.Send(msg); err != nil {
		return classifyError(err)
	}
	return nil
}

// Typing implements bot.Sender
func (t *Transport) Typing(ctx context.Context, chatID string) error {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid telegram chat id %q: %w", chatID, err)
	}
	_, err = t.api.Request(tgbotapi.NewChatAction(id, tgbotapi.ChatTyping))
	return err
}

// classifyError maps entity parse failures to bot.ErrMarkupRejected
func classifyError(err error) error {
	if strings.Contains(strings.ToLower(err.Error()), "can't parse entities") {
		return fmt.Errorf("%w: %v", bot.ErrMarkupRejected, err)
	}
	return fmt.Errorf("telegram send failed: %w", err)
}

// toMessage converts an update into a bot message. Join notices become
// greetings for the human newcomers; other non-text updates and messages
// from other bots are skipped.
func toMessage(update tgbotapi.Update, self tgbotapi.User) (bot.Message, bool) {
	m := update.Message
	if m == nil || m.Chat == nil || m.From == nil {
		return bot.Message{}, false
	}
	if len(m.NewChatMembers) > 0 {
		return joinMessage(m)
	}
	if m.From.IsBot || strings.TrimSpace(m.Text) == "" {
		return bot.Message{}, false
	}

	msg := bot.Message{
		Platform:  Platform,
		ChatID:    strconv.FormatInt(m.Chat.ID, 10),
		UserID:    strconv.FormatInt(m.From.ID, 10),
		MessageID: strconv.Itoa(m.MessageID),
		Author:    displayName(m.From),
		Text:      m.Text,
		Private:   m.Chat.IsPrivate(),
	}
	if r := m.ReplyToMessage; r != nil && r.From != nil && r.From.ID == self.ID {
		msg.ReplyToBot = true
	}
	for _, e := range m.Entities {
		if e.Type == "text_mention" && e.User != nil && e.User.ID == self.ID {
			msg.Mentioned = true
		}
	}
	return msg, true
}

func joinMessage(m *tgbotapi.Message) (bot.Message, bool) {
	var names []string
	for i := range m.NewChatMembers {
		if u := &m.NewChatMembers[i]; !u.IsBot {
			names = append(names, displayName(u))
		}
	}
	if len(names) == 0 {
		return bot.Message{}, false
	}
	return bot.Message{
		Platform:  Platform,
		ChatID:    strconv.FormatInt(m.Chat.ID, 10),
		UserID:    strconv.FormatInt(m.From.ID, 10),
		MessageID: strconv.Itoa(m.MessageID),
		Author:    displayName(m.From),
		Private:   m.Chat.IsPrivate(),
		Joined:    strings.Join(names, ", "),
	}, true
}

func displayName(u *tgbotapi.User) string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name != "" {
		return name
	}
	if u.UserName != "" {
		return "@" + u.UserName
	}
	return strconv.FormatInt(u.ID, 10)
}
