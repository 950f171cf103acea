// Package cli provides the local console: a prompt that feeds typed lines
// through the same dispatch path as chat platforms and prints the replies.
package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	prompt "github.com/c-bata/go-prompt"

	"github.com/hession/campusbot/internal/bot"
	"github.com/hession/campusbot/internal/logger"
)

const (
	// Version application version
	Version = "0.2.0"

	// Platform label used in logs, metrics and the journal
	Platform = "console"

	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorCyan   = "\033[36m"
	colorRed    = "\033[31m"
	colorGray   = "\033[90m"

	consoleChatID = "console"
	historyLimit  = 1000
)

// Handler processes one inbound message
type Handler interface {
	Handle(ctx context.Context, s bot.Sender, msg bot.Message) error
}

// Console interactive terminal session. It implements bot.Sender by
// printing replies.
type Console struct {
	handler Handler
	name    string
	userID  string
	out     io.Writer

	mu      sync.Mutex
	history []string
	seq     int
}

// NewConsole creates a console session for userID. name is shown in front
// of replies.
func NewConsole(handler Handler, name, userID string, out io.Writer) *Console {
	if userID == "" {
		userID = "local"
	}
	return &Console{handler: handler, name: name, userID: userID, out: out}
}

// Run reads lines until /exit, end of input or ctx cancellation
func (c *Console) Run(ctx context.Context) error {
	c.printWelcome()
	for ctx.Err() == nil {
		line := prompt.Input("You: ", completer,
			prompt.OptionTitle("CampusBot console"),
			prompt.OptionHistory(c.snapshot()),
			prompt.OptionPrefixTextColor(prompt.Green),
			prompt.OptionSuggestionBGColor(prompt.DarkGray),
		)
		if !c.Execute(ctx, line) {
			return nil
		}
	}
	return nil
}

// Execute handles one input line and reports whether the session goes on
func (c *Console) Execute(ctx context.Context, line string) bool {
	input := strings.TrimSpace(line)
	if input == "" {
		return true
	}
	c.remember(input)

	switch strings.ToLower(strings.Fields(input)[0]) {
	case "/exit", "/quit", "/q":
		fmt.Fprintf(c.out, "%sGoodbye! 👋%s\n", colorCyan, colorReset)
		return false
	}

	c.mu.Lock()
	c.seq++
	msgID := fmt.Sprintf("%d", c.seq)
	c.mu.Unlock()

	msg := bot.Message{
		Platform:  Platform,
		ChatID:    consoleChatID,
		UserID:    c.userID,
		MessageID: msgID,
		Author:    c.userID,
		Text:      input,
		Private:   true,
	}
	if err := c.handler.Handle(ctx, c, msg); err != nil {
		logger.Warn("Console delivery failed: %v", err)
		fmt.Fprintf(c.out, "%s❌ Error: %v%s\n", colorRed, err, colorReset)
	}
	return true
}

// Send implements bot.Sender
func (c *Console) Send(ctx context.Context, chatID, text, replyTo string, markup bool) error {
	_, err := fmt.Fprintf(c.out, "\n%s%s:%s %s\n\n", colorBlue, c.name, colorReset, text)
	return err
}

// Typing implements bot.Sender
func (c *Console) Typing(ctx context.Context, chatID string) error {
	return nil
}

func (c *Console) remember(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = append(c.history, line)
	if len(c.history) > historyLimit {
		c.history = c.history[len(c.history)-historyLimit:]
	}
}

func (c *Console) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.history...)
}

func (c *Console) printWelcome() {
	fmt.Fprintf(c.out, "\n%s🤖 CampusBot v%s%s - local console\n", colorCyan, Version, colorReset)
	fmt.Fprintf(c.out, "%sType /help for help, Tab to complete commands, /exit to quit%s\n\n", colorGray, colorReset)
}

var commandSuggestions = []prompt.Suggest{
	{Text: "/start", Description: "Greeting"},
	{Text: "/help", Description: "What the bot can do"},
	{Text: "/clear_memory", Description: "Forget this conversation"},
	{Text: "/clear_memory all", Description: "Also forget the shared chat memory"},
	{Text: "/exit", Description: "Leave the console"},
}

// completer suggests commands while the first word is being typed
func completer(d prompt.Document) []prompt.Suggest {
	before := d.TextBeforeCursor()
	if !strings.HasPrefix(before, "/") {
		return nil
	}
	return prompt.FilterHasPrefix(commandSuggestions, before, true)
}
