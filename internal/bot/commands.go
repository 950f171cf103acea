package bot

import (
	"strings"
)

// parseCommand splits "/name@bot args". ok is false when text is not a
// command or when the command is addressed to another bot; in the latter
// case cmd is still returned.
func (b *Bot) parseCommand(text string) (cmd, args string, ok bool) {
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	head, rest, _ := strings.Cut(text, " ")
	name, target, addressed := strings.Cut(strings.TrimPrefix(head, "/"), "@")
	if name == "" {
		return "", "", false
	}
	cmd = strings.ToLower(name)
	args = strings.TrimSpace(rest)
	if addressed && !strings.EqualFold(target, b.cfg.Username) {
		return cmd, args, false
	}
	return cmd, args, true
}

// runCommand executes a known command. handled is false for unknown
// commands, which are then treated as ordinary text.
func (b *Bot) runCommand(cmd, args string, msg Message) (reply string, handled bool) {
	switch cmd {
	case "start":
		return b.prompts.Start, true
	case "help":
		return b.prompts.Help, true
	case "clear_memory", "clear":
		b.history.Clear(msg.ChatID, msg.UserID)
		if strings.EqualFold(args, "all") {
			b.chat.Clear(msg.ChatID)
			return b.prompts.ClearAllConfirm, true
		}
		return b.prompts.ClearConfirm, true
	}
	return "", false
}
