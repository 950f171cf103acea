package memory

import (
	"strings"
	"sync"
	"time"
)

// ChatEntry one observed message in a chat
type ChatEntry struct {
	Content   string
	Author    string
	Timestamp time.Time
}

// ChatMemoryConfig bounds for chat-wide memory
type ChatMemoryConfig struct {
	Limit          int    // entries kept per chat
	ContextEntries int    // entries rendered by ContextSnippet
	MaxChars       int    // content is truncated to this many characters
	Header         string // first line of ContextSnippet
}

// DefaultChatMemoryConfig returns the documented defaults
func DefaultChatMemoryConfig() ChatMemoryConfig {
	return ChatMemoryConfig{
		Limit:          100,
		ContextEntries: 20,
		MaxChars:       200,
		Header:         "Recent messages in this chat:",
	}
}

// ChatMemory is a rolling per-chat log of everything the bot has seen,
// independent of per-user histories. It is safe for concurrent use.
type ChatMemory struct {
	mu     sync.RWMutex
	config ChatMemoryConfig
	chats  map[string][]ChatEntry
	now    func() time.Time
}

// NewChatMemory creates an empty chat memory
func NewChatMemory(cfg ChatMemoryConfig) *ChatMemory {
	def := DefaultChatMemoryConfig()
	if cfg.Limit <= 0 {
		cfg.Limit = def.Limit
	}
	if cfg.ContextEntries <= 0 {
		cfg.ContextEntries = def.ContextEntries
	}
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = def.MaxChars
	}
	if cfg.Header == "" {
		cfg.Header = def.Header
	}
	return &ChatMemory{
		config: cfg,
		chats:  make(map[string][]ChatEntry),
		now:    time.Now,
	}
}

// Record appends a message and evicts the oldest entries beyond the limit
func (m *ChatMemory) Record(chatID, content, author string) {
	entry := ChatEntry{
		Content:   truncateRunes(content, m.config.MaxChars),
		Author:    author,
		Timestamp: m.now(),
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	entries := append(m.chats[chatID], entry)
	if len(entries) > m.config.Limit {
		// Copy so the evicted prefix does not pin the backing array
		trimmed := make([]ChatEntry, m.config.Limit)
		copy(trimmed, entries[len(entries)-m.config.Limit:])
		entries = trimmed
	}
	m.chats[chatID] = entries
}

// Entries returns a copy of the stored entries for a chat, oldest first
func (m *ChatMemory) Entries(chatID string) []ChatEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	src := m.chats[chatID]
	out := make([]ChatEntry, len(src))
	copy(out, src)
	return out
}

// ContextSnippet renders the most recent entries as "[author]: content"
// lines under the configured header. It returns "" for an unknown chat.
func (m *ChatMemory) ContextSnippet(chatID string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := m.chats[chatID]
	if len(entries) == 0 {
		return ""
	}
	if len(entries) > m.config.ContextEntries {
		entries = entries[len(entries)-m.config.ContextEntries:]
	}

	var sb strings.Builder
	sb.WriteString(m.config.Header)
	for _, e := range entries {
		sb.WriteString("\n[")
		sb.WriteString(e.Author)
		sb.WriteString("]: ")
		sb.WriteString(e.Content)
	}
	return sb.String()
}

// Clear forgets everything recorded for a chat
func (m *ChatMemory) Clear(chatID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.chats, chatID)
}

// Len returns the number of chats with recorded messages
func (m *ChatMemory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.chats)
}
