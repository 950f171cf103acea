package memory

import (
	"context"
	"time"
)

// Conversation roles
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Entry one turn of a per-user conversation. Entries are never mutated
// after they are appended; compaction and trimming replace whole slices.
type Entry struct {
	Role        string
	Content     string
	Timestamp   time.Time
	IsCompacted bool
}

// Key identifies one user's history inside one chat
type Key struct {
	ChatID string
	UserID string
}

func (k Key) String() string {
	return k.ChatID + ":" + k.UserID
}

// Summarizer condenses a conversation digest into a short summary
type Summarizer interface {
	Summarize(ctx context.Context, digest string) (string, error)
}

func validRole(role string) bool {
	switch role {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}
