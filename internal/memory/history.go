package memory

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// HistoryConfig bounds for per-user histories
type HistoryConfig struct {
	// MaxHistoryTokens is the hard token ceiling after compaction and trim
	MaxHistoryTokens int
	// CompactToTokens is the advisory size a compacted history aims for
	CompactToTokens int
	// CompactThreshold is the fraction of MaxHistoryTokens that triggers compaction
	CompactThreshold float64
	// HistoryLimit is the maximum number of entries kept per key
	HistoryLimit int
}

// DefaultHistoryConfig returns the documented defaults
func DefaultHistoryConfig() HistoryConfig {
	return HistoryConfig{
		MaxHistoryTokens: 32000,
		CompactToTokens:  16000,
		CompactThreshold: 0.8,
		HistoryLimit:     25,
	}
}

// StoreOption configures a Store
type StoreOption func(*Store)

// WithCompactionObserver registers a callback invoked after every
// compaction attempt that was not skipped.
func WithCompactionObserver(fn func(Outcome)) StoreOption {
	return func(s *Store) { s.onCompact = fn }
}

// WithClock overrides the timestamp source
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// keyLock serializes read-modify-write on one key
type keyLock struct {
	mu   sync.Mutex
	refs int
}

// Store holds per-(chat, user) conversation histories in process memory.
// It is safe for concurrent use: appends to the same key are serialized,
// appends to different keys run in parallel.
type Store struct {
	mu        sync.RWMutex
	config    HistoryConfig
	compactor *Compactor
	histories map[Key][]Entry
	locks     map[Key]*keyLock
	onCompact func(Outcome)
	now       func() time.Time
}

// NewStore creates a history store. A nil compactor disables compaction;
// the token ceiling is still enforced by trimming.
func NewStore(cfg HistoryConfig, compactor *Compactor, opts ...StoreOption) *Store {
	def := DefaultHistoryConfig()
	if cfg.MaxHistoryTokens <= 0 {
		cfg.MaxHistoryTokens = def.MaxHistoryTokens
	}
	if cfg.CompactToTokens <= 0 {
		cfg.CompactToTokens = cfg.MaxHistoryTokens / 2
	}
	if cfg.CompactThreshold <= 0 || cfg.CompactThreshold > 1 {
		cfg.CompactThreshold = def.CompactThreshold
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = def.HistoryLimit
	}

	s := &Store{
		config:    cfg,
		compactor: compactor,
		histories: make(map[Key][]Entry),
		locks:     make(map[Key]*keyLock),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Append adds an entry to the keyed history, compacting when the estimated
// size passes the threshold and trimming to the entry limit and the token
// ceiling afterwards. It may block while the summarizer runs.
func (s *Store) Append(ctx context.Context, chatID, userID, role, content string) error {
	if !validRole(role) {
		return fmt.Errorf("invalid role %q", role)
	}

	key := Key{ChatID: chatID, UserID: userID}
	unlock := s.lockKey(key)
	defer unlock()

	s.mu.RLock()
	current := s.histories[key]
	s.mu.RUnlock()

	history := make([]Entry, len(current), len(current)+1)
	copy(history, current)
	history = append(history, Entry{
		Role:      role,
		Content:   content,
		Timestamp: s.now(),
	})

	if s.needsCompaction(history) && s.compactor != nil {
		var outcome Outcome
		history, outcome = s.compactor.compact(ctx, history)
		if outcome != OutcomeSkipped && s.onCompact != nil {
			s.onCompact(outcome)
		}
	}

	history = s.enforceLimits(history)

	s.mu.Lock()
	s.histories[key] = history
	s.mu.Unlock()

	return nil
}

// Get returns a copy of the keyed history, or nil when there is none
func (s *Store) Get(chatID, userID string) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h := s.histories[Key{ChatID: chatID, UserID: userID}]
	if len(h) == 0 {
		return nil
	}
	out := make([]Entry, len(h))
	copy(out, h)
	return out
}

// Clear removes the keyed history. Clearing a missing key is a no-op.
// A concurrent Append on the same key finishes before the history is removed.
func (s *Store) Clear(chatID, userID string) {
	key := Key{ChatID: chatID, UserID: userID}
	unlock := s.lockKey(key)
	defer unlock()

	s.mu.Lock()
	delete(s.histories, key)
	s.mu.Unlock()
}

// Len returns the number of keys with a stored history
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.histories)
}

// Tokens returns the estimated token size of the keyed history
func (s *Store) Tokens(chatID, userID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return EstimateHistoryTokens(s.histories[Key{ChatID: chatID, UserID: userID}])
}

func (s *Store) needsCompaction(history []Entry) bool {
	threshold := float64(s.config.MaxHistoryTokens) * s.config.CompactThreshold
	return float64(EstimateHistoryTokens(history)) > threshold
}

// enforceLimits trims to HistoryLimit entries, then drops the oldest entries
// until the history fits MaxHistoryTokens. The newest entry is always kept.
func (s *Store) enforceLimits(history []Entry) []Entry {
	if len(history) > s.config.HistoryLimit {
		history = history[len(history)-s.config.HistoryLimit:]
	}
	for len(history) > 1 && EstimateHistoryTokens(history) > s.config.MaxHistoryTokens {
		history = history[1:]
	}
	out := make([]Entry, len(history))
	copy(out, history)
	return out
}

// lockKey acquires the per-key lock and returns its release function.
// Lock entries are reference counted and dropped when unused.
func (s *Store) lockKey(key Key) func() {
	s.mu.Lock()
	l, ok := s.locks[key]
	if !ok {
		l = &keyLock{}
		s.locks[key] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()

		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, key)
		}
		s.mu.Unlock()
	}
}
