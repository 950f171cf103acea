package journal

import (
	"time"
)

// Recorder receives one row per handled exchange and per delivery
type Recorder interface {
	RecordExchange(e *Exchange) error
	RecordDelivery(d *Delivery) error
}

// Exchange one user message answered (or not) by the model
type Exchange struct {
	ID             string
	Platform       string
	ChatID         string
	UserID         string
	EnrichmentKind string // "" when no enrichment was used
	PromptTokens   int    // estimated tokens sent to the model
	ResponseTokens int    // estimated tokens of the formatted reply
	HistoryLen     int
	Latency        time.Duration
	Error          string
	CreatedAt      time.Time
}

// Delivery outcome of sending one reply chunk
type Delivery struct {
	ID        int64
	Platform  string
	ChatID    string
	Chunks    int
	Fallback  bool // resent as plain text after markup was rejected
	Failed    bool
	Error     string
	CreatedAt time.Time
}

// Stats aggregates over the journal
type Stats struct {
	Since         time.Time
	Exchanges     int
	Errors        int
	AvgLatency    time.Duration
	AvgPromptTok  float64
	Deliveries    int
	Fallbacks     int
	Failures      int
	ByEnrichment  map[string]int
	ByPlatform    map[string]int
	DistinctUsers int
	DistinctChats int
}
