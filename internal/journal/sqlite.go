package journal

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore SQLite journal implementation
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the journal database
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &SQLiteStore{db: db}

	if err := store.initTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database tables: %w", err)
	}

	return store, nil
}

// initTables initializes database tables
func (s *SQLiteStore) initTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS exchanges (
			id TEXT PRIMARY KEY,
			platform TEXT NOT NULL,
			chat_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			enrichment TEXT NOT NULL DEFAULT '',
			prompt_tokens INTEGER NOT NULL DEFAULT 0,
			response_tokens INTEGER NOT NULL DEFAULT 0,
			history_len INTEGER NOT NULL DEFAULT 0,
			latency_ms INTEGER NOT NULL DEFAULT 0,
			error TEXT NOT NULL DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS deliveries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			platform TEXT NOT NULL,
			chat_id TEXT NOT NULL,
			chunks INTEGER NOT NULL DEFAULT 1,
			fallback INTEGER NOT NULL DEFAULT 0,
			failed INTEGER NOT NULL DEFAULT 0,
			error TEXT NOT NULL DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_exchanges_created_at ON exchanges(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_exchanges_chat_id ON exchanges(chat_id)`,
		`CREATE INDEX IF NOT EXISTS idx_deliveries_created_at ON deliveries(created_at)`,
	}

	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute SQL: %s, error: %w", query, err)
		}
	}

	return nil
}

// DB exposes the underlying handle so other components can keep their
// tables in the same file.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// RecordExchange inserts an exchange row, assigning an ID and timestamp
// when they are empty.
func (s *SQLiteStore) RecordExchange(e *Exchange) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	_, err := s.db.Exec(
		`INSERT INTO exchanges (id, platform, chat_id, user_id, enrichment, prompt_tokens, response_tokens, history_len, latency_ms, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Platform, e.ChatID, e.UserID, e.EnrichmentKind,
		e.PromptTokens, e.ResponseTokens, e.HistoryLen, e.Latency.Milliseconds(), e.Error, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record exchange: %w", err)
	}
	return nil
}

// RecordDelivery inserts a delivery row
func (s *SQLiteStore) RecordDelivery(d *Delivery) error {
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}

	result, err := s.db.Exec(
		`INSERT INTO deliveries (platform, chat_id, chunks, fallback, failed, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		d.Platform, d.ChatID, d.Chunks, d.Fallback, d.Failed, d.Error, d.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record delivery: %w", err)
	}

	id, err := result.LastInsertId()
	if err == nil {
		d.ID = id
	}
	return nil
}

// RecentExchanges returns the newest exchanges, newest first
func (s *SQLiteStore) RecentExchanges(limit int) ([]*Exchange, error) {
	rows, err := s.db.Query(
		`SELECT id, platform, chat_id, user_id, enrichment, prompt_tokens, response_tokens, history_len, latency_ms, error, created_at
		 FROM exchanges
		 ORDER BY created_at DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get exchanges: %w", err)
	}
	defer rows.Close()

	var exchanges []*Exchange
	for rows.Next() {
		var e Exchange
		var latencyMS int64
		if err := rows.Scan(&e.ID, &e.Platform, &e.ChatID, &e.UserID, &e.EnrichmentKind,
			&e.PromptTokens, &e.ResponseTokens, &e.HistoryLen, &latencyMS, &e.Error, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan exchange: %w", err)
		}
		e.Latency = time.Duration(latencyMS) * time.Millisecond
		exchanges = append(exchanges, &e)
	}

	return exchanges, rows.Err()
}

// Stats aggregates the journal since the given time
func (s *SQLiteStore) Stats(since time.Time) (*Stats, error) {
	st := &Stats{
		Since:        since,
		ByEnrichment: make(map[string]int),
		ByPlatform:   make(map[string]int),
	}

	var avgLatency, avgPrompt sql.NullFloat64
	err := s.db.QueryRow(
		`SELECT COUNT(*),
		        COALESCE(SUM(CASE WHEN error != '' THEN 1 ELSE 0 END), 0),
		        AVG(latency_ms),
		        AVG(prompt_tokens),
		        COUNT(DISTINCT user_id),
		        COUNT(DISTINCT chat_id)
		 FROM exchanges WHERE created_at >= ?`,
		since,
	).Scan(&st.Exchanges, &st.Errors, &avgLatency, &avgPrompt, &st.DistinctUsers, &st.DistinctChats)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate exchanges: %w", err)
	}
	if avgLatency.Valid {
		st.AvgLatency = time.Duration(avgLatency.Float64) * time.Millisecond
	}
	if avgPrompt.Valid {
		st.AvgPromptTok = avgPrompt.Float64
	}

	if err := s.countBy(`SELECT enrichment, COUNT(*) FROM exchanges WHERE created_at >= ? AND enrichment != '' GROUP BY enrichment`, since, st.ByEnrichment); err != nil {
		return nil, err
	}
	if err := s.countBy(`SELECT platform, COUNT(*) FROM exchanges WHERE created_at >= ? GROUP BY platform`, since, st.ByPlatform); err != nil {
		return nil, err
	}

	err = s.db.QueryRow(
		`SELECT COUNT(*),
		        COALESCE(SUM(fallback), 0),
		        COALESCE(SUM(failed), 0)
		 FROM deliveries WHERE created_at >= ?`,
		since,
	).Scan(&st.Deliveries, &st.Fallbacks, &st.Failures)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate deliveries: %w", err)
	}

	return st, nil
}

func (s *SQLiteStore) countBy(query string, since time.Time, into map[string]int) error {
	rows, err := s.db.Query(query, since)
	if err != nil {
		return fmt.Errorf("failed to group exchanges: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return fmt.Errorf("failed to scan group: %w", err)
		}
		into[key] = n
	}
	return rows.Err()
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
