package main

import (
	"database/sql"
	"fmt"

	"github.com/hession/campusbot/internal/agent"
	"github.com/hession/campusbot/internal/bot"
	"github.com/hession/campusbot/internal/config"
	"github.com/hession/campusbot/internal/enrich"
	"github.com/hession/campusbot/internal/journal"
	"github.com/hession/campusbot/internal/llm"
	"github.com/hession/campusbot/internal/logger"
	"github.com/hession/campusbot/internal/memory"
	"github.com/hession/campusbot/internal/metrics"
)

// app holds the components shared by every transport
type app struct {
	cfg     *config.Config
	metrics *metrics.Metrics
	journal *journal.SQLiteStore // nil when the journal is disabled
	history *memory.Store
	chat    *memory.ChatMemory
	agent   *agent.Agent
	bot     *bot.Bot
}

func newApp(cfg *config.Config, prompts config.LanguagePrompts) (*app, error) {
	a := &app{cfg: cfg}
	if cfg.Metrics.Enabled {
		a.metrics = metrics.New()
	}

	var recorder journal.Recorder
	if cfg.Journal.Enabled {
		store, err := journal.NewSQLiteStore(cfg.Journal.DBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open journal: %w", err)
		}
		a.journal = store
		recorder = store
	}

	client := llm.New(cfg.Model.APIKey, cfg.Model.BaseURL, cfg.Model.Model, cfg.Model.Temperature, cfg.Model.MaxTokens)
	client.SetTimeout(cfg.ModelTimeout())
	client.SetSummaryParams(cfg.Memory.SummaryTemperature, cfg.Memory.SummaryMaxTokens)

	m := cfg.Memory
	a.history = memory.NewStore(memory.HistoryConfig{
		MaxHistoryTokens: m.MaxHistoryTokens,
		CompactToTokens:  m.CompactToTokens,
		CompactThreshold: m.CompactThreshold,
		HistoryLimit:     m.HistoryLimit,
	}, memory.NewCompactor(client, m.CompactTail, m.CompactFallbackKeep),
		memory.WithCompactionObserver(func(o memory.Outcome) {
			a.metrics.Compaction(o.String())
		}),
	)
	a.chat = memory.NewChatMemory(memory.ChatMemoryConfig{
		Limit:          m.ChatMemoryLimit,
		ContextEntries: m.ChatContextEntries,
		MaxChars:       m.ChatEntryMaxChars,
		Header:         prompts.ChatContext,
	})

	agentOpts := []agent.Option{agent.WithMetrics(a.metrics)}
	if recorder != nil {
		agentOpts = append(agentOpts, agent.WithJournal(recorder))
	}
	if cfg.Enrichment.Enabled {
		pipeline, err := enrich.NewFromConfig(cfg, enrich.WithObserver(func(kind enrich.Kind, outcome string) {
			a.metrics.Enrichment(string(kind), outcome)
		}))
		if err != nil {
			a.Close()
			return nil, err
		}
		logger.Info("Enrichment sources: %v", pipeline.Sources())
		agentOpts = append(agentOpts, agent.WithEnricher(pipeline))
	}
	a.agent = agent.New(client, a.history, a.chat, prompts, agentOpts...)

	botOpts := []bot.Option{bot.WithMetrics(a.metrics)}
	if recorder != nil {
		botOpts = append(botOpts, bot.WithJournal(recorder))
	}
	a.bot = bot.New(cfg.Bot, prompts, a.agent, a.history, a.chat, botOpts...)
	return a, nil
}

func (a *app) Close() {
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			logger.Warn("Failed to close journal: %v", err)
		}
	}
}

// journalDB shares the journal database with components that keep their own
// tables, or returns nil when the journal is disabled
func (a *app) journalDB() *sql.DB {
	if a.journal == nil {
		return nil
	}
	return a.journal.DB()
}
