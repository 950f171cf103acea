package agent

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/hession/campusbot/internal/config"
	"github.com/hession/campusbot/internal/enrich"
	"github.com/hession/campusbot/internal/format"
	"github.com/hession/campusbot/internal/journal"
	"github.com/hession/campusbot/internal/llm"
	"github.com/hession/campusbot/internal/logger"
	"github.com/hession/campusbot/internal/memory"
	"github.com/hession/campusbot/internal/metrics"
)

// Completer sends a conversation to the language model
type Completer interface {
	Complete(ctx context.Context, messages []llm.Message, opts ...llm.CallOption) (*llm.ChatResponse, error)
}

// Enricher fetches supplementary context for a user message
type Enricher interface {
	Enrich(ctx context.Context, text string) (enrich.Result, error)
}

// Agent composes prompts from memory and enrichment, calls the model and
// records the exchange
type Agent struct {
	llm      Completer
	history  *memory.Store
	chat     *memory.ChatMemory
	prompts  config.LanguagePrompts
	enricher Enricher
	recorder journal.Recorder
	metrics  *metrics.Metrics
	format   func(string) string
}

// Option agent configuration option
type Option func(*Agent)

// WithEnricher enables context enrichment
func WithEnricher(e Enricher) Option {
	return func(a *Agent) {
		a.enricher = e
	}
}

// WithJournal records every exchange
func WithJournal(r journal.Recorder) Option {
	return func(a *Agent) {
		a.recorder = r
	}
}

// WithMetrics reports completions and history size
func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Agent) {
		a.metrics = m
	}
}

// New creates a new Agent instance
func New(client Completer, history *memory.Store, chat *memory.ChatMemory, prompts config.LanguagePrompts, opts ...Option) *Agent {
	a := &Agent{
		llm:     client,
		history: history,
		chat:    chat,
		prompts: prompts,
		format:  format.Format,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Respond answers one user message. It never fails: a model error or an
// empty reply yields the apology and leaves the history untouched.
func (a *Agent) Respond(ctx context.Context, userMessage, chatID, userID string) string {
	start := time.Now()
	exchange := &journal.Exchange{
		Platform: PlatformFrom(ctx),
		ChatID:   chatID,
		UserID:   userID,
	}
	defer a.record(exchange, start)

	var enrichment string
	if a.enricher != nil {
		res, err := a.enricher.Enrich(ctx, userMessage)
		switch {
		case err == nil:
			enrichment = res.Block()
			exchange.EnrichmentKind = string(res.Kind)
		case errors.Is(err, enrich.ErrNoMatch):
		default:
			logger.Debug("[%s] continuing without enrichment: %v", RequestIDFrom(ctx), err)
		}
	}

	messages := a.buildMessages(userMessage+enrichment, chatID, userID)
	exchange.HistoryLen = len(messages) - 2
	for _, m := range messages {
		exchange.PromptTokens += memory.EstimateTokens(m.Content)
	}

	callStart := time.Now()
	resp, err := a.llm.Complete(ctx, messages)
	a.metrics.Completion(time.Since(callStart), err)
	if err == nil && strings.TrimSpace(resp.Content) == "" {
		err = errors.New("model returned an empty reply")
	}
	if err != nil {
		logger.Error("[%s] completion failed for chat %s user %s: %v", RequestIDFrom(ctx), chatID, userID, err)
		exchange.Error = err.Error()
		return a.prompts.Apology
	}

	reply := a.format(resp.Content)
	if reply == "" {
		exchange.Error = "formatted reply is empty"
		return a.prompts.Apology
	}

	if err := a.history.Append(ctx, chatID, userID, memory.RoleUser, userMessage); err != nil {
		logger.Warn("[%s] failed to store user message: %v", RequestIDFrom(ctx), err)
	}
	if err := a.history.Append(ctx, chatID, userID, memory.RoleAssistant, reply); err != nil {
		logger.Warn("[%s] failed to store reply: %v", RequestIDFrom(ctx), err)
	}
	exchange.ResponseTokens = memory.EstimateTokens(reply)
	logger.Debug("[%s] history for chat %s user %s now holds ~%d tokens", RequestIDFrom(ctx), chatID, userID, a.history.Tokens(chatID, userID))

	return reply
}

// buildMessages assembles system prompt, chat context, history and the
// final user turn
func (a *Agent) buildMessages(userTurn, chatID, userID string) []llm.Message {
	system := a.prompts.System
	if snippet := a.chat.ContextSnippet(chatID); snippet != "" {
		system += "\n\n" + snippet
	}

	history := a.history.Get(chatID, userID)
	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: system})
	for _, e := range history {
		messages = append(messages, llm.Message{Role: e.Role, Content: e.Content})
	}
	return append(messages, llm.Message{Role: llm.RoleUser, Content: userTurn})
}

func (a *Agent) record(e *journal.Exchange, start time.Time) {
	e.Latency = time.Since(start)
	a.metrics.SetHistoryKeys(a.history.Len())

	if a.recorder == nil {
		return
	}
	if err := a.recorder.RecordExchange(e); err != nil {
		logger.Warn("failed to journal exchange: %v", err)
	}
}
