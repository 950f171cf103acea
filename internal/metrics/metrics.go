// Package metrics exposes Prometheus counters for message handling. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hession/campusbot/internal/logger"
)

const namespace = "campusbot"

// Metrics collectors registered on a private registry
type Metrics struct {
	registry *prometheus.Registry

	messages          *prometheus.CounterVec
	completions       *prometheus.CounterVec
	completionLatency prometheus.Histogram
	enrichments       *prometheus.CounterVec
	compactions       *prometheus.CounterVec
	deliveries        *prometheus.CounterVec
	historyKeys       prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Inbound messages by platform and how they were handled.",
		}, []string{"platform", "outcome"}),
		completions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "completions_total",
			Help:      "Model completion calls by result.",
		}, []string{"result"}),
		completionLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "completion_duration_seconds",
			Help:      "Model completion latency.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32, 64, 128},
		}),
		enrichments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrichments_total",
			Help:      "Context enrichment attempts by kind and outcome.",
		}, []string{"kind", "outcome"}),
		compactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "compactions_total",
			Help:      "History compactions by outcome.",
		}, []string{"outcome"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Reply chunks sent by platform, mode and result.",
		}, []string{"platform", "mode", "result"}),
		historyKeys: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "history_keys",
			Help:      "Conversations currently held in memory.",
		}),
	}

	m.registry.MustRegister(
		m.messages,
		m.completions,
		m.completionLatency,
		m.enrichments,
		m.compactions,
		m.deliveries,
		m.historyKeys,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry the collectors live on
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Message counts one inbound message
func (m *Metrics) Message(platform, outcome string) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(platform, outcome).Inc()
}

// Completion records one model call
func (m *Metrics) Completion(d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.completions.WithLabelValues(result).Inc()
	m.completionLatency.Observe(d.Seconds())
}

// Enrichment counts one enrichment attempt
func (m *Metrics) Enrichment(kind, outcome string) {
	if m == nil {
		return
	}
	m.enrichments.WithLabelValues(kind, outcome).Inc()
}

// Compaction counts one compaction
func (m *Metrics) Compaction(outcome string) {
	if m == nil {
		return
	}
	m.compactions.WithLabelValues(outcome).Inc()
}

// Delivery counts one sent chunk
func (m *Metrics) Delivery(platform, mode string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.deliveries.WithLabelValues(platform, mode, result).Inc()
}

// SetHistoryKeys reports how many conversations are held
func (m *Metrics) SetHistoryKeys(n int) {
	if m == nil {
		return
	}
	m.historyKeys.Set(float64(n))
}

// Handler serves /metrics and /health
func (m *Metrics) Handler() http.Handler {
	mux := http.NewServeMux()
	if m != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	}
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	return mux
}

// Serve runs the HTTP endpoint until ctx is cancelled
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           m.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Metrics listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
