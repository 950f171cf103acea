package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	return string(body)
}

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.Message("telegram", "answered")
	m.Message("telegram", "answered")
	m.Message("matrix", "ignored")
	m.Completion(300*time.Millisecond, nil)
	m.Completion(time.Second, errors.New("boom"))
	m.Enrichment("repository", "fetched")
	m.Compaction("summarized")
	m.Delivery("telegram", "plain", nil)
	m.SetHistoryKeys(3)

	out := scrape(t, m)
	for _, want := range []string{
		`campusbot_messages_total{outcome="answered",platform="telegram"} 2`,
		`campusbot_messages_total{outcome="ignored",platform="matrix"} 1`,
		`campusbot_completions_total{result="error"} 1`,
		`campusbot_completions_total{result="ok"} 1`,
		`campusbot_completion_duration_seconds_count 2`,
		`campusbot_enrichments_total{kind="repository",outcome="fetched"} 1`,
		`campusbot_compactions_total{outcome="summarized"} 1`,
		`campusbot_deliveries_total{mode="plain",platform="telegram",result="ok"} 1`,
		`campusbot_history_keys 3`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q", want)
		}
	}
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.Message("telegram", "answered")
	m.Completion(time.Second, nil)
	m.Enrichment("webpage", "failed")
	m.Compaction("fallback")
	m.Delivery("matrix", "markup", errors.New("x"))
	m.SetHistoryKeys(1)
	if m.Registry() != nil {
		t.Error("nil metrics should have no registry")
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("health = %d", rec.Code)
	}
}

func TestMetrics_Health(t *testing.T) {
	server := httptest.NewServer(New().Handler())
	defer server.Close()

	resp, err := http.Get(server.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || strings.TrimSpace(string(body)) != "ok" {
		t.Errorf("health = %d %q", resp.StatusCode, body)
	}
}
