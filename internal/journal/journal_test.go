package journal

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func setupTestDB(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "journal", "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRecordExchange_AssignsID(t *testing.T) {
	store := setupTestDB(t)

	e := &Exchange{Platform: "telegram", ChatID: "1", UserID: "2", Latency: 1500 * time.Millisecond}
	if err := store.RecordExchange(e); err != nil {
		t.Fatalf("RecordExchange: %v", err)
	}
	if e.ID == "" {
		t.Error("exchange ID should be assigned")
	}
	if e.CreatedAt.IsZero() {
		t.Error("CreatedAt should be assigned")
	}

	got, err := store.RecentExchanges(10)
	if err != nil {
		t.Fatalf("RecentExchanges: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d exchanges, want 1", len(got))
	}
	if got[0].ID != e.ID || got[0].Latency != 1500*time.Millisecond {
		t.Errorf("round trip mismatch: %+v", got[0])
	}
}

func TestRecentExchanges_NewestFirst(t *testing.T) {
	store := setupTestDB(t)
	base := time.Now().Add(-time.Hour)

	for i, chat := range []string{"a", "b", "c"} {
		e := &Exchange{Platform: "telegram", ChatID: chat, UserID: "u", CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := store.RecordExchange(e); err != nil {
			t.Fatal(err)
		}
	}

	got, err := store.RecentExchanges(2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ChatID != "c" || got[1].ChatID != "b" {
		t.Errorf("unexpected order: %v, %v", got[0].ChatID, got[1].ChatID)
	}
}

func TestStats(t *testing.T) {
	store := setupTestDB(t)
	since := time.Now().Add(-time.Minute)

	exchanges := []*Exchange{
		{Platform: "telegram", ChatID: "1", UserID: "a", EnrichmentKind: "repository", PromptTokens: 100, Latency: time.Second},
		{Platform: "telegram", ChatID: "1", UserID: "b", EnrichmentKind: "search", PromptTokens: 300, Latency: 3 * time.Second},
		{Platform: "matrix", ChatID: "!room", UserID: "@c:hs", Error: "timeout", PromptTokens: 200, Latency: 2 * time.Second},
	}
	for _, e := range exchanges {
		if err := store.RecordExchange(e); err != nil {
			t.Fatal(err)
		}
	}
	for _, d := range []*Delivery{
		{Platform: "telegram", ChatID: "1", Chunks: 1},
		{Platform: "telegram", ChatID: "1", Chunks: 2, Fallback: true},
		{Platform: "matrix", ChatID: "!room", Chunks: 1, Fallback: true, Failed: true, Error: "bad json"},
	} {
		if err := store.RecordDelivery(d); err != nil {
			t.Fatal(err)
		}
		if d.ID == 0 {
			t.Error("delivery ID should be assigned")
		}
	}

	st, err := store.Stats(since)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.Exchanges != 3 || st.Errors != 1 {
		t.Errorf("exchanges=%d errors=%d", st.Exchanges, st.Errors)
	}
	if st.AvgLatency != 2*time.Second {
		t.Errorf("avg latency = %v", st.AvgLatency)
	}
	if st.AvgPromptTok != 200 {
		t.Errorf("avg prompt tokens = %v", st.AvgPromptTok)
	}
	if st.DistinctUsers != 3 || st.DistinctChats != 2 {
		t.Errorf("users=%d chats=%d", st.DistinctUsers, st.DistinctChats)
	}
	if st.ByEnrichment["repository"] != 1 || st.ByEnrichment["search"] != 1 || len(st.ByEnrichment) != 2 {
		t.Errorf("by enrichment = %v", st.ByEnrichment)
	}
	if st.ByPlatform["telegram"] != 2 || st.ByPlatform["matrix"] != 1 {
		t.Errorf("by platform = %v", st.ByPlatform)
	}
	if st.Deliveries != 3 || st.Fallbacks != 2 || st.Failures != 1 {
		t.Errorf("deliveries=%d fallbacks=%d failures=%d", st.Deliveries, st.Fallbacks, st.Failures)
	}
}

func TestStats_Empty(t *testing.T) {
	store := setupTestDB(t)

	st, err := store.Stats(time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("Stats on empty journal: %v", err)
	}
	if st.Exchanges != 0 || st.AvgLatency != 0 {
		t.Errorf("unexpected stats: %+v", st)
	}
}

func TestRenderStats(t *testing.T) {
	st := &Stats{
		Since:        time.Date(2026, 1, 2, 3, 4, 0, 0, time.UTC),
		Exchanges:    12,
		Fallbacks:    2,
		ByEnrichment: map[string]int{"webpage": 4},
		ByPlatform:   map[string]int{},
	}

	var buf bytes.Buffer
	RenderStats(&buf, st)
	out := buf.String()

	for _, want := range []string{"Since 2026-01-02 03:04", "EXCHANGES", "12", "WEBPAGE", "4"} {
		if !strings.Contains(strings.ToUpper(out), strings.ToUpper(want)) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(strings.ToUpper(out), "PLATFORM") {
		t.Error("empty breakdowns should be omitted")
	}
}

func TestRenderRecent(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tests := []struct {
		name      string
		exchanges []*Exchange
		want      []string
	}{
		{"empty", nil, []string{"No exchanges recorded"}},
		{
			name: "rows",
			exchanges: []*Exchange{
				{Platform: "telegram", ChatID: "-42", UserID: "7", EnrichmentKind: "webpage", PromptTokens: 120, ResponseTokens: 40, Latency: 1500 * time.Millisecond, CreatedAt: at},
				{Platform: "matrix", ChatID: "!room", UserID: "@u:x", Error: "timeout", CreatedAt: at},
			},
			want: []string{"2026-01-02 03:04:05", "telegram", "webpage", "120/40", "1.5s", "!room", "timeout"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			RenderRecent(&buf, tt.exchanges)
			for _, want := range tt.want {
				if !strings.Contains(buf.String(), want) {
					t.Errorf("output missing %q:\n%s", want, buf.String())
				}
			}
		})
	}
}
