package journal

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
)

// RenderStats writes the aggregates as aligned tables
func RenderStats(w io.Writer, st *Stats) {
	fmt.Fprintf(w, "Since %s\n\n", st.Since.Format("2006-01-02 15:04"))

	summary := tablewriter.NewWriter(w)
	summary.SetHeader([]string{"Metric", "Value"})
	summary.SetAlignment(tablewriter.ALIGN_LEFT)
	summary.AppendBulk([][]string{
		{"Exchanges", strconv.Itoa(st.Exchanges)},
		{"Model errors", strconv.Itoa(st.Errors)},
		{"Avg latency", st.AvgLatency.String()},
		{"Avg prompt tokens", fmt.Sprintf("%.0f", st.AvgPromptTok)},
		{"Users", strconv.Itoa(st.DistinctUsers)},
		{"Chats", strconv.Itoa(st.DistinctChats)},
		{"Deliveries", strconv.Itoa(st.Deliveries)},
		{"Plain-text fallbacks", strconv.Itoa(st.Fallbacks)},
		{"Failed deliveries", strconv.Itoa(st.Failures)},
	})
	summary.Render()

	renderCounts(w, "Enrichment", st.ByEnrichment)
	renderCounts(w, "Platform", st.ByPlatform)
}

// RenderRecent lists exchanges one per row
func RenderRecent(w io.Writer, exchanges []*Exchange) {
	if len(exchanges) == 0 {
		fmt.Fprintln(w, "No exchanges recorded")
		return
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Time", "Platform", "Chat", "User", "Enrichment", "Tokens", "Latency", "Error"})
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	for _, e := range exchanges {
		enrichment := e.EnrichmentKind
		if enrichment == "" {
			enrichment = "-"
		}
		table.Append([]string{
			e.CreatedAt.Format("2006-01-02 15:04:05"),
			e.Platform,
			e.ChatID,
			e.UserID,
			enrichment,
			fmt.Sprintf("%d/%d", e.PromptTokens, e.ResponseTokens),
			e.Latency.Round(time.Millisecond).String(),
			e.Error,
		})
	}
	table.Render()
}

func renderCounts(w io.Writer, title string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}

	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Fprintln(w)
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{title, "Count"})
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	for _, k := range keys {
		table.Append([]string{k, strconv.Itoa(counts[k])})
	}
	table.Render()
}
