package observability

import (
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

func TestMetricsRecordAndServe(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry(), testLogger)

	m.ObserveFetch("html", "2xx", 1024, 20*time.Millisecond)
	m.ObserveFetch("html", "4xx", 0, 5*time.Millisecond)
	m.PageDone("persisted")
	m.PageDone("persisted")
	m.PageDone("skipped")
	m.Merged(3, 2, 1)
	m.SetVisited(4)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{
		`voyagegraph_pages_total{state="persisted"} 2`,
		`voyagegraph_fetch_requests_total{kind="html",status="4xx"} 1`,
		`voyagegraph_graph_merged_total{kind="dangling"} 1`,
		"voyagegraph_visited_pages 4",
		"voyagegraph_bytes_fetched_total 1024",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("exposition missing %q", want)
		}
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveFetch("html", "2xx", 1, time.Millisecond)
	m.PageDone("persisted")
	m.PersistFailed()
	m.Merged(1, 1, 0)
	m.SetVisited(1)
	m.CountryDetected()
}
