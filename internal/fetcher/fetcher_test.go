package fetcher

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/IshaanNene/voyagegraph/internal/config"
	"github.com/IshaanNene/voyagegraph/internal/observability"
	"github.com/IshaanNene/voyagegraph/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

func newTestFetcher(t *testing.T, delay time.Duration, m *observability.Metrics) *HTTPFetcher {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Crawler.PolitenessDelay = delay
	cfg.Fetcher.RequestTimeout = 5 * time.Second
	f, err := NewHTTPFetcher(cfg, m, testLogger)
	if err != nil {
		t.Fatalf("NewHTTPFetcher: %v", err)
	}
	t.Cleanup(func() { f.Close() })
	return f
}

func TestFetchRejectsOversizedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/fits":
			w.Write([]byte(strings.Repeat("a", 16)))
		case "/large":
			w.Write([]byte(strings.Repeat("a", 17)))
		case "/large-br":
			w.Header().Set("Content-Encoding", "br")
			bw := brotli.NewWriter(w)
			bw.Write([]byte(strings.Repeat("a", 64)))
			bw.Close()
		}
	}))
	defer srv.Close()

	cfg := config.DefaultConfig()
	cfg.Crawler.PolitenessDelay = 0
	cfg.Fetcher.MaxBodySize = 16
	f, err := NewHTTPFetcher(cfg, nil, testLogger)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	ctx := context.Background()

	resp, err := f.Fetch(ctx, Request{URL: srv.URL + "/fits"})
	if err != nil || len(resp.Body) != 16 {
		t.Fatalf("body at the limit should pass, got %v", err)
	}
	for _, path := range []string{"/large", "/large-br"} {
		_, err := f.Fetch(ctx, Request{URL: srv.URL + path})
		var fe *types.FetchError
		if !errors.Is(err, types.ErrBodyTooLarge) || !errors.As(err, &fe) || fe.Retryable {
			t.Errorf("%s: expected non-retryable ErrBodyTooLarge, got %v", path, err)
		}
	}
}

func TestFetchStatusMapping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			w.Write([]byte("<p>hello</p>"))
		case "/missing":
			http.NotFound(w, r)
		case "/busy":
			w.Header().Set("Retry-After", "7")
			w.WriteHeader(http.StatusTooManyRequests)
		case "/broken":
			w.WriteHeader(http.StatusBadGateway)
		case "/empty":
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer srv.Close()

	f := newTestFetcher(t, 0, nil)
	ctx := context.Background()

	resp, err := f.Fetch(ctx, Request{URL: srv.URL + "/ok", Kind: KindPageHTML})
	if err != nil {
		t.Fatalf("ok: %v", err)
	}
	if string(resp.Body) != "<p>hello</p>" || !resp.IsSuccess() {
		t.Errorf("ok: unexpected response %d %q", resp.StatusCode, resp.Body)
	}

	_, err = f.Fetch(ctx, Request{URL: srv.URL + "/missing"})
	if !errors.Is(err, types.ErrNotFound) {
		t.Errorf("missing: expected ErrNotFound, got %v", err)
	}

	_, err = f.Fetch(ctx, Request{URL: srv.URL + "/busy"})
	var fe *types.FetchError
	if !errors.As(err, &fe) || !fe.Retryable || fe.RetryAfter != 7*time.Second {
		t.Errorf("busy: expected retryable 429 with 7s, got %v", err)
	}

	_, err = f.Fetch(ctx, Request{URL: srv.URL + "/broken"})
	if !errors.As(err, &fe) || !fe.Retryable || fe.StatusCode != http.StatusBadGateway {
		t.Errorf("broken: expected retryable 502, got %v", err)
	}

	_, err = f.Fetch(ctx, Request{URL: srv.URL + "/empty"})
	if !errors.Is(err, types.ErrEmptyResponse) {
		t.Errorf("empty: expected ErrEmptyResponse, got %v", err)
	}
}

func TestFetchDecodesBrotli(t *testing.T) {
	var buf bytes.Buffer
	bw := brotli.NewWriter(&buf)
	bw.Write([]byte("<h2>Cities</h2>"))
	bw.Close()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Accept-Encoding"), "br") {
			t.Errorf("Accept-Encoding = %q", r.Header.Get("Accept-Encoding"))
		}
		w.Header().Set("Content-Encoding", "br")
		w.Write(buf.Bytes())
	}))
	defer srv.Close()

	resp, err := newTestFetcher(t, 0, nil).Fetch(context.Background(), Request{URL: srv.URL})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(resp.Body) != "<h2>Cities</h2>" {
		t.Errorf("body = %q", resp.Body)
	}
}

func TestFetchSendsUserAgent(t *testing.T) {
	var ua atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua.Store(r.Header.Get("User-Agent"))
		w.Write([]byte("x"))
	}))
	defer srv.Close()

	if _, err := newTestFetcher(t, 0, nil).Fetch(context.Background(), Request{URL: srv.URL}); err != nil {
		t.Fatal(err)
	}
	if got, _ := ua.Load().(string); !strings.HasPrefix(got, "TravelAssistant/1.0") {
		t.Errorf("User-Agent = %q", got)
	}
}

func TestFetchHonoursPolitenessDelay(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("x"))
	}))
	defer srv.Close()

	f := newTestFetcher(t, 50*time.Millisecond, nil)
	start := time.Now()
	for i := 0; i < 3; i++ {
		if _, err := f.Fetch(context.Background(), Request{URL: srv.URL}); err != nil {
			t.Fatal(err)
		}
	}
	// First request passes immediately, the next two wait one interval each.
	if elapsed := time.Since(start); elapsed < 90*time.Millisecond {
		t.Errorf("three fetches took %s, expected at least ~100ms", elapsed)
	}
}

func TestFetchCancelledWhileWaiting(t *testing.T) {
	f := newTestFetcher(t, time.Hour, nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("x"))
	}))
	defer srv.Close()

	if _, err := f.Fetch(context.Background(), Request{URL: srv.URL}); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := f.Fetch(ctx, Request{URL: srv.URL}); err == nil {
		t.Error("expected error when the limiter wait outlives the context")
	}
}

func TestFetchRecordsMetrics(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("hello"))
	}))
	defer srv.Close()

	m := observability.NewMetrics(prometheus.NewRegistry(), testLogger)
	if _, err := newTestFetcher(t, 0, m).Fetch(context.Background(), Request{URL: srv.URL, Kind: KindSummary}); err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	if !strings.Contains(body, `voyagegraph_fetch_requests_total{kind="summary",status="2xx"} 1`) {
		t.Errorf("fetch counter missing from exposition:\n%s", body)
	}
	if !strings.Contains(body, "voyagegraph_bytes_fetched_total 5") {
		t.Errorf("byte counter missing from exposition:\n%s", body)
	}
}

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		header string
		want   time.Duration
	}{
		{"", 5 * time.Second},
		{"3", 3 * time.Second},
		{"600", 120 * time.Second},
		{"garbage", 5 * time.Second},
	}
	for _, tt := range tests {
		if got := parseRetryAfter(tt.header); got != tt.want {
			t.Errorf("parseRetryAfter(%q) = %s, want %s", tt.header, got, tt.want)
		}
	}
}

// --- WikiSource Tests ---

func newTestSource(t *testing.T, handler http.HandlerFunc) *WikiSource {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cfg := config.DefaultConfig()
	cfg.Crawler.BaseURL = srv.URL
	cfg.Crawler.PolitenessDelay = 0
	return NewWikiSource(newTestFetcher(t, 0, nil), &cfg.Crawler, testLogger)
}

func TestTitlePath(t *testing.T) {
	tests := map[string]string{
		"Poland":         "Poland",
		"Lesser Poland":  "Lesser_Poland",
		" Kraków ":       "Krak%C3%B3w",
		"Poland/Mazovia": "Poland%2FMazovia",
		"Bielsko-Biała":  "Bielsko-Bia%C5%82a",
	}
	for in, want := range tests {
		if got := TitlePath(in); got != want {
			t.Errorf("TitlePath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestWikiSourceEndpoints(t *testing.T) {
	var (
		mu    sync.Mutex
		paths []string
	)
	src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.EscapedPath())
		mu.Unlock()
		w.Write([]byte("<html></html>"))
	})
	ctx := context.Background()

	if _, err := src.PageHTML(ctx, "Lesser Poland"); err != nil {
		t.Fatal(err)
	}
	if _, err := src.CanonicalHTML(ctx, "Lesser Poland"); err != nil {
		t.Fatal(err)
	}
	want := []string{"/api/rest_v1/page/html/Lesser_Poland", "/wiki/Lesser_Poland"}
	mu.Lock()
	defer mu.Unlock()
	if len(paths) != len(want) {
		t.Fatalf("paths = %v", paths)
	}
	for i := range want {
		if paths[i] != want[i] {
			t.Errorf("request %d path = %q, want %q", i, paths[i], want[i])
		}
	}
	if src.Name() != "wikivoyage_en" {
		t.Errorf("Name() = %q", src.Name())
	}
}

func TestWikiSourceSummary(t *testing.T) {
	src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"title":"Poland","extract":"Poland is a country in Central Europe.",
			"content_urls":{"desktop":{"page":"https://en.wikivoyage.org/wiki/Poland"}}}`))
	})
	sum, err := src.Summary(context.Background(), "Poland")
	if err != nil {
		t.Fatal(err)
	}
	if sum.Extract != "Poland is a country in Central Europe." {
		t.Errorf("Extract = %q", sum.Extract)
	}
	if sum.URL != "https://en.wikivoyage.org/wiki/Poland" {
		t.Errorf("URL = %q", sum.URL)
	}
}

func TestWikiSourceSummaryFallsBackToPageURL(t *testing.T) {
	src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"extract":"short"}`))
	})
	sum, err := src.Summary(context.Background(), "Gdańsk")
	if err != nil {
		t.Fatal(err)
	}
	if sum.Title != "Gdańsk" || !strings.HasSuffix(sum.URL, "/wiki/Gda%C5%84sk") {
		t.Errorf("summary = %+v", sum)
	}
}

func TestWikiSourceRejectsEmptyTitle(t *testing.T) {
	src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})
	if _, err := src.PageHTML(context.Background(), "  "); !errors.Is(err, types.ErrInvalidTitle) {
		t.Errorf("expected ErrInvalidTitle, got %v", err)
	}
}
