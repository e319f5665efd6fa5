package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics tracks operational metrics for the crawler. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	FetchRequests  *prometheus.CounterVec
	FetchDuration  *prometheus.HistogramVec
	BytesFetched   prometheus.Counter
	PagesTotal     *prometheus.CounterVec
	PersistErrors  prometheus.Counter
	GraphMerged    *prometheus.CounterVec
	VisitedPages   prometheus.Gauge
	CountriesFound prometheus.Counter

	gatherer prometheus.Gatherer
	logger   *slog.Logger
}

// NewMetrics creates the collectors and registers them on reg. Passing a
// fresh prometheus.NewRegistry() keeps tests isolated from the default one.
func NewMetrics(reg *prometheus.Registry, logger *slog.Logger) *Metrics {
	m := &Metrics{
		FetchRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voyagegraph_fetch_requests_total",
				Help: "Upstream requests by resource kind and status class",
			},
			[]string{"kind", "status"},
		),
		FetchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "voyagegraph_fetch_duration_seconds",
				Help:    "Upstream request latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind"},
		),
		BytesFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "voyagegraph_bytes_fetched_total",
			Help: "Decoded response bytes received",
		}),
		PagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voyagegraph_pages_total",
				Help: "Pages by terminal traversal state",
			},
			[]string{"state"},
		),
		PersistErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "voyagegraph_persist_errors_total",
			Help: "Page artifact writes that failed",
		}),
		GraphMerged: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voyagegraph_graph_merged_total",
				Help: "Nodes and edges added to the global graph, and dangling edges dropped",
			},
			[]string{"kind"},
		),
		VisitedPages: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "voyagegraph_visited_pages",
			Help: "Pages in the current run's visited set",
		}),
		CountriesFound: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "voyagegraph_countries_detected_total",
			Help: "Distinct countries detected per run",
		}),
		gatherer: reg,
		logger:   logger.With("component", "metrics"),
	}
	reg.MustRegister(
		m.FetchRequests,
		m.FetchDuration,
		m.BytesFetched,
		m.PagesTotal,
		m.PersistErrors,
		m.GraphMerged,
		m.VisitedPages,
		m.CountriesFound,
	)
	return m
}

// ObserveFetch records one upstream request.
func (m *Metrics) ObserveFetch(kind, status string, size int, d time.Duration) {
	if m == nil {
		return
	}
	m.FetchRequests.WithLabelValues(kind, status).Inc()
	m.FetchDuration.WithLabelValues(kind).Observe(d.Seconds())
	if size > 0 {
		m.BytesFetched.Add(float64(size))
	}
}

// PageDone records a page reaching a terminal state.
func (m *Metrics) PageDone(state string) {
	if m == nil {
		return
	}
	m.PagesTotal.WithLabelValues(state).Inc()
}

// PersistFailed records a failed artifact write.
func (m *Metrics) PersistFailed() {
	if m == nil {
		return
	}
	m.PersistErrors.Inc()
}

// Merged records a global graph merge.
func (m *Metrics) Merged(nodes, edges, dangling int) {
	if m == nil {
		return
	}
	m.GraphMerged.WithLabelValues("nodes").Add(float64(nodes))
	m.GraphMerged.WithLabelValues("edges").Add(float64(edges))
	m.GraphMerged.WithLabelValues("dangling").Add(float64(dangling))
}

// SetVisited publishes the visited set size.
func (m *Metrics) SetVisited(n int) {
	if m == nil {
		return
	}
	m.VisitedPages.Set(float64(n))
}

// CountryDetected records a newly detected country.
func (m *Metrics) CountryDetected() {
	if m == nil {
		return
	}
	m.CountriesFound.Inc()
}

// Handler serves the registered metrics in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Serve runs the metrics server until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, port int, path string) error {
	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	m.logger.Info("metrics server starting", "addr", srv.Addr, "path", path)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
