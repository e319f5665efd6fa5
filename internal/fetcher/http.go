package fetcher

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/cookiejar"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/andybalholm/brotli"
	"golang.org/x/time/rate"

	"github.com/IshaanNene/voyagegraph/internal/config"
	"github.com/IshaanNene/voyagegraph/internal/observability"
	"github.com/IshaanNene/voyagegraph/internal/types"
)

// HTTPFetcher implements Fetcher using net/http. Every request first waits
// on a shared politeness limiter.
type HTTPFetcher struct {
	client    *http.Client
	cfg       *config.FetcherConfig
	limiter   *rate.Limiter
	metrics   *observability.Metrics
	logger    *slog.Logger
	userAgent string
}

// NewHTTPFetcher creates a new HTTP fetcher. metrics may be nil.
func NewHTTPFetcher(cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) (*HTTPFetcher, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        cfg.Fetcher.MaxIdleConns,
		MaxIdleConnsPerHost: max(cfg.Fetcher.MaxIdleConns/2, 1),
		IdleConnTimeout:     cfg.Fetcher.IdleConnTimeout,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.Fetcher.TLSInsecure,
		},
		DisableCompression: true, // We handle decompression ourselves (including brotli)
	}

	maxRedirects := cfg.Fetcher.MaxRedirects
	client := &http.Client{
		Transport: transport,
		Jar:       jar,
		Timeout:   cfg.Fetcher.RequestTimeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("max redirects (%d) reached", maxRedirects)
			}
			return nil
		},
	}

	return &HTTPFetcher{
		client:    client,
		cfg:       &cfg.Fetcher,
		limiter:   NewLimiter(cfg.Crawler.PolitenessDelay),
		metrics:   metrics,
		logger:    logger.With("component", "http_fetcher"),
		userAgent: cfg.Fetcher.UserAgent,
	}, nil
}

// NewLimiter spaces requests by delay; zero or less means unlimited.
func NewLimiter(delay time.Duration) *rate.Limiter {
	if delay <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(delay), 1)
}

// Fetch executes an HTTP GET and returns the decoded response. Non-2xx
// statuses come back as *types.FetchError.
func (f *HTTPFetcher) Fetch(ctx context.Context, req Request) (*types.Response, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, &types.FetchError{URL: req.URL, Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, &types.FetchError{URL: req.URL, Err: err}
	}
	accept := req.Accept
	if accept == "" {
		accept = "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8"
	}
	if f.userAgent != "" {
		httpReq.Header.Set("User-Agent", f.userAgent)
	}
	httpReq.Header.Set("Accept", accept)
	httpReq.Header.Set("Accept-Encoding", "gzip, deflate, br")

	start := time.Now()
	httpResp, err := f.client.Do(httpReq)
	duration := time.Since(start)
	if err != nil {
		f.metrics.ObserveFetch(req.Kind, types.StatusClass(0), 0, duration)
		return nil, &types.FetchError{
			URL:       req.URL,
			Err:       err,
			Retryable: isRetryableError(err),
		}
	}
	defer httpResp.Body.Close()

	if err := statusError(req.URL, httpResp); err != nil {
		f.metrics.ObserveFetch(req.Kind, types.StatusClass(httpResp.StatusCode), 0, duration)
		return nil, err
	}

	reader, err := decompressReader(httpResp, httpResp.Body)
	if err != nil {
		return nil, &types.FetchError{URL: req.URL, StatusCode: httpResp.StatusCode, Err: err}
	}
	// One byte past the limit tells a full body from a truncated one.
	if f.cfg.MaxBodySize > 0 {
		reader = io.LimitReader(reader, f.cfg.MaxBodySize+1)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, &types.FetchError{URL: req.URL, StatusCode: httpResp.StatusCode, Err: err, Retryable: true}
	}
	if f.cfg.MaxBodySize > 0 && int64(len(body)) > f.cfg.MaxBodySize {
		f.metrics.ObserveFetch(req.Kind, types.StatusClass(httpResp.StatusCode), 0, duration)
		return nil, &types.FetchError{
			URL:        req.URL,
			StatusCode: httpResp.StatusCode,
			Err:        fmt.Errorf("%w: limit %d bytes", types.ErrBodyTooLarge, f.cfg.MaxBodySize),
		}
	}
	f.metrics.ObserveFetch(req.Kind, types.StatusClass(httpResp.StatusCode), len(body), duration)
	if len(body) == 0 {
		return nil, &types.FetchError{URL: req.URL, StatusCode: httpResp.StatusCode, Err: types.ErrEmptyResponse}
	}

	resp := types.NewResponse(req.URL, httpResp, body, duration)
	f.logger.Debug("fetch complete",
		"url", req.URL,
		"kind", req.Kind,
		"status", resp.StatusCode,
		"size", len(body),
		"duration", duration,
	)
	return resp, nil
}

// Close releases resources.
func (f *HTTPFetcher) Close() error {
	f.client.CloseIdleConnections()
	return nil
}

// statusError maps non-2xx responses to a FetchError.
func statusError(url string, resp *http.Response) error {
	code := resp.StatusCode
	if code >= 200 && code < 300 {
		return nil
	}
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	detail := strings.TrimSpace(string(snippet))

	switch {
	case code == http.StatusNotFound:
		return &types.FetchError{URL: url, StatusCode: code, Err: types.ErrNotFound}
	case code == http.StatusTooManyRequests:
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		return &types.FetchError{
			URL:        url,
			StatusCode: code,
			Err:        fmt.Errorf("HTTP 429: rate limited (retry after %s): %s", retryAfter, detail),
			Retryable:  true,
			RetryAfter: retryAfter,
		}
	default:
		return &types.FetchError{
			URL:        url,
			StatusCode: code,
			Err:        fmt.Errorf("HTTP %d: %s", code, detail),
			Retryable:  code >= 500,
		}
	}
}

// decompressReader wraps a reader with the appropriate decompressor.
// Handles gzip, deflate, and brotli (br) encodings.
func decompressReader(resp *http.Response, reader io.Reader) (io.Reader, error) {
	switch resp.Header.Get("Content-Encoding") {
	case "gzip":
		return gzip.NewReader(reader)
	case "deflate":
		return flate.NewReader(reader), nil
	case "br":
		return brotli.NewReader(reader), nil
	default:
		return reader, nil
	}
}

// isRetryableError checks if a network error is transient.
// Covers timeouts, connection resets, unexpected EOF, and connection refused.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if errors.Is(opErr.Err, syscall.ECONNRESET) ||
			errors.Is(opErr.Err, syscall.ECONNREFUSED) {
			return true
		}
	}
	return false
}

// parseRetryAfter parses the Retry-After header value.
// Supports both integer seconds and HTTP-date formats.
func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 5 * time.Second
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(header)); err == nil {
		if secs > 120 {
			secs = 120
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(header); err == nil {
		d := time.Until(t)
		if d < 0 {
			return time.Second
		}
		if d > 2*time.Minute {
			return 2 * time.Minute
		}
		return d
	}
	return 5 * time.Second
}
