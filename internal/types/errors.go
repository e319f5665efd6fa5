package types

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for common failure modes.
var (
	ErrNotFound         = errors.New("page not found")
	ErrEmptyResponse    = errors.New("empty response body")
	ErrBodyTooLarge     = errors.New("response body exceeds size limit")
	ErrInvalidTitle     = errors.New("invalid page title")
	ErrInvalidConfig    = errors.New("invalid configuration")
	ErrRootUnavailable  = errors.New("root page unavailable")
	ErrCrawlStopped     = errors.New("crawl has been stopped")
	ErrGraphCorrupted   = errors.New("global graph file is corrupted")
	ErrSinkUnconfigured = errors.New("graph sink not configured")
)

// FetchError wraps errors that occur during fetching.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
	Retryable  bool
	RetryAfter time.Duration // populated from Retry-After header on HTTP 429
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch error for %s (status %d): %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch error for %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) IsRetryable() bool { return e.Retryable }

// ParseError wraps errors that occur while reading a page.
type ParseError struct {
	Page  string
	Stage string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error for %s (stage=%q): %v", e.Page, e.Stage, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// StorageError wraps errors that occur during persistence.
type StorageError struct {
	Backend string
	Path    string
	Err     error
}

func (e *StorageError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("storage error (%s) at %s: %v", e.Backend, e.Path, e.Err)
	}
	return fmt.Sprintf("storage error (%s): %v", e.Backend, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
