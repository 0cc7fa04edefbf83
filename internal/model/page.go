package model

import (
	"errors"
	"fmt"
)

// PageContent is what a page loader hands back for a successful load.
//
// Design decision: Hrefs are the raw attribute values, not normalized URLs,
// because:
// 1. Loaders stay simple and need no knowledge of the crawl's canonical form
// 2. Normalization must be identical for every loader (HTTP or browser)
// 3. Tests can feed arbitrary hrefs through a stub loader
type PageContent struct {
	// HTML is the fetched or rendered document.
	HTML string

	// Hrefs are the raw href values of the anchors in the main document.
	// Anchors inside iframes or other embedded documents are not included.
	Hrefs []string

	// StatusCode is the HTTP status of the main document, if known.
	StatusCode int

	// FinalURL is the URL after redirects, if known.
	FinalURL string
}

// LoadError is a typed page loader failure.
type LoadError struct {
	// Kind is the failure classification used by the retry policy.
	Kind FailureKind

	// StatusCode is the HTTP status that caused the failure, or 0.
	StatusCode int

	// Err is the underlying cause.
	Err error
}

// NewLoadError creates a LoadError of the given kind.
func NewLoadError(kind FailureKind, err error) *LoadError {
	return &LoadError{Kind: kind, Err: err}
}

// Error implements the error interface.
func (e *LoadError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("%s (HTTP %d): %v", e.Kind, e.StatusCode, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s (HTTP %d)", e.Kind, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return e.Kind.String()
	}
}

// Unwrap returns the underlying cause.
func (e *LoadError) Unwrap() error {
	return e.Err
}

// KindOf extracts the failure kind from err.
// Errors that are not a *LoadError count as FailureNetwork; a nil error is
// FailureNone.
func KindOf(err error) FailureKind {
	if err == nil {
		return FailureNone
	}
	var le *LoadError
	if errors.As(err, &le) {
		return le.Kind
	}
	return FailureNetwork
}

// StatusCodeOf extracts the HTTP status code carried by a *LoadError.
func StatusCodeOf(err error) int {
	var le *LoadError
	if errors.As(err, &le) {
		return le.StatusCode
	}
	return 0
}

// PageResult is the outcome of resolving one URL.
// It is created once by the crawler and never modified afterwards.
type PageResult struct {
	// URL is the normalized URL that was requested.
	URL string `json:"url"`

	// Status is the terminal classification.
	Status Status `json:"status"`

	// HTML is the document body. Present only when Status is StatusOK.
	// Excluded from JSON to keep reports small.
	HTML string `json:"-"`

	// OutboundLinks are the distinct normalized links found on the page,
	// in document order. Present only when Status is StatusOK and the page
	// was expanded.
	OutboundLinks []Link `json:"outbound_links,omitempty"`

	// Attempts is the number of load attempts made.
	Attempts int `json:"attempts,omitempty"`

	// Failure is the kind of the last failure for dead pages.
	Failure FailureKind `json:"failure,omitempty"`

	// StatusCode is the HTTP status of the last response, if known.
	StatusCode int `json:"status_code,omitempty"`

	// Error is a human-readable description of the last failure.
	Error string `json:"error,omitempty"`

	// External is true for URLs outside the target domain.
	External bool `json:"external,omitempty"`

	// Depth is the link distance from the seed.
	Depth int `json:"depth"`
}

// IsDead reports whether the page was classified dead.
func (p *PageResult) IsDead() bool {
	return p.Status == StatusDead
}

// RetryState tracks the load attempts for a single URL.
// It only lives for the duration of one URL's resolution.
type RetryState struct {
	Attempt  int
	LastKind FailureKind
	LastErr  error
}

// Record notes the outcome of one attempt.
func (s *RetryState) Record(err error) {
	s.Attempt++
	s.LastErr = err
	s.LastKind = KindOf(err)
}
