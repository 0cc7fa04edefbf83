package loader

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"

	"github.com/nao1215/deadlink/internal/model"
)

// classifyError maps a transport error onto the crawler's failure kinds.
//
// Design decision: Connection resets and truncated responses count as
// aborts because:
//  1. Servers that throttle crawlers commonly drop the connection mid-request
//  2. The same request usually succeeds after a pause
//  3. Browsers report these cases as ERR_ABORTED or ERR_CONNECTION_RESET
func classifyError(err error) *model.LoadError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return model.NewLoadError(model.FailureTimeout, err)
	case errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNABORTED),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, io.EOF):
		return model.NewLoadError(model.FailureAborted, err)
	}

	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return model.NewLoadError(model.FailureTimeout, err)
	}
	return model.NewLoadError(model.FailureNetwork, err)
}

// classifyStatus maps an HTTP error status onto a failure kind.
// 429 and 503 are how servers ask clients to slow down.
func classifyStatus(code int) *model.LoadError {
	kind := model.FailureNetwork
	if code == http.StatusTooManyRequests || code == http.StatusServiceUnavailable {
		kind = model.FailureAborted
	}
	return &model.LoadError{Kind: kind, StatusCode: code}
}

// classifyBrowserError maps a Chrome network error onto a failure kind.
func classifyBrowserError(err error) *model.LoadError {
	msg := err.Error()
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		strings.Contains(msg, "net::ERR_TIMED_OUT"),
		strings.Contains(msg, "net::ERR_CONNECTION_TIMED_OUT"):
		return model.NewLoadError(model.FailureTimeout, err)
	case strings.Contains(msg, "net::ERR_ABORTED"),
		strings.Contains(msg, "net::ERR_CONNECTION_RESET"),
		strings.Contains(msg, "net::ERR_EMPTY_RESPONSE"):
		return model.NewLoadError(model.FailureAborted, err)
	default:
		return model.NewLoadError(model.FailureNetwork, err)
	}
}
