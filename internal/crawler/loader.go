package crawler

import (
	"context"
	"time"

	"github.com/nao1215/deadlink/internal/model"
)

// PageLoader fetches or renders one URL.
//
// Load blocks until the page is loaded, fails, or the timeout expires.
// Failures are returned as *model.LoadError so the retry policy can tell
// aborts from terminal errors; any other error counts as a network error.
// The returned hrefs must come from the main document only.
type PageLoader interface {
	Load(ctx context.Context, url string, timeout time.Duration) (*model.PageContent, error)
}

// PageLoaderFunc adapts a function to the PageLoader interface.
type PageLoaderFunc func(ctx context.Context, url string, timeout time.Duration) (*model.PageContent, error)

// Load calls f(ctx, url, timeout).
func (f PageLoaderFunc) Load(ctx context.Context, url string, timeout time.Duration) (*model.PageContent, error) {
	return f(ctx, url, timeout)
}
