package loader

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/nao1215/deadlink/internal/model"
)

// hrefsScript collects the href attribute of every anchor in the main
// document after scripts have run. Anchors whose attribute cannot be read
// are skipped rather than failing the page.
const hrefsScript = `(() => {
  const out = [];
  for (const a of document.querySelectorAll('a[href], area[href]')) {
    try {
      const h = a.getAttribute('href');
      if (h !== null) { out.push(h); }
    } catch (e) {}
  }
  return out;
})()`

// statusScript reads the HTTP status of the main document from the
// navigation timing entry. Browsers that do not expose it yield 0.
const statusScript = `(() => {
  try {
    const nav = performance.getEntriesByType('navigation')[0];
    return nav && nav.responseStatus ? nav.responseStatus : 0;
  } catch (e) { return 0; }
})()`

// BrowserLoader loads pages in headless Chrome so anchors inserted by
// JavaScript are discovered too.
//
// Design decision: One browser process is shared and each Load opens a new
// tab because:
//  1. Starting Chrome costs far more than opening a tab
//  2. Tabs are isolated enough for concurrent workers
//  3. Closing the tab releases the page's memory immediately
type BrowserLoader struct {
	userAgent   string
	proxyAddr   string
	maxBodySize int64
	headless    bool
	logger      *slog.Logger

	mu          sync.Mutex
	allocCtx    context.Context
	allocCancel context.CancelFunc
	browserCtx  context.Context
	browserStop context.CancelFunc
}

// BrowserOption configures a BrowserLoader.
type BrowserOption func(*BrowserLoader)

// WithBrowserUserAgent sets the User-Agent Chrome sends.
func WithBrowserUserAgent(ua string) BrowserOption {
	return func(b *BrowserLoader) {
		b.userAgent = ua
	}
}

// WithBrowserProxy routes Chrome through a SOCKS5 proxy at host:port.
func WithBrowserProxy(addr string) BrowserOption {
	return func(b *BrowserLoader) {
		b.proxyAddr = addr
	}
}

// WithBrowserMaxBodySize truncates captured HTML.
func WithBrowserMaxBodySize(size int64) BrowserOption {
	return func(b *BrowserLoader) {
		if size > 0 {
			b.maxBodySize = size
		}
	}
}

// WithHeadful shows the browser window. Useful for debugging only.
func WithHeadful() BrowserOption {
	return func(b *BrowserLoader) {
		b.headless = false
	}
}

// WithBrowserLogger sets the logger.
func WithBrowserLogger(logger *slog.Logger) BrowserOption {
	return func(b *BrowserLoader) {
		b.logger = logger
	}
}

// NewBrowserLoader creates a loader. Chrome is started lazily on the first
// Load; call Close to stop it.
func NewBrowserLoader(opts ...BrowserOption) *BrowserLoader {
	b := &BrowserLoader{
		maxBodySize: 5 * 1024 * 1024,
		headless:    true,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// execOptions returns the Chrome command line options.
func (b *BrowserLoader) execOptions() []chromedp.ExecAllocatorOption {
	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.Flag("headless", b.headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-sandbox", true),
	}
	if ua := strings.TrimSpace(b.userAgent); ua != "" {
		opts = append(opts, chromedp.UserAgent(ua))
	}
	if b.proxyAddr != "" {
		opts = append(opts, chromedp.ProxyServer("socks5://"+b.proxyAddr))
	}
	return opts
}

// browser returns the shared browser context, starting Chrome if needed.
func (b *BrowserLoader) browser() (context.Context, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.browserCtx != nil {
		return b.browserCtx, nil
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), b.execOptions()...)
	browserCtx, browserStop := chromedp.NewContext(allocCtx)
	// Running an empty action list launches the process.
	if err := chromedp.Run(browserCtx); err != nil {
		browserStop()
		allocCancel()
		return nil, err
	}

	b.allocCtx, b.allocCancel = allocCtx, allocCancel
	b.browserCtx, b.browserStop = browserCtx, browserStop
	b.logger.Debug("headless browser started", "proxy", b.proxyAddr != "")
	return browserCtx, nil
}

// Load opens rawURL in a new tab, waits for the document to finish loading
// and reads the anchors of the resulting DOM.
func (b *BrowserLoader) Load(ctx context.Context, rawURL string, timeout time.Duration) (*model.PageContent, error) {
	browserCtx, err := b.browser()
	if err != nil {
		return nil, model.NewLoadError(model.FailureNetwork, err)
	}

	tabCtx, closeTab := chromedp.NewContext(browserCtx)
	defer closeTab()

	// The tab context descends from the browser, so the caller's deadline
	// and cancellation are linked in separately.
	if timeout > 0 {
		var cancel context.CancelFunc
		tabCtx, cancel = context.WithTimeout(tabCtx, timeout)
		defer cancel()
	}
	stop := context.AfterFunc(ctx, closeTab)
	defer stop()

	var (
		html     string
		hrefs    []string
		status   int64
		finalURL string
	)
	err = chromedp.Run(tabCtx,
		chromedp.Navigate(rawURL),
		waitForDocumentReady(),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
		chromedp.Evaluate(hrefsScript, &hrefs),
		chromedp.Evaluate(statusScript, &status),
		chromedp.Location(&finalURL),
	)
	if err != nil {
		return nil, classifyBrowserError(err)
	}

	if status >= 400 {
		return nil, classifyStatus(int(status))
	}
	if status == 0 {
		status = 200
	}
	if int64(len(html)) > b.maxBodySize {
		html = html[:b.maxBodySize]
	}
	if finalURL == "" {
		finalURL = rawURL
	}
	if hrefs == nil {
		hrefs = []string{}
	}

	return &model.PageContent{
		HTML:       html,
		Hrefs:      hrefs,
		StatusCode: int(status),
		FinalURL:   finalURL,
	}, nil
}

// Close stops the browser. Load may be called again afterwards and will
// start a new one.
func (b *BrowserLoader) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.browserStop != nil {
		b.browserStop()
		b.allocCancel()
	}
	b.allocCtx, b.allocCancel = nil, nil
	b.browserCtx, b.browserStop = nil, nil
	return nil
}

// waitForDocumentReady polls document.readyState until the load event fired.
func waitForDocumentReady() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			var readyState string
			if err := chromedp.Evaluate(`document.readyState`, &readyState).Do(ctx); err != nil {
				return err
			}
			if readyState == "complete" {
				return nil
			}
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	})
}
