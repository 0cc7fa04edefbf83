package loader

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/andybalholm/brotli"

	"github.com/nao1215/deadlink/internal/crawler"
	"github.com/nao1215/deadlink/internal/model"
)

// maxRedirects is the redirect chain length after which a link is dead.
const maxRedirects = 10

// errTooManyRedirects is returned by CheckRedirect.
var errTooManyRedirects = fmt.Errorf("stopped after %d redirects", maxRedirects)

// DialContextFunc matches http.Transport.DialContext.
type DialContextFunc func(ctx context.Context, network, address string) (net.Conn, error)

// HTTPLoader loads pages with a plain HTTP client and scans the returned
// HTML for anchors.
type HTTPLoader struct {
	client      *http.Client
	userAgent   string
	cookie      string
	headers     map[string]string
	maxBodySize int64
	dial        DialContextFunc
	insecureTLS bool
	logger      *slog.Logger
}

// HTTPOption configures an HTTPLoader.
type HTTPOption func(*HTTPLoader)

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) HTTPOption {
	return func(l *HTTPLoader) {
		l.userAgent = ua
	}
}

// WithCookie sets a raw Cookie header ("a=1; b=2") sent with every request.
func WithCookie(cookie string) HTTPOption {
	return func(l *HTTPLoader) {
		l.cookie = cookie
	}
}

// WithHeaders sets extra request headers.
func WithHeaders(headers map[string]string) HTTPOption {
	return func(l *HTTPLoader) {
		l.headers = make(map[string]string, len(headers))
		for k, v := range headers {
			l.headers[k] = v
		}
	}
}

// WithMaxBodySize limits how many bytes of a body are parsed.
func WithMaxBodySize(size int64) HTTPOption {
	return func(l *HTTPLoader) {
		if size > 0 {
			l.maxBodySize = size
		}
	}
}

// WithDialContext routes connections through dial, e.g. a SOCKS5 proxy.
func WithDialContext(dial DialContextFunc) HTTPOption {
	return func(l *HTTPLoader) {
		l.dial = dial
	}
}

// WithInsecureTLS disables certificate verification. Onion services often
// serve self-signed certificates; the onion address authenticates them.
func WithInsecureTLS(insecure bool) HTTPOption {
	return func(l *HTTPLoader) {
		l.insecureTLS = insecure
	}
}

// WithHTTPClient replaces the client built by NewHTTPLoader.
// Dial and TLS options are ignored when a client is supplied.
func WithHTTPClient(client *http.Client) HTTPOption {
	return func(l *HTTPLoader) {
		l.client = client
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) HTTPOption {
	return func(l *HTTPLoader) {
		l.logger = logger
	}
}

// NewHTTPLoader creates an HTTP page loader.
//
// Design decisions:
//   - A cookie jar keeps sessions across pages of one site
//   - Compression is negotiated by hand so brotli can be decoded too
//   - The per-request timeout comes from Load, not from the client
func NewHTTPLoader(opts ...HTTPOption) *HTTPLoader {
	l := &HTTPLoader{
		maxBodySize: 5 * 1024 * 1024,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}

	if l.client == nil {
		transport := &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			TLSHandshakeTimeout:   10 * time.Second,
			MaxIdleConns:          20,
			MaxIdleConnsPerHost:   4,
			IdleConnTimeout:       90 * time.Second,
			ExpectContinueTimeout: time.Second,
			DisableCompression:    true,
		}
		if l.dial != nil {
			transport.Proxy = nil
			transport.DialContext = l.dial
		} else {
			transport.DialContext = (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext
		}
		if l.insecureTLS {
			transport.TLSClientConfig = &tls.Config{
				InsecureSkipVerify: true, //nolint:gosec // opt-in for onion services
			}
		}

		jar, _ := cookiejar.New(nil) //nolint:errcheck // cookiejar.New only fails with invalid options
		l.client = &http.Client{
			Transport: transport,
			Jar:       jar,
		}
	}

	if l.client.CheckRedirect == nil {
		l.client.CheckRedirect = func(_ *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return errTooManyRedirects
			}
			return nil
		}
	}
	return l
}

// Client returns the underlying HTTP client, e.g. for robots.txt fetches.
func (l *HTTPLoader) Client() *http.Client {
	return l.client
}

// Load fetches rawURL and extracts the anchors of the main document.
func (l *HTTPLoader) Load(ctx context.Context, rawURL string, timeout time.Duration) (*model.PageContent, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, model.NewLoadError(model.FailureNetwork, err)
	}
	l.setHeaders(req)

	resp, err := l.client.Do(req)
	if err != nil {
		if errors.Is(err, errTooManyRedirects) {
			return nil, model.NewLoadError(model.FailureNetwork, err)
		}
		return nil, classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
		return nil, classifyStatus(resp.StatusCode)
	}

	content := &model.PageContent{
		StatusCode: resp.StatusCode,
		FinalURL:   rawURL,
		Hrefs:      []string{},
	}
	if resp.Request != nil && resp.Request.URL != nil {
		content.FinalURL = resp.Request.URL.String()
	}

	if !isHTML(resp.Header.Get("Content-Type")) {
		return content, nil
	}

	body, err := l.readBody(resp)
	if err != nil {
		return nil, classifyError(err)
	}
	content.HTML = string(body)

	doc, err := crawler.ParseDocument(bytes.NewReader(body))
	if err != nil {
		l.logger.Debug("failed to parse HTML", "url", rawURL, "error", err)
		return content, nil
	}
	content.Hrefs = applyBase(doc.Hrefs, doc.BaseHref, content.FinalURL)
	return content, nil
}

func (l *HTTPLoader) setHeaders(req *http.Request) {
	if l.userAgent != "" {
		req.Header.Set("User-Agent", l.userAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.8")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")
	if l.cookie != "" {
		req.Header.Set("Cookie", l.cookie)
	}
	for k, v := range l.headers {
		req.Header.Set(k, v)
	}
}

// readBody decodes the body and truncates it at maxBodySize. Anchors beyond
// the limit are lost, which is preferable to failing the page.
func (l *HTTPLoader) readBody(resp *http.Response) ([]byte, error) {
	reader := io.Reader(resp.Body)

	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip decode: %w", err)
		}
		defer gz.Close()
		reader = gz
	case "br":
		reader = brotli.NewReader(resp.Body)
	case "deflate":
		fl := flate.NewReader(resp.Body)
		defer fl.Close()
		reader = fl
	}

	body, err := io.ReadAll(io.LimitReader(reader, l.maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

// isHTML reports whether a Content-Type denotes an HTML document. A missing
// Content-Type is treated as HTML.
func isHTML(contentType string) bool {
	if contentType == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.Contains(strings.ToLower(contentType), "html")
	}
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}

// applyBase resolves relative hrefs against a <base href>. Fragment-only and
// empty hrefs are left alone so the normalizer still rejects them.
func applyBase(hrefs []string, baseHref, pageURL string) []string {
	if baseHref == "" {
		return hrefs
	}
	page, err := url.Parse(pageURL)
	if err != nil {
		return hrefs
	}
	baseRef, err := url.Parse(baseHref)
	if err != nil {
		return hrefs
	}
	base := page.ResolveReference(baseRef)

	out := make([]string, len(hrefs))
	for i, h := range hrefs {
		out[i] = h
		trimmed := strings.TrimSpace(h)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		ref, err := url.Parse(trimmed)
		if err != nil || ref.IsAbs() {
			continue
		}
		out[i] = base.ResolveReference(ref).String()
	}
	return out
}
