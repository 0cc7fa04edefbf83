package crawler

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/nao1215/deadlink/internal/model"
)

// Spider walks a site depth-first and classifies every link it finds.
//
// Design decision: We call it "Spider" rather than "Crawler" because:
//  1. "Spider" is the traditional term for web crawlers
//  2. Distinguishes the component from the package name
//  3. Clearer in code: crawler.NewSpider() vs crawler.NewCrawler()
//
// A Spider holds configuration only. All per-crawl state lives in the
// registry and the result, so one Spider can run several crawls.
type Spider struct {
	// loader fetches pages. Required.
	loader PageLoader

	// retry governs backoff and retry-on-abort.
	retry RetryPolicy

	// timeout bounds each load attempt.
	timeout time.Duration

	// workers is the number of concurrent in-flight loads. 1 keeps the
	// traversal strictly depth-first.
	workers int

	// maxDepth limits the link distance from the seed. 0 means unlimited.
	maxDepth int

	// maxPages limits the number of internal pages loaded. 0 means unlimited.
	maxPages int

	// target is the target-domain prefix. Empty means the origin of the
	// seed's final URL after redirects.
	target string

	// excludes are URL prefixes that are neither visited nor recorded.
	excludes []string

	// ignorePatterns and followPatterns are glob filters on the URL path.
	ignorePatterns []string
	followPatterns []string

	// checkExternal enables the external-reachability pass.
	checkExternal bool

	// keepHTML retains page bodies in the result.
	keepHTML bool

	listener Listener
	robots   RobotsChecker
	limiter  *HostLimiter
	registry *VisitedRegistry
	logger   *slog.Logger
}

// SpiderOption configures a Spider.
type SpiderOption func(*Spider)

// WithRetryPolicy sets the retry budget and backoff base delay.
func WithRetryPolicy(p RetryPolicy) SpiderOption {
	return func(s *Spider) {
		s.retry = p
	}
}

// WithTimeout sets the per-attempt load timeout.
func WithTimeout(d time.Duration) SpiderOption {
	return func(s *Spider) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithWorkers sets the number of concurrent loads.
// With more than one worker the traversal order is best-effort depth-first.
func WithWorkers(n int) SpiderOption {
	return func(s *Spider) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithMaxDepth sets the maximum link distance from the seed (0 = unlimited).
func WithMaxDepth(depth int) SpiderOption {
	return func(s *Spider) {
		s.maxDepth = depth
	}
}

// WithMaxPages sets the maximum number of internal pages to load
// (0 = unlimited).
func WithMaxPages(maxPages int) SpiderOption {
	return func(s *Spider) {
		s.maxPages = maxPages
	}
}

// WithTarget sets the target-domain prefix that decides which links are
// internal. Root-relative values are resolved against the seed.
func WithTarget(target string) SpiderOption {
	return func(s *Spider) {
		s.target = target
	}
}

// WithExcludePrefixes sets URL prefixes to skip entirely. Root-relative
// prefixes ("/api-docs") are resolved against the target origin. Prefixes are
// normalized and match only at a path boundary, so "/api" does not exclude
// "/apidocs".
func WithExcludePrefixes(prefixes []string) SpiderOption {
	return func(s *Spider) {
		s.excludes = prefixes
	}
}

// WithIgnorePatterns sets URL path patterns to skip during crawling.
// Patterns use glob syntax (e.g., "/admin/*", "*.pdf", "/logout*").
func WithIgnorePatterns(patterns []string) SpiderOption {
	return func(s *Spider) {
		s.ignorePatterns = patterns
	}
}

// WithFollowPatterns sets URL path patterns to follow during crawling.
// If set, only internal URLs matching at least one pattern are crawled.
func WithFollowPatterns(patterns []string) SpiderOption {
	return func(s *Spider) {
		s.followPatterns = patterns
	}
}

// WithCheckExternal enables a final pass that loads each referenced external
// URL once to classify it OK or DEAD. External pages are never expanded.
func WithCheckExternal(enabled bool) SpiderOption {
	return func(s *Spider) {
		s.checkExternal = enabled
	}
}

// WithKeepHTML controls whether page bodies are kept in the result.
func WithKeepHTML(keep bool) SpiderOption {
	return func(s *Spider) {
		s.keepHTML = keep
	}
}

// WithListener sets the per-page listener.
func WithListener(l Listener) SpiderOption {
	return func(s *Spider) {
		s.listener = l
	}
}

// WithRobots sets the robots.txt checker used for internal URLs.
func WithRobots(r RobotsChecker) SpiderOption {
	return func(s *Spider) {
		s.robots = r
	}
}

// WithHostLimiter sets the per-host request spacing.
func WithHostLimiter(l *HostLimiter) SpiderOption {
	return func(s *Spider) {
		s.limiter = l
	}
}

// WithRegistry makes the spider use the given registry instead of creating a
// fresh one per crawl. The caller owns it and may inspect it afterwards.
func WithRegistry(r *VisitedRegistry) SpiderOption {
	return func(s *Spider) {
		s.registry = r
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) SpiderOption {
	return func(s *Spider) {
		s.logger = logger
	}
}

// NewSpider creates a new Spider that loads pages with loader.
//
// Design decision: We require an external loader because:
//  1. HTTP fetching and headless rendering are interchangeable
//  2. Proxy and header configuration stay out of the traversal logic
//  3. Tests can drive the traversal with in-memory link graphs
func NewSpider(loader PageLoader, opts ...SpiderOption) *Spider {
	s := &Spider{
		loader:   loader,
		retry:    DefaultRetryPolicy(),
		timeout:  DefaultLoadTimeout,
		workers:  1,
		keepHTML: true,
		logger:   slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.limiter == nil {
		s.limiter = NewHostLimiter(s.retry.BaseDelay, 0)
	}
	return s
}

// Crawl visits every page reachable from seed inside the target domain.
//
// The returned result is never nil once the seed has been accepted. The
// error is non-nil when the seed is invalid, when the seed itself is dead
// (ErrSeedUnreachable), or when ctx was cancelled; in the latter two cases
// the partial result is returned with it.
func (s *Spider) Crawl(ctx context.Context, seed string) (*model.CrawlResult, error) {
	if s.loader == nil {
		return nil, ErrNoLoader
	}

	seedURL, ok := Normalize(seed, seed)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSeed, seed)
	}

	target := Origin(seedURL)
	if s.target != "" {
		t, ok := Normalize(s.target, seedURL)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrInvalidTarget, s.target)
		}
		target = t
	}

	registry := s.registry
	if registry == nil {
		registry = NewVisitedRegistry()
	}

	c := &crawl{
		spider:   s,
		ctx:      ctx,
		registry: registry,
		result:   model.NewCrawlResult(seedURL, target),
		target:   target,
		excludes: resolvePrefixes(s.excludes, Origin(target)),
		seedURL:  seedURL,
	}

	s.logger.Info("crawl started", "seed", seedURL, "target", target, "workers", s.workers)

	if err := c.run([]task{{url: seedURL, seed: true}}); err != nil {
		c.result.Finish()
		return c.result, err
	}

	if page, ok := c.result.Page(seedURL); ok && page.IsDead() {
		c.result.Finish()
		return c.result, fmt.Errorf("%w: %s: %s", ErrSeedUnreachable, seedURL, page.Error)
	}

	if s.checkExternal && c.externals.Len() > 0 {
		links := c.externals.Links()
		tasks := make([]task, 0, len(links))
		for i := len(links) - 1; i >= 0; i-- {
			tasks = append(tasks, task{url: links[i].URL(), external: true})
		}
		if err := c.run(tasks); err != nil {
			c.result.Finish()
			return c.result, err
		}
	}

	c.result.Finish()
	s.logger.Info("crawl finished",
		"seed", seedURL,
		"pages", c.result.Len(),
		"dead", len(c.result.DeadURLs()),
	)
	return c.result, nil
}

// resolvePrefixes turns exclusion prefixes into normalized absolute URLs so
// they compare like visited keys. Root-relative prefixes resolve against
// origin. A prefix that does not normalize is kept as written.
func resolvePrefixes(prefixes []string, origin string) []string {
	out := make([]string, 0, len(prefixes))
	for _, p := range prefixes {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if n, ok := Normalize(p, origin); ok {
			p = n
		}
		out = append(out, p)
	}
	return out
}

// shouldCrawl checks if a URL should be crawled based on ignore/follow patterns.
//
// Logic:
//  1. If URL matches any ignorePattern, skip it (return false)
//  2. If followPatterns is set and URL matches none, skip it (return false)
//  3. Otherwise, crawl it (return true)
func (s *Spider) shouldCrawl(targetURL string) bool {
	if len(s.ignorePatterns) == 0 && len(s.followPatterns) == 0 {
		return true
	}

	u, err := url.Parse(targetURL)
	if err != nil {
		return false
	}

	path := u.Path
	if path == "" {
		path = "/"
	}

	for _, pattern := range s.ignorePatterns {
		if matchPattern(pattern, path) {
			return false
		}
	}

	if len(s.followPatterns) > 0 {
		for _, pattern := range s.followPatterns {
			if matchPattern(pattern, path) {
				return true
			}
		}
		return false
	}

	return true
}

// matchPattern checks if a path matches a glob pattern.
// Patterns can use:
//   - * to match any sequence of non-separator characters
//   - ? to match any single character
//
// Examples:
//   - "/admin/*" matches "/admin/dashboard", "/admin/users"
//   - "*.pdf" matches "/docs/file.pdf"
//   - "/api/v?" matches "/api/v1", "/api/v2"
func matchPattern(pattern, path string) bool {
	if strings.HasSuffix(pattern, "/*") {
		prefix := strings.TrimSuffix(pattern, "/*")
		if strings.HasPrefix(path, prefix+"/") || path == prefix {
			return true
		}
	}

	if strings.HasPrefix(pattern, "*.") {
		if strings.HasSuffix(path, strings.TrimPrefix(pattern, "*")) {
			return true
		}
	}

	if matched, err := filepath.Match(pattern, path); err == nil && matched {
		return true
	}

	// Bare filename patterns such as "report-*.html" match the last segment.
	if strings.Contains(pattern, "*") && !strings.Contains(pattern, "/") {
		if matched, err := filepath.Match(pattern, filepath.Base(path)); err == nil && matched {
			return true
		}
	}

	return false
}
