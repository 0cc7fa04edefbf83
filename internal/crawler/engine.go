package crawler

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/deadlink/internal/model"
)

// task is one entry of the crawl worklist.
type task struct {
	url      string
	depth    int
	seed     bool
	external bool
}

// outcome is what a worker hands back to the coordinator.
type outcome struct {
	task task
	page *model.PageResult
}

// crawl is the state of a single Crawl call.
//
// Design decision: One coordinator goroutine owns the worklist and is the
// only writer of results and listener notifications because:
//  1. The listener sees one notification at a time, in completion order
//  2. With one worker the traversal is exactly the recursive DFS order
//  3. Workers only load and parse, so the registry is consulted in one place
type crawl struct {
	spider   *Spider
	ctx      context.Context
	registry *VisitedRegistry
	result   *model.CrawlResult
	target   string
	excludes []string

	// seedURL is exempt from robots.txt.
	seedURL string

	// dispatched counts internal loads, for maxPages.
	dispatched int

	// externals are the distinct external links seen so far.
	externals model.LinkSet
}

// run processes the worklist until it is empty and nothing is in flight.
// The worklist is a stack: the last pushed task is taken first.
func (c *crawl) run(stack []task) error {
	s := c.spider
	results := make(chan outcome)

	var g errgroup.Group
	g.SetLimit(s.workers)

	inflight := 0
	var stopErr error
	for {
		for stopErr == nil && inflight < s.workers && len(stack) > 0 {
			t := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			if err := c.ctx.Err(); err != nil {
				stopErr = err
				break
			}
			if !c.admit(t) {
				continue
			}

			inflight++
			g.Go(func() error {
				results <- outcome{task: t, page: c.visit(t)}
				return nil
			})
		}

		if inflight == 0 {
			break
		}

		o := <-results
		inflight--
		stack = c.complete(o, stack)
	}

	_ = g.Wait()
	return stopErr
}

// admit decides whether a task is dispatched. The registry check is the last
// step so that skipped URLs are never marked visited.
func (c *crawl) admit(t task) bool {
	s := c.spider
	if c.registry.Contains(t.url) {
		return false
	}
	if !t.external {
		if s.maxPages > 0 && c.dispatched >= s.maxPages {
			return false
		}
	}
	if !c.registry.TryMarkVisited(t.url) {
		return false
	}
	if !t.external {
		c.dispatched++
	}
	return true
}

// complete records a finished page and pushes its unvisited internal links.
func (c *crawl) complete(o outcome, stack []task) []task {
	s := c.spider
	page := o.page

	c.result.Record(page)
	if s.listener != nil {
		s.listener.OnPageVisited(page)
	}
	s.logger.Debug("page visited",
		"url", page.URL,
		"status", page.Status.String(),
		"attempts", page.Attempts,
		"links", len(page.OutboundLinks),
	)

	if page.Status != model.StatusOK || o.task.external {
		return stack
	}

	for _, l := range page.OutboundLinks {
		if c.isExternal(l.URL()) {
			c.result.AddExternal(l)
			c.externals.Add(l)
		}
	}

	if s.maxDepth > 0 && o.task.depth+1 > s.maxDepth {
		return stack
	}

	// Push in reverse so the first link on the page is explored first.
	links := page.OutboundLinks
	for i := len(links) - 1; i >= 0; i-- {
		u := links[i].URL()
		if c.isExternal(u) || c.registry.Contains(u) {
			continue
		}
		stack = append(stack, task{url: u, depth: o.task.depth + 1})
	}
	return stack
}

// visit loads one URL and builds its result. It runs on a worker goroutine
// and touches no shared state other than the loader and the registry, except
// for a seed redirect, which happens before any other task is dispatched.
func (c *crawl) visit(t task) *model.PageResult {
	content, state := c.load(t.url)

	page := &model.PageResult{
		URL:      t.url,
		Depth:    t.depth,
		External: t.external,
		Attempts: state.Attempt,
	}

	if state.LastErr != nil {
		page.Status = model.StatusDead
		page.Failure = state.LastKind
		page.StatusCode = model.StatusCodeOf(state.LastErr)
		page.Error = state.LastErr.Error()
		return page
	}

	page.Status = model.StatusOK
	page.StatusCode = content.StatusCode
	if c.spider.keepHTML {
		page.HTML = content.HTML
	}
	if !t.external {
		base := t.url
		if content.FinalURL != "" {
			base = content.FinalURL
			if t.seed {
				c.adoptSeedRedirect(base)
			}
		}
		page.OutboundLinks = c.extractLinks(base, content.Hrefs)
	}
	return page
}

// load runs the retry loop for one URL.
//
// In-flight loads are detached from cancellation: once a URL is dispatched it
// always reaches OK or DEAD, bounded by the per-attempt timeout.
func (c *crawl) load(url string) (*model.PageContent, model.RetryState) {
	s := c.spider
	ctx := context.WithoutCancel(c.ctx)
	host := HostOf(url)

	var state model.RetryState
	for {
		attempt := state.Attempt + 1
		_ = sleepContext(ctx, s.retry.BackoffDelay(attempt))
		_ = s.limiter.Wait(ctx, host)

		content, err := c.loadOnce(ctx, url)
		state.Record(err)
		if err == nil {
			return content, state
		}

		if !s.retry.ShouldRetry(state.LastKind, state.Attempt) {
			s.logger.Debug("load failed",
				"url", url,
				"kind", state.LastKind.String(),
				"attempts", state.Attempt,
				"error", err,
			)
			return nil, state
		}
		s.logger.Debug("load aborted, retrying", "url", url, "attempt", state.Attempt)
	}
}

func (c *crawl) loadOnce(ctx context.Context, url string) (*model.PageContent, error) {
	s := c.spider
	loadCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	content, err := s.loader.Load(loadCtx, url, s.timeout)
	if err != nil {
		var le *model.LoadError
		if !errors.As(err, &le) && errors.Is(loadCtx.Err(), context.DeadlineExceeded) {
			err = model.NewLoadError(model.FailureTimeout, err)
		}
		return nil, err
	}
	if content == nil {
		content = &model.PageContent{}
	}
	return content, nil
}

// extractLinks normalizes and deduplicates the hrefs of one page. Internal
// links that are excluded or disallowed by robots.txt are dropped here so
// they are never recorded. A bare "/" is dropped when the root was already
// visited.
func (c *crawl) extractLinks(base string, hrefs []string) []model.Link {
	s := c.spider
	var set model.LinkSet
	for _, href := range hrefs {
		u, ok := Normalize(href, base)
		if !ok {
			continue
		}
		if strings.TrimSpace(href) == "/" && c.registry.Contains(u) {
			continue
		}
		if !c.isExternal(u) {
			if c.isExcluded(u) {
				continue
			}
			if u != c.seedURL && s.robots != nil && !s.robots.Allowed(c.ctx, u) {
				s.logger.Debug("disallowed by robots.txt", "url", u)
				continue
			}
		}
		set.Add(model.NewLink(u))
	}
	return set.Links()
}

// adoptSeedRedirect moves a default target to the origin the seed redirected
// to, so an http to https hop does not turn every link external. It runs
// while the seed is the only task in flight.
func (c *crawl) adoptSeedRedirect(finalURL string) {
	s := c.spider
	if s.target != "" {
		return
	}
	final, ok := Normalize(finalURL, finalURL)
	if !ok {
		return
	}
	origin := Origin(final)
	if origin == "" || origin == c.target {
		return
	}

	s.logger.Info("seed redirected, adopting target", "from", c.target, "to", origin)
	c.target = origin
	c.excludes = resolvePrefixes(s.excludes, origin)
	c.result.Target = origin
	c.registry.TryMarkVisited(final)
}

// isExternal reports whether u lies outside the target domain.
func (c *crawl) isExternal(u string) bool {
	return !hasPrefixBoundary(u, c.target)
}

// isExcluded reports whether an internal URL matches an exclusion prefix or
// fails the ignore/follow patterns.
func (c *crawl) isExcluded(u string) bool {
	for _, p := range c.excludes {
		if hasPrefixBoundary(u, p) {
			return true
		}
	}
	return !c.spider.shouldCrawl(u)
}
