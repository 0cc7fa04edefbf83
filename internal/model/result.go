package model

import (
	"sync"
	"time"
)

// CrawlResult accumulates everything one crawl discovers.
//
// Design decision: All mutation is append-only and goes through a mutex
// because:
// 1. The worker-pool mode may record results from several goroutines
// 2. A URL is never re-classified once recorded, which keeps readers simple
// 3. Listeners may read the result while the crawl is still running
type CrawlResult struct {
	// Seed is the normalized seed URL.
	Seed string

	// Target is the target-domain prefix used to tell internal from external.
	Target string

	// StartedAt is when the crawl began.
	StartedAt time.Time

	// FinishedAt is when the crawl ended. Zero while the crawl is running.
	FinishedAt time.Time

	mu        sync.RWMutex
	pages     map[string]*PageResult
	order     []string
	dead      map[string]FailureKind
	deadOrder []string
	externals LinkSet
}

// NewCrawlResult creates an empty result for the given seed and target.
func NewCrawlResult(seed, target string) *CrawlResult {
	return &CrawlResult{
		Seed:      seed,
		Target:    target,
		StartedAt: time.Now(),
		pages:     make(map[string]*PageResult),
		dead:      make(map[string]FailureKind),
	}
}

// Record stores a resolved page. A URL that has already been recorded is
// left untouched and Record returns false.
func (r *CrawlResult) Record(p *PageResult) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.pages[p.URL]; ok {
		return false
	}
	r.pages[p.URL] = p
	r.order = append(r.order, p.URL)
	if p.Status == StatusDead {
		r.dead[p.URL] = p.Failure
		r.deadOrder = append(r.deadOrder, p.URL)
	}
	return true
}

// AddExternal records that an external link was referenced.
func (r *CrawlResult) AddExternal(l Link) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.externals.Add(l)
}

// Finish stamps the end time.
func (r *CrawlResult) Finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.FinishedAt = time.Now()
}

// Page returns the recorded result for url.
func (r *CrawlResult) Page(url string) (*PageResult, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.pages[url]
	return p, ok
}

// Pages returns every recorded page in completion order.
func (r *CrawlResult) Pages() []*PageResult {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*PageResult, 0, len(r.order))
	for _, u := range r.order {
		out = append(out, r.pages[u])
	}
	return out
}

// Len returns the number of recorded pages.
func (r *CrawlResult) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Graph returns the url → links map for every visited page that was expanded.
func (r *CrawlResult) Graph() map[string][]Link {
	r.mu.RLock()
	defer r.mu.RUnlock()

	graph := make(map[string][]Link)
	for _, u := range r.order {
		p := r.pages[u]
		if p.Status != StatusOK || p.External {
			continue
		}
		links := make([]Link, len(p.OutboundLinks))
		copy(links, p.OutboundLinks)
		graph[u] = links
	}
	return graph
}

// IsDead reports whether url was classified dead.
func (r *CrawlResult) IsDead(url string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.dead[url]
	return ok
}

// DeadURLs returns every URL classified dead, in the order it was found.
func (r *CrawlResult) DeadURLs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, len(r.deadOrder))
	copy(out, r.deadOrder)
	return out
}

// Externals returns one entry per referenced external URL.
// URLs that were checked carry their OK or DEAD result; the rest are
// reported as StatusExternalUnvisited.
func (r *CrawlResult) Externals() []*PageResult {
	r.mu.RLock()
	defer r.mu.RUnlock()

	links := r.externals.Links()
	out := make([]*PageResult, 0, len(links))
	for _, l := range links {
		if p, ok := r.pages[l.URL()]; ok {
			out = append(out, p)
			continue
		}
		out = append(out, &PageResult{
			URL:      l.URL(),
			Status:   StatusExternalUnvisited,
			External: true,
		})
	}
	return out
}

// PageDeadLinks groups the dead links referenced by one page.
type PageDeadLinks struct {
	Page  string `json:"page"`
	Links []Link `json:"links"`
}

// DeadLinksByPage re-scans every visited page's links against the dead set.
//
// Design decision: This runs after the crawl instead of while recording
// because a URL can be found dead from one page before other pages that
// reference it have been visited. Only pages with at least one dead link are
// returned, in visit order.
func (r *CrawlResult) DeadLinksByPage() []PageDeadLinks {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []PageDeadLinks
	for _, u := range r.order {
		p := r.pages[u]
		if p.Status != StatusOK {
			continue
		}
		var dead []Link
		for _, l := range p.OutboundLinks {
			if _, ok := r.dead[l.URL()]; ok {
				dead = append(dead, l)
			}
		}
		if len(dead) > 0 {
			out = append(out, PageDeadLinks{Page: u, Links: dead})
		}
	}
	return out
}
