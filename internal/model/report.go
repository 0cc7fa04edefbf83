package model

import (
	"time"
)

// Report is the caller-facing summary of a crawl.
// It is built once from a CrawlResult and is safe to serialize as JSON.
type Report struct {
	// Seed is the normalized seed URL.
	Seed string `json:"seed"`

	// Target is the target-domain prefix.
	Target string `json:"target"`

	// StartedAt and FinishedAt bound the crawl.
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	// Summary holds the aggregate counters.
	Summary Summary `json:"summary"`

	// DeadLinks lists, for each visited page, the outbound links that
	// resolved dead.
	DeadLinks []PageDeadLinkReport `json:"dead_links"`

	// DeadURLs is every URL classified dead, with its failure details.
	DeadURLs []DeadLink `json:"dead_urls"`

	// Externals lists every referenced external URL and its classification.
	Externals []*PageResult `json:"externals,omitempty"`

	// Graph is the raw url → links map of visited pages.
	Graph map[string][]Link `json:"graph"`

	// Error holds a crawl-level failure such as an unreachable seed.
	Error string `json:"error,omitempty"`
}

// Summary holds the counters shown at the top of every report.
type Summary struct {
	PagesVisited    int                 `json:"pages_visited"`
	PagesOK         int                 `json:"pages_ok"`
	PagesDead       int                 `json:"pages_dead"`
	ExternalLinks   int                 `json:"external_links"`
	ExternalChecked int                 `json:"external_checked"`
	DeadReferences  int                 `json:"dead_references"`
	FailuresByKind  map[FailureKind]int `json:"failures_by_kind"`
}

// DeadLink is one dead URL with the reason it is dead.
type DeadLink struct {
	URL        string      `json:"url"`
	Kind       FailureKind `json:"kind"`
	StatusCode int         `json:"status_code,omitempty"`
	Error      string      `json:"error,omitempty"`
	External   bool        `json:"external,omitempty"`
}

// PageDeadLinkReport lists the dead links found on one page.
type PageDeadLinkReport struct {
	Page  string     `json:"page"`
	Links []DeadLink `json:"links"`
}

// NewReport builds a report from a finished crawl.
func NewReport(result *CrawlResult) *Report {
	r := &Report{
		Seed:       result.Seed,
		Target:     result.Target,
		StartedAt:  result.StartedAt,
		FinishedAt: result.FinishedAt,
		Graph:      result.Graph(),
		DeadLinks:  []PageDeadLinkReport{},
		DeadURLs:   []DeadLink{},
		Summary: Summary{
			FailuresByKind: make(map[FailureKind]int),
		},
	}

	for _, p := range result.Pages() {
		if p.External {
			r.Summary.ExternalChecked++
		} else {
			r.Summary.PagesVisited++
			if p.Status == StatusOK {
				r.Summary.PagesOK++
			} else {
				r.Summary.PagesDead++
			}
		}
		if p.Status == StatusDead {
			r.Summary.FailuresByKind[p.Failure]++
		}
	}

	for _, u := range result.DeadURLs() {
		r.DeadURLs = append(r.DeadURLs, deadLinkFor(result, u))
	}

	for _, group := range result.DeadLinksByPage() {
		entry := PageDeadLinkReport{Page: group.Page}
		for _, l := range group.Links {
			entry.Links = append(entry.Links, deadLinkFor(result, l.URL()))
		}
		r.Summary.DeadReferences += len(entry.Links)
		r.DeadLinks = append(r.DeadLinks, entry)
	}

	r.Externals = result.Externals()
	r.Summary.ExternalLinks = len(r.Externals)

	return r
}

// HasDeadLinks reports whether any dead URL was found.
func (r *Report) HasDeadLinks() bool {
	return len(r.DeadURLs) > 0
}

// Duration returns how long the crawl took.
func (r *Report) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

func deadLinkFor(result *CrawlResult, url string) DeadLink {
	d := DeadLink{URL: url}
	if p, ok := result.Page(url); ok {
		d.Kind = p.Failure
		d.StatusCode = p.StatusCode
		d.Error = p.Error
		d.External = p.External
	}
	return d
}
