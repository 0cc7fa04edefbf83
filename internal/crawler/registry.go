package crawler

import "sync"

// VisitedRegistry is the set of URLs whose load has been dispatched.
// A URL enters the registry at most once; it is never removed.
type VisitedRegistry struct {
	mu    sync.Mutex
	seen  map[string]struct{}
	order []string
}

// NewVisitedRegistry creates an empty registry.
func NewVisitedRegistry() *VisitedRegistry {
	return &VisitedRegistry{seen: make(map[string]struct{})}
}

// TryMarkVisited inserts url and returns true if it was absent. It returns
// false if url was already present, in which case the caller must skip it.
// The check and the insert happen under one lock.
func (r *VisitedRegistry) TryMarkVisited(url string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.seen[url]; ok {
		return false
	}
	r.seen[url] = struct{}{}
	r.order = append(r.order, url)
	return true
}

// Contains reports whether url has been marked.
func (r *VisitedRegistry) Contains(url string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.seen[url]
	return ok
}

// Len returns the number of marked URLs.
func (r *VisitedRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}

// URLs returns the marked URLs in the order they were marked.
func (r *VisitedRegistry) URLs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}
