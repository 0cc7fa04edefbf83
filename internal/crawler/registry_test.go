package crawler

import (
	"sync"
	"testing"
)

func TestVisitedRegistry(t *testing.T) {
	t.Parallel()

	t.Run("marks each URL once", func(t *testing.T) {
		t.Parallel()

		r := NewVisitedRegistry()
		if !r.TryMarkVisited("https://site.com/a") {
			t.Fatal("expected first mark to succeed")
		}
		if r.TryMarkVisited("https://site.com/a") {
			t.Error("expected second mark to fail")
		}
		if !r.Contains("https://site.com/a") {
			t.Error("expected registry to contain the URL")
		}
		if r.Len() != 1 {
			t.Errorf("got %d entries, expected 1", r.Len())
		}
	})

	t.Run("concurrent marks admit exactly one winner", func(t *testing.T) {
		t.Parallel()

		r := NewVisitedRegistry()
		var wg sync.WaitGroup
		var mu sync.Mutex
		wins := 0
		for range 64 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if r.TryMarkVisited("https://site.com/shared") {
					mu.Lock()
					wins++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		if wins != 1 {
			t.Errorf("got %d winners, expected 1", wins)
		}
	})

	t.Run("keeps insertion order", func(t *testing.T) {
		t.Parallel()

		r := NewVisitedRegistry()
		r.TryMarkVisited("b")
		r.TryMarkVisited("a")
		r.TryMarkVisited("b")

		urls := r.URLs()
		if len(urls) != 2 || urls[0] != "b" || urls[1] != "a" {
			t.Errorf("unexpected order: %v", urls)
		}
	})
}
