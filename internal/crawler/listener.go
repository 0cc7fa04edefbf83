package crawler

import "github.com/nao1215/deadlink/internal/model"

// Listener is notified once per completed page, in completion order.
// Calls never overlap, even when the spider runs several workers.
type Listener interface {
	OnPageVisited(page *model.PageResult)
}

// ListenerFunc adapts a function to the Listener interface.
type ListenerFunc func(page *model.PageResult)

// OnPageVisited calls f(page).
func (f ListenerFunc) OnPageVisited(page *model.PageResult) {
	f(page)
}

// MultiListener fans a notification out to several listeners in order.
type MultiListener []Listener

// OnPageVisited notifies every non-nil listener.
func (m MultiListener) OnPageVisited(page *model.PageResult) {
	for _, l := range m {
		if l != nil {
			l.OnPageVisited(page)
		}
	}
}
