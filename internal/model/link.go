package model

import "net/url"

// Link is a normalized, absolute URL discovered as an anchor target.
//
// Link is a comparable value: two links are equal exactly when their URLs
// are equal, so it can be used directly as a map key. Callers must only
// build links from normalized URLs; the crawler package guarantees this.
type Link struct {
	url string
}

// NewLink wraps an already normalized URL.
func NewLink(normalized string) Link {
	return Link{url: normalized}
}

// URL returns the normalized URL.
func (l Link) URL() string {
	return l.url
}

// String implements fmt.Stringer.
func (l Link) String() string {
	return l.url
}

// Host returns the host part of the link, or an empty string if the URL
// cannot be parsed.
func (l Link) Host() string {
	u, err := url.Parse(l.url)
	if err != nil {
		return ""
	}
	return u.Host
}

// MarshalText implements encoding.TextMarshaler so links serialize as plain
// URL strings.
func (l Link) MarshalText() ([]byte, error) {
	return []byte(l.url), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *Link) UnmarshalText(text []byte) error {
	l.url = string(text)
	return nil
}

// LinkSet is an insertion-ordered set of links.
// The zero value is ready to use.
type LinkSet struct {
	order []Link
	seen  map[Link]struct{}
}

// Add inserts the link if it is not already present and reports whether it
// was added.
func (s *LinkSet) Add(l Link) bool {
	if s.seen == nil {
		s.seen = make(map[Link]struct{})
	}
	if _, ok := s.seen[l]; ok {
		return false
	}
	s.seen[l] = struct{}{}
	s.order = append(s.order, l)
	return true
}

// Contains reports whether the link is in the set.
func (s *LinkSet) Contains(l Link) bool {
	_, ok := s.seen[l]
	return ok
}

// Len returns the number of links in the set.
func (s *LinkSet) Len() int {
	return len(s.order)
}

// Links returns a copy of the links in insertion order.
func (s *LinkSet) Links() []Link {
	out := make([]Link, len(s.order))
	copy(out, s.order)
	return out
}
