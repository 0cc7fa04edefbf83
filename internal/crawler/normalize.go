package crawler

import (
	"net"
	"net/url"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/idna"
)

// Normalize turns a raw href found on pageURL into the canonical absolute URL
// used as the crawl's visited key. It returns false when the href points at
// nothing crawlable.
//
// Rejected hrefs:
//   - empty or whitespace only
//   - fragment-only references ("#section")
//   - tel:, mailto:, javascript: and every other non-HTTP scheme
//
// Relative hrefs are resolved against pageURL. The result has a lower-case
// scheme and host, no default port, no fragment and no trailing slash, so
// ".../docs" and ".../docs/" share one key. Normalize is pure and idempotent.
func Normalize(href, pageURL string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return "", false
	}

	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	if ref.Scheme != "" && !isHTTPScheme(ref.Scheme) {
		return "", false
	}

	target := ref
	if !ref.IsAbs() {
		base, err := url.Parse(strings.TrimSpace(pageURL))
		if err != nil || !isHTTPScheme(base.Scheme) || base.Host == "" {
			return "", false
		}
		target = base.ResolveReference(ref)
	}

	if !isHTTPScheme(target.Scheme) || target.Host == "" {
		return "", false
	}

	return canonicalize(target), true
}

// canonicalize renders u in canonical form. u is modified.
func canonicalize(u *url.URL) string {
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = canonicalHost(u.Scheme, u.Host)
	u.Fragment = ""
	u.RawFragment = ""
	u.ForceQuery = false

	u.Path = strings.TrimRight(u.Path, "/")
	if u.RawPath != "" {
		u.RawPath = strings.TrimRight(u.RawPath, "/")
	}
	return u.String()
}

// canonicalHost lower-cases the host, converts internationalized names to
// their ASCII form and drops the default port for the scheme.
func canonicalHost(scheme, hostport string) string {
	host, port, err := net.SplitHostPort(hostport)
	if err != nil {
		host, port = strings.TrimSuffix(strings.TrimPrefix(hostport, "["), "]"), ""
	}
	host = strings.ToLower(host)

	if !isASCII(host) {
		if ascii, err := idna.Lookup.ToASCII(host); err == nil {
			host = ascii
		}
	}

	if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		port = ""
	}
	if port == "" {
		if strings.Contains(host, ":") {
			return "[" + host + "]"
		}
		return host
	}
	return net.JoinHostPort(host, port)
}

func isHTTPScheme(scheme string) bool {
	scheme = strings.ToLower(scheme)
	return scheme == "http" || scheme == "https"
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// Origin returns scheme://host of a normalized URL, or an empty string.
func Origin(normalized string) string {
	u, err := url.Parse(normalized)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

// HostOf returns the host (with port) of a URL, or an empty string.
func HostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Host
}

// hasPrefixBoundary reports whether u lies under prefix. The match must end at
// a path, query or fragment boundary so that "https://site.com" does not
// claim "https://site.com.evil.org".
func hasPrefixBoundary(u, prefix string) bool {
	if !strings.HasPrefix(u, prefix) {
		return false
	}
	if len(u) == len(prefix) || strings.HasSuffix(prefix, "/") {
		return true
	}
	switch u[len(prefix)] {
	case '/', '?', '#':
		return true
	default:
		return false
	}
}
