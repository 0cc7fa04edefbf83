package crawler

import "testing"

func TestNormalize(t *testing.T) {
	t.Parallel()

	const page = "https://site.com/guide/intro"

	tests := []struct {
		name string
		href string
		want string
		ok   bool
	}{
		{name: "root relative", href: "/docs", want: "https://site.com/docs", ok: true},
		{name: "trailing slash stripped", href: "/docs/", want: "https://site.com/docs", ok: true},
		{name: "document relative", href: "setup", want: "https://site.com/guide/setup", ok: true},
		{name: "parent relative", href: "../faq", want: "https://site.com/faq", ok: true},
		{name: "protocol relative", href: "//cdn.site.com/lib/", want: "https://cdn.site.com/lib", ok: true},
		{name: "absolute", href: "https://other.com/page", want: "https://other.com/page", ok: true},
		{name: "host is lower cased", href: "HTTPS://Site.COM/Docs", want: "https://site.com/Docs", ok: true},
		{name: "default port dropped", href: "https://site.com:443/a", want: "https://site.com/a", ok: true},
		{name: "custom port kept", href: "http://site.com:8080/a/", want: "http://site.com:8080/a", ok: true},
		{name: "fragment dropped", href: "/docs#install", want: "https://site.com/docs", ok: true},
		{name: "query kept", href: "/search?q=go", want: "https://site.com/search?q=go", ok: true},
		{name: "domain root", href: "https://site.com/", want: "https://site.com", ok: true},
		{name: "bare slash", href: "/", want: "https://site.com", ok: true},
		{name: "idn host", href: "https://bücher.example/x", want: "https://xn--bcher-kva.example/x", ok: true},
		{name: "surrounding whitespace", href: "  /docs \n", want: "https://site.com/docs", ok: true},
		{name: "empty", href: "", ok: false},
		{name: "blank", href: "   ", ok: false},
		{name: "fragment only", href: "#section", ok: false},
		{name: "bare hash", href: "#", ok: false},
		{name: "mailto", href: "mailto:a@b.com", ok: false},
		{name: "tel", href: "tel:123", ok: false},
		{name: "javascript", href: "javascript:x()", ok: false},
		{name: "javascript upper case", href: "JavaScript:void(0)", ok: false},
		{name: "data", href: "data:text/plain,hi", ok: false},
		{name: "ftp", href: "ftp://files.site.com/a", ok: false},
		{name: "unparsable", href: "http://[::1", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, ok := Normalize(tt.href, page)
			if ok != tt.ok {
				t.Fatalf("Normalize(%q) ok = %v, expected %v (got %q)", tt.href, ok, tt.ok, got)
			}
			if got != tt.want {
				t.Errorf("Normalize(%q) = %q, expected %q", tt.href, got, tt.want)
			}
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	t.Parallel()

	const page = "https://site.com/a/b"
	hrefs := []string{
		"https://site.com/docs/",
		"https://site.com/docs",
		"HTTP://EXAMPLE.com:80/x/y/?q=1#frag",
		"https://site.com//",
		"https://site.com/path%20with%20space/",
		"http://[::1]:8080/v6/",
		"/relative/",
	}

	for _, href := range hrefs {
		first, ok := Normalize(href, page)
		if !ok {
			t.Fatalf("Normalize(%q) rejected", href)
		}
		second, ok := Normalize(first, page)
		if !ok {
			t.Fatalf("Normalize(%q) rejected on second pass", first)
		}
		if first != second {
			t.Errorf("not idempotent: %q -> %q -> %q", href, first, second)
		}
	}
}

func TestNormalizeTrailingSlashVariants(t *testing.T) {
	t.Parallel()

	a, _ := Normalize("/docs", "https://site.com")
	b, _ := Normalize("/docs/", "https://site.com")
	if a != b {
		t.Errorf("expected identical keys, got %q and %q", a, b)
	}
}

func TestNormalizeRequiresUsablePage(t *testing.T) {
	t.Parallel()

	if _, ok := Normalize("/docs", "not a url"); ok {
		t.Error("expected relative href on invalid page URL to be rejected")
	}
	if _, ok := Normalize("/docs", "mailto:a@b.com"); ok {
		t.Error("expected relative href on non-HTTP page URL to be rejected")
	}
	if got, ok := Normalize("https://site.com/x", "not a url"); !ok || got != "https://site.com/x" {
		t.Errorf("absolute href should not depend on page URL, got %q %v", got, ok)
	}
}

func TestHasPrefixBoundary(t *testing.T) {
	t.Parallel()

	tests := []struct {
		u, prefix string
		want      bool
	}{
		{"https://site.com", "https://site.com", true},
		{"https://site.com/docs", "https://site.com", true},
		{"https://site.com?x=1", "https://site.com", true},
		{"https://site.com.evil.org/x", "https://site.com", false},
		{"https://site.com/docs2", "https://site.com/docs", false},
		{"https://site.com/docs/a", "https://site.com/docs/", true},
		{"https://other.com", "https://site.com", false},
	}

	for _, tt := range tests {
		if got := hasPrefixBoundary(tt.u, tt.prefix); got != tt.want {
			t.Errorf("hasPrefixBoundary(%q, %q) = %v, expected %v", tt.u, tt.prefix, got, tt.want)
		}
	}
}

func TestOrigin(t *testing.T) {
	t.Parallel()

	if got := Origin("https://site.com/a/b?c=d"); got != "https://site.com" {
		t.Errorf("got %q, expected https://site.com", got)
	}
	if got := Origin("not a url"); got != "" {
		t.Errorf("got %q, expected empty origin", got)
	}
}
