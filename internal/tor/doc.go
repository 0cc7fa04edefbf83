// Package tor provides SOCKS5 proxy support for crawling onion services.
//
// The HTTP page loader can route every request through a Dialer, either
// pointing at an existing Tor daemon or at an EmbeddedTor started for the
// crawl. Onion seeds are validated with IsValidV3Address before any request
// is made so that typos fail fast instead of producing a dead seed.
package tor
