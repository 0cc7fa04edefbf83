// Package main provides the entry point for the deadlink CLI.
//
// deadlink crawls a website depth-first from one or more seed URLs and
// reports every link that does not resolve, grouped by the page that
// contains it.
//
// Usage:
//
//	deadlink crawl https://example.com
//	deadlink crawl --list seeds.txt
//
// See --help for all available options.
package main

// main is the entry point for deadlink.
func main() {
	Execute()
}
