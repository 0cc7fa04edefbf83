// Package crawler provides the link-checking traversal engine.
//
// # Architecture
//
// The package is designed around the Spider type, which coordinates the
// crawl. A crawl keeps an explicit stack of URLs, loads each one through a
// PageLoader, and records every outcome in a model.CrawlResult.
//
// # Components
//
//   - Normalize: Turns raw hrefs into canonical absolute URLs
//   - RetryPolicy: Retry-on-abort with linear backoff before every attempt
//   - VisitedRegistry: Atomic check-and-insert set of dispatched URLs
//   - HostLimiter: Per-host request spacing shared by all workers
//   - RobotsAgent: Cached robots.txt evaluation
//   - ParseDocument: Anchor extraction from the main HTML document
//   - Spider: The traversal itself
//
// # Politeness
//
// The crawler is designed to be polite:
//   - One request at a time by default
//   - A backoff pause before every attempt, growing with each retry
//   - Per-host spacing when several workers are used
//   - Respects robots.txt (configurable)
//
// # Usage
//
//	spider := crawler.NewSpider(loader, crawler.WithExcludePrefixes([]string{"/api"}))
//	result, err := spider.Crawl(ctx, "https://example.com")
//
// # Classification
//
// Internal pages are loaded and expanded. External links are recorded but
// never expanded; with WithCheckExternal they are loaded once to classify
// them. Dead links are data: Crawl only fails when the seed itself cannot be
// loaded or the context is cancelled.
package crawler
