// Package model defines the core data structures used throughout deadlink.
//
// This package contains the following main types:
//   - Link: A normalized URL discovered on a page
//   - PageContent and LoadError: What a page loader returns
//   - PageResult: The terminal outcome of one URL
//   - CrawlResult: The append-only aggregate of one crawl
//   - Report: The serializable summary handed to report writers
//
// Design decision: We separate models into their own package to avoid circular
// dependencies. The crawler, the loaders, the database and the report writers
// all need these types, so centralizing them prevents import cycles.
package model
