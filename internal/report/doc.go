// Package report renders crawl reports.
//
// Writers for three formats are provided:
//   - SimpleWriter: human-readable text for the terminal
//   - JSONWriter and FullJSONWriter: structured JSON for tools
//   - MarkdownWriter: GitHub flavored Markdown with a mermaid pie chart
//
// Design decision: We separate report writing from report data structures
// (which are in the model package) so new output formats need no change to
// the crawler.
package report
