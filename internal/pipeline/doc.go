// Package pipeline runs crawl jobs through a fixed sequence of steps.
//
// A job starts with a seed URL. The crawl step fills in the crawl result,
// the report step turns it into a model.Report and the persist step, when a
// database is configured, stores the run for later comparison.
//
// Design decision: We use a pipeline pattern instead of direct function calls
// because:
// 1. It allows easy addition/removal of steps without modifying core logic
// 2. It provides consistent error handling and logging across steps
// 3. It supports cancellation via context between steps
//
// BatchProcessor crawls several seeds concurrently with errgroup.
package pipeline
