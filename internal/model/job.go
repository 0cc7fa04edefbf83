package model

// Job carries one seed through the crawl pipeline.
// Each pipeline step reads what earlier steps produced and fills in its own
// part.
type Job struct {
	// Seed is the seed URL as given by the user.
	Seed string

	// Result is set by the crawl step.
	Result *CrawlResult

	// Report is set by the report step.
	Report *Report

	// RunID is set by the persist step when the run was stored.
	RunID int64

	// Err is the crawl-level error, if any. A job with dead links but no
	// crawl-level error is still a successful job.
	Err error
}

// NewJob creates a job for the given seed.
func NewJob(seed string) *Job {
	return &Job{Seed: seed}
}
