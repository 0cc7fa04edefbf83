package crawler

import "errors"

// Crawl-level errors. A dead link is never an error; these only describe
// crawls that could not run or could not get past the seed.
var (
	// ErrInvalidSeed is returned when the seed URL is not an absolute
	// http(s) URL.
	ErrInvalidSeed = errors.New("invalid seed URL")

	// ErrInvalidTarget is returned when the target-domain prefix cannot be
	// normalized.
	ErrInvalidTarget = errors.New("invalid target domain")

	// ErrSeedUnreachable is returned when the seed itself could not be loaded.
	// The partial result is still returned alongside it.
	ErrSeedUnreachable = errors.New("seed URL is unreachable")

	// ErrNoLoader is returned when a Spider was built without a page loader.
	ErrNoLoader = errors.New("no page loader configured")
)
