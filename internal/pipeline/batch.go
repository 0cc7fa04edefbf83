package pipeline

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/deadlink/internal/model"
)

// BatchProcessor crawls several seeds concurrently.
//
// Design decision: We use a separate BatchProcessor rather than adding batch
// functionality to Pipeline because:
// 1. It keeps the Pipeline focused on a single seed
// 2. Each seed gets its own pipeline, so no state leaks between crawls
type BatchProcessor struct {
	// pipelineFactory creates a fresh pipeline for each seed.
	pipelineFactory func() *Pipeline

	// concurrency is the maximum number of seeds crawled at once.
	concurrency int

	logger *slog.Logger
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*BatchProcessor)

// WithBatchLogger sets a custom logger for batch processing.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *BatchProcessor) {
		b.logger = logger
	}
}

// WithConcurrency sets the maximum number of concurrent crawls.
// Values below 1 are ignored.
func WithConcurrency(n int) BatchOption {
	return func(b *BatchProcessor) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// NewBatchProcessor creates a BatchProcessor. pipelineFactory is called
// once per seed.
func NewBatchProcessor(pipelineFactory func() *Pipeline, opts ...BatchOption) *BatchProcessor {
	bp := &BatchProcessor{
		pipelineFactory: pipelineFactory,
		concurrency:     4,
	}

	for _, opt := range opts {
		opt(bp)
	}

	if bp.logger == nil {
		bp.logger = slog.Default()
	}

	return bp
}

// ProcessBatch crawls every seed and returns one job per seed, in input
// order.
//
// Design decision: We use errgroup.SetLimit rather than a worker pool
// because it is simpler and errgroup handles the limit correctly. A failed
// seed never cancels the others; its error is kept in job.Err.
//
// The error is non-nil only when ctx was cancelled. Jobs whose crawl never
// started are returned with job.Err set to the context error.
func (bp *BatchProcessor) ProcessBatch(ctx context.Context, seeds []string) ([]*model.Job, error) {
	bp.logger.Info("starting batch",
		"seeds", len(seeds),
		"concurrency", bp.concurrency,
	)
	startTime := time.Now()

	jobs := make([]*model.Job, len(seeds))
	for i, seed := range seeds {
		jobs[i] = model.NewJob(seed)
	}

	err := bp.run(ctx, jobs, nil)

	bp.logger.Info("batch complete",
		"seeds", len(seeds),
		"elapsed", time.Since(startTime),
	)
	return jobs, err
}

// ProcessBatchWithCallback crawls every seed and calls callback as each
// job completes, which lets callers stream results.
//
// The callback runs on the goroutine that finished the job, so it must be
// safe for concurrent use.
func (bp *BatchProcessor) ProcessBatchWithCallback(
	ctx context.Context,
	seeds []string,
	callback func(job *model.Job, index int),
) error {
	jobs := make([]*model.Job, len(seeds))
	for i, seed := range seeds {
		jobs[i] = model.NewJob(seed)
	}
	return bp.run(ctx, jobs, callback)
}

func (bp *BatchProcessor) run(ctx context.Context, jobs []*model.Job, callback func(*model.Job, int)) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bp.concurrency)

	for i, job := range jobs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				job.Err = err
				return err
			}

			bp.logger.Info("crawling seed",
				"seed", job.Seed,
				"index", i+1,
				"total", len(jobs),
			)

			// Failures are recorded in the job and must not cancel the
			// other seeds.
			if err := bp.pipelineFactory().Execute(gctx, job); err != nil {
				bp.logger.Warn("seed failed", "seed", job.Seed, "error", err)
			}

			if callback != nil {
				callback(job, i)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
