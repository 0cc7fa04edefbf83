package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nao1215/deadlink/internal/config"
	"github.com/nao1215/deadlink/internal/crawler"
	"github.com/nao1215/deadlink/internal/database"
	"github.com/nao1215/deadlink/internal/loader"
	"github.com/nao1215/deadlink/internal/metrics"
	"github.com/nao1215/deadlink/internal/model"
	"github.com/nao1215/deadlink/internal/tor"
)

// ErrNoCrawlResult is returned by steps that need a crawl result when the
// crawl step did not produce one.
var ErrNoCrawlResult = errors.New("no crawl result")

// CrawlStep crawls the job's seed and stores the result in the job.
//
// Design decision: A new Spider and HTTP loader are built per job because:
// 1. Cookies and headers come from the seed's site configuration
// 2. The cookie jar must not leak sessions between sites
// 3. A Spider's visited registry belongs to exactly one crawl
type CrawlStep struct {
	cfg *config.Config

	// loader replaces the per-job HTTP loader when set, e.g. the shared
	// browser loader or a stub in tests.
	loader crawler.PageLoader

	// dial routes HTTP connections, e.g. through Tor.
	dial loader.DialContextFunc

	// limiter is shared by every job so concurrent seeds on one host
	// are paced together.
	limiter *crawler.HostLimiter

	listener crawler.Listener
	metrics  *metrics.Collector
	logger   *slog.Logger
}

// CrawlStepOption configures a CrawlStep.
type CrawlStepOption func(*CrawlStep)

// WithCrawlLoader makes every job use l instead of a fresh HTTP loader.
func WithCrawlLoader(l crawler.PageLoader) CrawlStepOption {
	return func(s *CrawlStep) {
		s.loader = l
	}
}

// WithCrawlDialer routes the HTTP loader's connections through dial.
func WithCrawlDialer(dial loader.DialContextFunc) CrawlStepOption {
	return func(s *CrawlStep) {
		s.dial = dial
	}
}

// WithCrawlHostLimiter sets the per-host limiter shared between jobs.
func WithCrawlHostLimiter(l *crawler.HostLimiter) CrawlStepOption {
	return func(s *CrawlStep) {
		s.limiter = l
	}
}

// WithCrawlListener adds a listener notified of every resolved page.
func WithCrawlListener(l crawler.Listener) CrawlStepOption {
	return func(s *CrawlStep) {
		s.listener = l
	}
}

// WithCrawlMetrics records page outcomes and crawl durations in c.
func WithCrawlMetrics(c *metrics.Collector) CrawlStepOption {
	return func(s *CrawlStep) {
		s.metrics = c
	}
}

// WithCrawlLogger sets a custom logger for the crawl step.
func WithCrawlLogger(logger *slog.Logger) CrawlStepOption {
	return func(s *CrawlStep) {
		s.logger = logger
	}
}

// NewCrawlStep creates a crawl step driven by cfg.
func NewCrawlStep(cfg *config.Config, opts ...CrawlStepOption) *CrawlStep {
	s := &CrawlStep{
		cfg:    cfg,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.limiter == nil {
		s.limiter = crawler.NewHostLimiter(cfg.RetryBaseDelay, cfg.RequestsPerSecond)
	}

	return s
}

// Name returns the step name.
func (s *CrawlStep) Name() string {
	return "crawl"
}

// Do crawls job.Seed. A partial result is stored even when the crawl fails,
// so later steps can still report what was found.
func (s *CrawlStep) Do(ctx context.Context, job *model.Job) error {
	site := s.siteConfig(job.Seed)
	onion := tor.IsOnionHost(crawler.HostOf(job.Seed))

	httpLoader := loader.NewHTTPLoader(
		loader.WithUserAgent(s.cfg.UserAgent),
		loader.WithCookie(site.Cookie),
		loader.WithHeaders(site.Headers),
		loader.WithMaxBodySize(s.cfg.MaxBodySize),
		loader.WithDialContext(s.dial),
		loader.WithInsecureTLS(onion),
		loader.WithLogger(s.logger),
	)

	var pageLoader crawler.PageLoader = httpLoader
	if s.loader != nil {
		pageLoader = s.loader
	}

	spider := crawler.NewSpider(pageLoader, s.spiderOptions(site, httpLoader)...)

	result, err := spider.Crawl(ctx, job.Seed)
	job.Result = result
	if s.metrics != nil && result != nil {
		s.metrics.ObserveCrawl(result.FinishedAt.Sub(result.StartedAt))
	}
	if err != nil {
		return fmt.Errorf("crawl %s: %w", job.Seed, err)
	}
	return nil
}

// siteConfig returns the site configuration for seed, or the zero value
// when no configuration file was loaded.
func (s *CrawlStep) siteConfig(seed string) config.SiteConfig {
	if s.cfg.SiteConfigs == nil {
		return config.SiteConfig{}
	}
	return s.cfg.SiteConfigs.GetSiteConfig(seed)
}

// spiderOptions merges the global configuration with the site entry.
// Command-line values win for the target; the site's depth overrides the
// global depth; exclusions from both are combined.
func (s *CrawlStep) spiderOptions(site config.SiteConfig, httpLoader *loader.HTTPLoader) []crawler.SpiderOption {
	depth := s.cfg.MaxDepth
	if site.Depth > 0 {
		depth = site.Depth
	}

	target := s.cfg.Target
	if target == "" {
		target = site.Target
	}

	excludes := make([]string, 0, len(s.cfg.Exclude)+len(site.Exclude))
	excludes = append(excludes, s.cfg.Exclude...)
	excludes = append(excludes, site.Exclude...)

	opts := []crawler.SpiderOption{
		crawler.WithRetryPolicy(crawler.RetryPolicy{
			MaxAttempts: s.cfg.MaxAttempts,
			BaseDelay:   s.cfg.RetryBaseDelay,
		}),
		crawler.WithTimeout(s.cfg.Timeout),
		crawler.WithWorkers(s.cfg.Workers),
		crawler.WithMaxDepth(depth),
		crawler.WithMaxPages(s.cfg.MaxPages),
		crawler.WithTarget(target),
		crawler.WithExcludePrefixes(excludes),
		crawler.WithCheckExternal(s.cfg.CheckExternal),
		crawler.WithKeepHTML(false),
		crawler.WithHostLimiter(s.limiter),
		crawler.WithLogger(s.logger),
	}

	if len(site.IgnorePatterns) > 0 {
		opts = append(opts, crawler.WithIgnorePatterns(site.IgnorePatterns))
	}
	if len(site.FollowPatterns) > 0 {
		opts = append(opts, crawler.WithFollowPatterns(site.FollowPatterns))
	}

	if s.cfg.RespectRobots {
		opts = append(opts, crawler.WithRobots(
			crawler.NewRobotsAgent(httpLoader.Client(), s.cfg.UserAgent, s.logger,
				crawler.WithRobotsTimeout(s.cfg.Timeout),
			),
		))
	}

	var listeners crawler.MultiListener
	if s.listener != nil {
		listeners = append(listeners, s.listener)
	}
	if s.metrics != nil {
		listeners = append(listeners, s.metrics)
	}
	if len(listeners) > 0 {
		opts = append(opts, crawler.WithListener(listeners))
	}

	return opts
}

// ReportStep turns the crawl result into a model.Report.
type ReportStep struct{}

// NewReportStep creates a report step.
func NewReportStep() *ReportStep {
	return &ReportStep{}
}

// Name returns the step name.
func (s *ReportStep) Name() string {
	return "report"
}

// Do builds job.Report from job.Result. A crawl-level error already in the
// job is copied into the report. When the crawl produced nothing at all,
// an empty report carrying only the seed and the error is built.
func (s *ReportStep) Do(_ context.Context, job *model.Job) error {
	if job.Result == nil {
		if job.Err == nil {
			return ErrNoCrawlResult
		}
		result := model.NewCrawlResult(job.Seed, "")
		result.Finish()
		job.Report = model.NewReport(result)
	} else {
		job.Report = model.NewReport(job.Result)
	}

	if job.Err != nil {
		job.Report.Error = job.Err.Error()
	}
	return nil
}

// runStore is the part of database.CrawlDB the persist step needs.
type runStore interface {
	SaveCrawl(ctx context.Context, report *model.Report) (int64, error)
}

var _ runStore = (*database.CrawlDB)(nil)

// PersistStep stores the job's report so later runs can be compared to it.
type PersistStep struct {
	store  runStore
	logger *slog.Logger
}

// NewPersistStep creates a persist step writing to db.
func NewPersistStep(db *database.CrawlDB, logger *slog.Logger) *PersistStep {
	return newPersistStep(db, logger)
}

func newPersistStep(store runStore, logger *slog.Logger) *PersistStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &PersistStep{store: store, logger: logger}
}

// Name returns the step name.
func (s *PersistStep) Name() string {
	return "persist"
}

// Do saves job.Report and records the run ID in the job.
func (s *PersistStep) Do(ctx context.Context, job *model.Job) error {
	if job.Report == nil {
		return fmt.Errorf("persist %s: %w", job.Seed, ErrNoCrawlResult)
	}

	id, err := s.store.SaveCrawl(ctx, job.Report)
	if err != nil {
		return fmt.Errorf("persist %s: %w", job.Seed, err)
	}
	job.RunID = id

	s.logger.Debug("run saved", "seed", job.Report.Seed, "run_id", id)
	return nil
}

// DefaultPipelineConfig holds the collaborators of the default pipeline.
type DefaultPipelineConfig struct {
	// Loader replaces the per-job HTTP loader, e.g. with a browser loader.
	Loader crawler.PageLoader

	// Dial routes HTTP connections, e.g. through Tor.
	Dial loader.DialContextFunc

	// Limiter is shared between all pipelines built from this config.
	Limiter *crawler.HostLimiter

	// Metrics receives page outcomes when set.
	Metrics *metrics.Collector

	// Listener is notified of every resolved page when set.
	Listener crawler.Listener

	// DB stores every run when set.
	DB *database.CrawlDB
}

// DefaultPipelineOption configures a DefaultPipelineConfig.
type DefaultPipelineOption func(*DefaultPipelineConfig)

// WithPipelineLoader sets the page loader used for every job.
func WithPipelineLoader(l crawler.PageLoader) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.Loader = l
	}
}

// WithPipelineDialer routes HTTP connections through dial.
func WithPipelineDialer(dial loader.DialContextFunc) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.Dial = dial
	}
}

// WithPipelineHostLimiter shares l between pipelines.
func WithPipelineHostLimiter(l *crawler.HostLimiter) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.Limiter = l
	}
}

// WithPipelineMetrics records crawl metrics in m.
func WithPipelineMetrics(m *metrics.Collector) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.Metrics = m
	}
}

// WithPipelineListener adds a page listener, e.g. a progress printer.
func WithPipelineListener(l crawler.Listener) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.Listener = l
	}
}

// WithPipelineDB stores every run in db.
func WithPipelineDB(db *database.CrawlDB) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.DB = db
	}
}

// DefaultPipeline creates the crawl, report and (with a database) persist
// pipeline.
//
// Design decision: The default pipeline continues after a failed crawl
// because:
// 1. A seed that could not be loaded still deserves a report entry
// 2. Stored runs with an error keep the comparison history honest
//
// The first parameter carries pipeline options (WithLogger, ...), the rest
// configure the steps.
func DefaultPipeline(cfg *config.Config, pipelineOpts []Option, configOpts ...DefaultPipelineOption) *Pipeline {
	pc := &DefaultPipelineConfig{}
	for _, opt := range configOpts {
		opt(pc)
	}

	p := New(append([]Option{WithContinueOnError(true)}, pipelineOpts...)...)

	crawlOpts := []CrawlStepOption{
		WithCrawlLogger(p.logger),
	}
	if pc.Loader != nil {
		crawlOpts = append(crawlOpts, WithCrawlLoader(pc.Loader))
	}
	if pc.Dial != nil {
		crawlOpts = append(crawlOpts, WithCrawlDialer(pc.Dial))
	}
	if pc.Limiter != nil {
		crawlOpts = append(crawlOpts, WithCrawlHostLimiter(pc.Limiter))
	}
	if pc.Metrics != nil {
		crawlOpts = append(crawlOpts, WithCrawlMetrics(pc.Metrics))
	}
	if pc.Listener != nil {
		crawlOpts = append(crawlOpts, WithCrawlListener(pc.Listener))
	}

	p.AddSteps(
		NewCrawlStep(cfg, crawlOpts...),
		NewReportStep(),
	)
	if pc.DB != nil {
		p.AddStep(NewPersistStep(pc.DB, p.logger))
	}

	return p
}
