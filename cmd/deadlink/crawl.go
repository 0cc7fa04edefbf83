package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nao1215/deadlink/internal/config"
	"github.com/nao1215/deadlink/internal/crawler"
	"github.com/nao1215/deadlink/internal/database"
	"github.com/nao1215/deadlink/internal/loader"
	dlog "github.com/nao1215/deadlink/internal/log"
	"github.com/nao1215/deadlink/internal/metrics"
	"github.com/nao1215/deadlink/internal/model"
	"github.com/nao1215/deadlink/internal/pipeline"
	"github.com/nao1215/deadlink/internal/report"
	"github.com/nao1215/deadlink/internal/tor"
)

// errDeadLinksFound is returned when a crawl finished but found dead links
// and --fail-on-dead is set. It only changes the exit status.
var errDeadLinksFound = errors.New("dead links found")

// NewCrawlCmd creates the crawl command.
func NewCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl [seed-url...]",
		Short: "Crawl a website and report dead links",
		Long: `Crawl visits every page reachable from the seed URL inside the target
domain, depth-first, and reports each link that could not be loaded.

A link is dead when every load attempt failed. Only aborted loads are
retried; timeouts and other network errors are final on the first failure.

Examples:
  # Check a site
  deadlink crawl https://example.com

  # Restrict the crawl to the documentation and skip the API reference
  deadlink crawl --target https://example.com/docs --exclude /docs/api https://example.com/docs

  # Check several sites listed in a file, two at a time
  deadlink crawl --list seeds.txt --batch 2

  # Render pages in headless Chrome and also check external links
  deadlink crawl --render --check-external https://example.com

  # Crawl an onion service through an existing Tor proxy
  deadlink crawl --tor --external-tor http://<address>.onion

  # Write a Markdown report
  deadlink crawl --markdown -o report.md https://example.com

Configuration file (.deadlink) example:
  sites:
    docs.example.com:
      cookie: "session_id=abc123"
      exclude:
        - /api-docs
      ignorePatterns:
        - "/archive/*"`,
		Args: cobra.ArbitraryArgs,
		RunE: runCrawlCmd,
	}

	// Scope flags
	cmd.Flags().StringP("list", "l", "",
		"File with one seed URL per line (# starts a comment)")
	cmd.Flags().String("target", "",
		"Target-domain prefix deciding which links are internal (default: origin the seed redirects to)")
	cmd.Flags().StringSlice("exclude", nil,
		"URL prefix never visited nor recorded; root-relative prefixes allowed (repeatable)")
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .deadlink in current or home directory)")

	// Crawl behavior flags
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"Timeout for each page load attempt")
	cmd.Flags().Int("retries", config.DefaultMaxAttempts-1,
		"Retries after an aborted load")
	cmd.Flags().Duration("retry-delay", config.DefaultRetryBaseDelay,
		"Base backoff delay, multiplied by the attempt number")
	cmd.Flags().IntP("workers", "w", config.DefaultWorkers,
		"Concurrent page loads per seed (1 keeps strict depth-first order)")
	cmd.Flags().IntP("batch", "b", config.DefaultBatchSize,
		"Number of seeds crawled concurrently")
	cmd.Flags().IntP("depth", "d", config.DefaultMaxDepth,
		"Maximum link distance from the seed (0 = unlimited)")
	cmd.Flags().IntP("max-pages", "p", config.DefaultMaxPages,
		"Maximum internal pages loaded per seed (0 = unlimited)")
	cmd.Flags().Float64("rate", 0,
		"Maximum requests per second per host (0 = no limit beyond --retry-delay spacing)")
	cmd.Flags().Bool("check-external", false,
		"Load each external link once and report the dead ones")
	cmd.Flags().Bool("render", false,
		"Render pages in headless Chrome before collecting links")
	cmd.Flags().Bool("no-robots", false,
		"Ignore robots.txt")
	cmd.Flags().String("user-agent", config.DefaultUserAgent,
		"User-Agent header sent with every request")

	// Report flags
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON report (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown report (mutually exclusive with --json)")
	cmd.Flags().StringP("output", "o", "",
		"Write report to specified file path (creates directories if needed)")
	cmd.Flags().Bool("fail-on-dead", true,
		"Exit with status 1 when dead links are found")

	// Storage flags
	cmd.Flags().String("db-dir", config.XDGDataDir(),
		"Directory of the run database")
	cmd.Flags().Bool("save", true,
		"Store the run for 'deadlink compare'")

	// Tor flags
	cmd.Flags().Bool("tor", false,
		"Route all requests through Tor (starts an embedded Tor daemon)")
	cmd.Flags().Bool("external-tor", false,
		"With --tor, use the proxy at --tor-proxy instead of an embedded daemon")
	cmd.Flags().String("tor-proxy", config.DefaultTorProxyAddress,
		"SOCKS5 address of the external Tor proxy")
	cmd.Flags().Duration("tor-timeout", config.DefaultTorStartupTimeout,
		"Timeout for embedded Tor startup")

	// Metrics
	cmd.Flags().String("metrics-addr", "",
		"Serve Prometheus metrics on this address while crawling (e.g. :2112)")

	return cmd
}

// runCrawlCmd executes the crawl command.
func runCrawlCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := dlog.NewSecureLogger(cmd.ErrOrStderr(), cfg.Verbose)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runCrawl(ctx, cfg, cmd.OutOrStdout(), cmd.ErrOrStderr(), logger)
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// buildConfig creates a Config from cobra command flags.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()
	flags := cmd.Flags()
	cfg.Verbose = getVerboseFlag(cmd)

	seedList, err := flags.GetString("list")
	if err != nil {
		return nil, err
	}
	cfg.Seeds = append(cfg.Seeds, args...)
	if seedList != "" {
		listed, err := readSeedList(seedList)
		if err != nil {
			return nil, err
		}
		cfg.Seeds = append(cfg.Seeds, listed...)
	}

	if cfg.Target, err = flags.GetString("target"); err != nil {
		return nil, err
	}
	if cfg.Exclude, err = flags.GetStringSlice("exclude"); err != nil {
		return nil, err
	}
	if cfg.ConfigFilePath, err = flags.GetString("config"); err != nil {
		return nil, err
	}
	if cfg.Timeout, err = flags.GetDuration("timeout"); err != nil {
		return nil, err
	}
	retries, err := flags.GetInt("retries")
	if err != nil {
		return nil, err
	}
	cfg.MaxAttempts = retries + 1
	if cfg.RetryBaseDelay, err = flags.GetDuration("retry-delay"); err != nil {
		return nil, err
	}
	if cfg.Workers, err = flags.GetInt("workers"); err != nil {
		return nil, err
	}
	if cfg.BatchSize, err = flags.GetInt("batch"); err != nil {
		return nil, err
	}
	if cfg.MaxDepth, err = flags.GetInt("depth"); err != nil {
		return nil, err
	}
	if cfg.MaxPages, err = flags.GetInt("max-pages"); err != nil {
		return nil, err
	}
	if cfg.RequestsPerSecond, err = flags.GetFloat64("rate"); err != nil {
		return nil, err
	}
	if cfg.CheckExternal, err = flags.GetBool("check-external"); err != nil {
		return nil, err
	}
	if cfg.Render, err = flags.GetBool("render"); err != nil {
		return nil, err
	}
	noRobots, err := flags.GetBool("no-robots")
	if err != nil {
		return nil, err
	}
	cfg.RespectRobots = !noRobots
	if cfg.UserAgent, err = flags.GetString("user-agent"); err != nil {
		return nil, err
	}

	if cfg.JSONReport, err = flags.GetBool("json"); err != nil {
		return nil, err
	}
	if cfg.MarkdownReport, err = flags.GetBool("markdown"); err != nil {
		return nil, err
	}
	if cfg.ReportFile, err = flags.GetString("output"); err != nil {
		return nil, err
	}
	if cfg.FailOnDead, err = flags.GetBool("fail-on-dead"); err != nil {
		return nil, err
	}

	if cfg.DBDir, err = flags.GetString("db-dir"); err != nil {
		return nil, err
	}
	if cfg.SaveToDB, err = flags.GetBool("save"); err != nil {
		return nil, err
	}

	if cfg.UseTor, err = flags.GetBool("tor"); err != nil {
		return nil, err
	}
	if cfg.UseExternalTor, err = flags.GetBool("external-tor"); err != nil {
		return nil, err
	}
	if cfg.TorProxyAddress, err = flags.GetString("tor-proxy"); err != nil {
		return nil, err
	}
	if cfg.TorStartupTimeout, err = flags.GetDuration("tor-timeout"); err != nil {
		return nil, err
	}

	if cfg.MetricsAddr, err = flags.GetString("metrics-addr"); err != nil {
		return nil, err
	}

	// If the user explicitly specified a config file path, it must exist.
	cfg.SiteConfigs, err = config.ResolveConfigFile(cfg.ConfigFilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	return cfg, nil
}

// readSeedList reads one seed per line. Blank lines and lines starting with
// # are skipped.
func readSeedList(path string) ([]string, error) {
	f, err := os.Open(path) //nolint:gosec // path is supplied by the user
	if err != nil {
		return nil, fmt.Errorf("failed to open seed list: %w", err)
	}
	defer f.Close()

	var seeds []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		seeds = append(seeds, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read seed list: %w", err)
	}
	return seeds, nil
}

// checkSeeds rejects onion seeds that cannot be crawled with the current
// network settings.
func checkSeeds(cfg *config.Config) error {
	for _, seed := range cfg.Seeds {
		if !tor.IsOnionHost(crawler.HostOf(seed)) {
			continue
		}
		if !cfg.UseTor {
			return fmt.Errorf("%s is an onion service; use --tor to crawl it", seed)
		}
		if err := tor.ValidateURL(seed); err != nil {
			return err
		}
	}
	return nil
}

// runCrawl crawls every seed, writes the reports and decides the exit status.
func runCrawl(ctx context.Context, cfg *config.Config, stdout, stderr io.Writer, logger *slog.Logger) error {
	if err := checkSeeds(cfg); err != nil {
		return err
	}

	logger.Info("starting crawl",
		"seeds", cfg.Seeds,
		"batch", cfg.BatchSize,
		"workers", cfg.Workers,
		"render", cfg.Render,
		"tor", cfg.UseTor,
	)

	var pipelineOpts []pipeline.DefaultPipelineOption

	if cfg.UseTor {
		dialer, cleanup, err := connectTor(ctx, cfg, stderr, logger)
		if err != nil {
			return err
		}
		defer cleanup()
		pipelineOpts = append(pipelineOpts, pipeline.WithPipelineDialer(dialer.DialContext))

		if cfg.Render {
			cfg.TorProxyAddress = dialer.Address()
		}
	}

	if cfg.Render {
		browserOpts := []loader.BrowserOption{
			loader.WithBrowserUserAgent(cfg.UserAgent),
			loader.WithBrowserMaxBodySize(cfg.MaxBodySize),
			loader.WithBrowserLogger(logger),
		}
		if cfg.UseTor {
			browserOpts = append(browserOpts, loader.WithBrowserProxy(cfg.TorProxyAddress))
		}
		browser := loader.NewBrowserLoader(browserOpts...)
		defer func() {
			if err := browser.Close(); err != nil {
				logger.Warn("failed to stop browser", "error", err)
			}
		}()
		pipelineOpts = append(pipelineOpts, pipeline.WithPipelineLoader(browser))
	}

	if cfg.MetricsAddr != "" {
		collector := metrics.NewCollector()
		pipelineOpts = append(pipelineOpts, pipeline.WithPipelineMetrics(collector))

		metricsCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			if err := collector.Serve(metricsCtx, cfg.MetricsAddr); err != nil {
				logger.Error("metrics server failed", "addr", cfg.MetricsAddr, "error", err)
			}
		}()
		logger.Info("serving metrics", "addr", cfg.MetricsAddr)
	}

	if cfg.SaveToDB {
		db, err := database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()
		pipelineOpts = append(pipelineOpts, pipeline.WithPipelineDB(db))
		logger.Info("database opened", "path", db.Path())
	}

	// One limiter for all seeds keeps concurrent crawls of a shared host
	// within the configured pace.
	pipelineOpts = append(pipelineOpts, pipeline.WithPipelineHostLimiter(
		crawler.NewHostLimiter(cfg.RetryBaseDelay, cfg.RequestsPerSecond),
	))

	bp := pipeline.NewBatchProcessor(
		func() *pipeline.Pipeline {
			return pipeline.DefaultPipeline(cfg, []pipeline.Option{pipeline.WithLogger(logger)}, pipelineOpts...)
		},
		pipeline.WithConcurrency(cfg.BatchSize),
		pipeline.WithBatchLogger(logger),
	)

	jobs, batchErr := bp.ProcessBatch(ctx, cfg.Seeds)

	if err := outputReports(cfg, jobs, stdout); err != nil {
		return err
	}
	if batchErr != nil {
		return batchErr
	}
	return crawlOutcome(cfg, jobs, stderr)
}

// connectTor returns a SOCKS5 dialer for Tor, starting an embedded daemon
// unless an external proxy was requested. cleanup stops the daemon.
func connectTor(ctx context.Context, cfg *config.Config, stderr io.Writer, logger *slog.Logger) (*tor.Dialer, func(), error) {
	noop := func() {}

	if cfg.UseExternalTor {
		dialer, err := tor.NewDialer(cfg.TorProxyAddress)
		if err != nil {
			return nil, noop, fmt.Errorf("failed to create Tor dialer: %w", err)
		}
		if status := dialer.CheckConnection(ctx); status != tor.ProxyStatusOK {
			return nil, noop, fmt.Errorf("tor proxy check failed: %s (make sure Tor is running at %s)",
				status, cfg.TorProxyAddress)
		}
		logger.Info("Tor proxy connection verified", "address", cfg.TorProxyAddress)
		return dialer, noop, nil
	}

	fmt.Fprintln(stderr, "Starting embedded Tor daemon...")
	fmt.Fprintf(stderr, "This may take 1-3 minutes while Tor bootstraps and connects to the network.\n\n")

	embedded := tor.NewEmbeddedTor(tor.WithStartupTimeout(cfg.TorStartupTimeout))
	if err := embedded.Start(ctx); err != nil {
		return nil, noop, fmt.Errorf("failed to start embedded Tor: %w", err)
	}
	cleanup := func() {
		logger.Info("stopping embedded Tor daemon")
		if err := embedded.Stop(); err != nil {
			logger.Error("failed to stop embedded Tor", "error", err)
		}
	}

	dialer, err := tor.NewDialer(embedded.SocksAddr())
	if err != nil {
		cleanup()
		return nil, noop, fmt.Errorf("failed to create Tor dialer: %w", err)
	}
	if status := dialer.CheckConnection(ctx); status != tor.ProxyStatusOK {
		cleanup()
		return nil, noop, fmt.Errorf("embedded Tor proxy check failed: %s", status)
	}

	fmt.Fprintf(stderr, "Embedded Tor daemon started (SOCKS proxy: %s)\n\n", embedded.SocksAddr())
	return dialer, cleanup, nil
}

// outputReports writes the report of every job in the requested format.
func outputReports(cfg *config.Config, jobs []*model.Job, stdout io.Writer) error {
	reports := make([]*model.Report, 0, len(jobs))
	for _, job := range jobs {
		if job.Report != nil {
			reports = append(reports, job.Report)
		}
	}
	if len(reports) == 0 {
		return nil
	}

	output := stdout
	if cfg.ReportFile != "" {
		f, err := createReportFile(cfg.ReportFile)
		if err != nil {
			return err
		}
		defer f.Close()
		output = f
	}

	// JSON output: a single document, an array envelope for several seeds.
	if cfg.JSONReport {
		w := report.NewFullJSONWriter(output, getVersion(), report.WithPrettyPrint())
		var err error
		if len(reports) == 1 {
			_, err = w.Write(reports[0])
		} else {
			_, err = w.WriteBatch(reports)
		}
		return err
	}

	var w report.Writer
	if cfg.MarkdownReport {
		w = report.NewMarkdownWriter(output)
	} else {
		w = report.NewSimpleWriter(output, report.WithVerbose(cfg.Verbose))
	}
	for _, r := range reports {
		if _, err := w.Write(r); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
	}
	return nil
}

// createReportFile creates the report file and its parent directories.
func createReportFile(path string) (*os.File, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	// Reports may contain session-bearing URLs, so only the owner may read them.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600) //nolint:gosec // path is supplied by the user
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, nil
}

// crawlOutcome turns the finished jobs into the command's error.
// Seeds that failed take precedence over dead links.
func crawlOutcome(cfg *config.Config, jobs []*model.Job, stderr io.Writer) error {
	var failed []string
	dead := 0
	for _, job := range jobs {
		if job.Err != nil {
			fmt.Fprintf(stderr, "crawl of %s failed: %v\n", job.Seed, job.Err)
			failed = append(failed, job.Seed)
		}
		if job.Report != nil {
			dead += len(job.Report.DeadURLs)
		}
	}

	if len(failed) > 0 {
		return fmt.Errorf("%d of %d seeds could not be crawled: %s",
			len(failed), len(jobs), strings.Join(failed, ", "))
	}
	if cfg.FailOnDead && dead > 0 {
		return fmt.Errorf("%w: %d", errDeadLinksFound, dead)
	}
	return nil
}
