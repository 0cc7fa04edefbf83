package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
const (
	// DefaultTimeout bounds a single page load attempt.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxAttempts is the number of load attempts per URL, the first
	// one included. Only ABORTED failures are retried.
	DefaultMaxAttempts = 3

	// DefaultRetryBaseDelay is multiplied by the attempt number to get the
	// pause before each attempt. It also spaces requests to one host.
	DefaultRetryBaseDelay = 500 * time.Millisecond

	// DefaultWorkers is the number of concurrent page loads per crawl.
	// One worker visits pages in exact depth-first order.
	DefaultWorkers = 1

	// DefaultBatchSize is the number of seeds crawled concurrently.
	DefaultBatchSize = 4

	// DefaultMaxDepth and DefaultMaxPages of 0 mean unlimited.
	DefaultMaxDepth = 0
	DefaultMaxPages = 0

	// DefaultTorProxyAddress is the standard Tor SOCKS5 proxy address.
	// We use 127.0.0.1 instead of localhost to avoid IPv6 resolution issues.
	DefaultTorProxyAddress = "127.0.0.1:9050"

	// DefaultTorStartupTimeout is the maximum time to wait for the embedded
	// Tor daemon to bootstrap.
	DefaultTorStartupTimeout = 3 * time.Minute

	// AppName is the application name used for XDG directory paths.
	AppName = "deadlink"

	// DefaultUserAgent identifies deadlink in HTTP requests so site operators
	// can recognize the traffic in their logs.
	DefaultUserAgent = "deadlink/1.0 (+https://github.com/nao1215/deadlink)"

	// DefaultMaxBodySize limits how much of a response body is parsed.
	DefaultMaxBodySize = 5 * 1024 * 1024 // 5MB
)

// Config holds all options of a crawl run.
// It is populated from CLI flags and passed down explicitly rather than kept
// in global state.
//
// Design decision: We use a single flat struct instead of nested structs
// (e.g., CrawlConfig, ReportConfig) for simplicity. The number of options
// is manageable, and nesting would add complexity without significant benefit.
type Config struct {
	// Seeds are the start URLs, one crawl each.
	Seeds []string

	// Target overrides the URL prefix that counts as internal.
	// Empty means the origin of each seed.
	Target string

	// Exclude lists URL prefixes that are never crawled.
	Exclude []string

	// Timeout bounds each page load attempt.
	Timeout time.Duration

	// MaxAttempts is the load attempt budget per URL.
	MaxAttempts int

	// RetryBaseDelay is the unit of the linear backoff between attempts.
	RetryBaseDelay time.Duration

	// Workers is the number of concurrent page loads within one crawl.
	Workers int

	// BatchSize is the number of seeds crawled concurrently.
	BatchSize int

	// MaxDepth limits the link distance from the seed. 0 means unlimited.
	MaxDepth int

	// MaxPages limits the number of pages loaded. 0 means unlimited.
	MaxPages int

	// RequestsPerSecond caps the request rate per host. 0 means no cap
	// beyond RetryBaseDelay spacing.
	RequestsPerSecond float64

	// CheckExternal loads every distinct external link once.
	CheckExternal bool

	// Render loads pages in headless Chrome.
	Render bool

	// RespectRobots honors robots.txt for internal URLs.
	RespectRobots bool

	// UserAgent is the User-Agent header sent with requests.
	UserAgent string

	// MaxBodySize is the number of response body bytes parsed per page.
	MaxBodySize int64

	// Verbose enables debug logging.
	Verbose bool

	// ConfigFilePath is the path to the site configuration file.
	// If empty, .deadlink is searched in the current and home directories.
	ConfigFilePath string

	// SiteConfigs holds the site configuration file, if one was loaded.
	SiteConfigs *File

	// JSONReport selects JSON output. Mutually exclusive with MarkdownReport.
	JSONReport bool

	// MarkdownReport selects Markdown output. Mutually exclusive with JSONReport.
	MarkdownReport bool

	// ReportFile is the output path. Empty means stdout.
	ReportFile string

	// UseTor routes all traffic through a Tor SOCKS5 proxy.
	UseTor bool

	// UseExternalTor uses the proxy at TorProxyAddress instead of starting
	// an embedded Tor daemon.
	UseExternalTor bool

	// TorProxyAddress is the SOCKS5 proxy in host:port form.
	TorProxyAddress string

	// TorStartupTimeout bounds the embedded Tor bootstrap.
	TorStartupTimeout time.Duration

	// DBDir is the directory holding the SQLite database.
	DBDir string

	// SaveToDB stores each run for later comparison.
	SaveToDB bool

	// MetricsAddr serves Prometheus metrics when set, e.g. ":2112".
	MetricsAddr string

	// FailOnDead makes the crawl command exit non-zero when dead links exist.
	FailOnDead bool
}

// NewConfig creates a Config with default values.
//
// Design decision: We use a constructor function instead of relying on
// zero values because many defaults are non-zero (e.g., timeout, attempts).
// This also serves as documentation of what the defaults are.
func NewConfig() *Config {
	return &Config{
		Timeout:           DefaultTimeout,
		MaxAttempts:       DefaultMaxAttempts,
		RetryBaseDelay:    DefaultRetryBaseDelay,
		Workers:           DefaultWorkers,
		BatchSize:         DefaultBatchSize,
		MaxDepth:          DefaultMaxDepth,
		MaxPages:          DefaultMaxPages,
		RespectRobots:     true,
		UserAgent:         DefaultUserAgent,
		MaxBodySize:       DefaultMaxBodySize,
		TorProxyAddress:   DefaultTorProxyAddress,
		TorStartupTimeout: DefaultTorStartupTimeout,
		DBDir:             XDGDataDir(),
		FailOnDead:        true,
	}
}

// XDGDataDir returns the XDG data directory for deadlink.
// On Linux: ~/.local/share/deadlink
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for deadlink.
// On Linux: ~/.config/deadlink
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// XDGCacheDir returns the XDG cache directory for deadlink.
// On Linux: ~/.cache/deadlink
func XDGCacheDir() string {
	return filepath.Join(xdg.CacheHome, AppName)
}

// Validate checks the configuration and returns the first problem found.
//
// Design decision: We validate at the config level rather than at each
// point of use to fail fast and provide clear error messages upfront.
func (c *Config) Validate() error {
	if len(c.Seeds) == 0 {
		return ErrNoTarget
	}
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.MaxAttempts < 1 {
		return ErrInvalidMaxAttempts
	}
	if c.RetryBaseDelay < 0 {
		return ErrInvalidRetryDelay
	}
	if c.Workers <= 0 {
		return ErrInvalidWorkers
	}
	if c.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}
	if c.MaxDepth < 0 || c.MaxPages < 0 {
		return ErrInvalidLimit
	}
	if c.RequestsPerSecond < 0 {
		return ErrInvalidRate
	}
	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}
	if c.MaxBodySize < 0 {
		return ErrInvalidMaxBodySize
	}
	if c.SaveToDB && c.DBDir == "" {
		return ErrNoDBDir
	}
	return nil
}
