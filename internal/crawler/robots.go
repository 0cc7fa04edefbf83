package crawler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
)

// RobotsChecker decides whether an internal URL may be crawled.
type RobotsChecker interface {
	Allowed(ctx context.Context, rawURL string) bool
}

const (
	// defaultRobotsTTL is how long fetched rules stay cached.
	defaultRobotsTTL = 30 * time.Minute

	// defaultRobotsTimeout bounds one robots.txt fetch.
	defaultRobotsTimeout = 10 * time.Second
)

// RobotsAgent evaluates robots.txt rules with a per-host cache.
// Fetch or parse failures allow everything.
type RobotsAgent struct {
	client    *http.Client
	userAgent string
	ttl       time.Duration
	timeout   time.Duration
	logger    *slog.Logger

	mu    sync.Mutex
	cache map[string]robotsEntry
}

type robotsEntry struct {
	fetched time.Time
	rules   *robotstxt.RobotsData
}

// RobotsOption configures a RobotsAgent.
type RobotsOption func(*RobotsAgent)

// WithRobotsTimeout bounds each robots.txt fetch. A slow or silent server
// then counts as unavailable and allows everything.
func WithRobotsTimeout(d time.Duration) RobotsOption {
	return func(a *RobotsAgent) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// NewRobotsAgent creates an agent that fetches robots.txt with client.
func NewRobotsAgent(client *http.Client, userAgent string, logger *slog.Logger, opts ...RobotsOption) *RobotsAgent {
	if client == nil {
		client = &http.Client{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	a := &RobotsAgent{
		client:    client,
		userAgent: userAgent,
		ttl:       defaultRobotsTTL,
		timeout:   defaultRobotsTimeout,
		logger:    logger,
		cache:     make(map[string]robotsEntry),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Allowed reports whether rawURL may be fetched by this agent.
func (a *RobotsAgent) Allowed(ctx context.Context, rawURL string) bool {
	target, err := url.Parse(rawURL)
	if err != nil || !target.IsAbs() {
		return false
	}

	rules := a.rules(ctx, target)
	if rules == nil {
		return true
	}

	path := target.EscapedPath()
	if path == "" {
		path = "/"
	}
	if target.RawQuery != "" {
		path += "?" + target.RawQuery
	}
	return rules.TestAgent(path, a.agentName())
}

// agentName is the product token of the user agent, which is what robots.txt
// groups are matched against.
func (a *RobotsAgent) agentName() string {
	name := a.userAgent
	if i := strings.IndexAny(name, "/ "); i > 0 {
		name = name[:i]
	}
	if name == "" {
		return "*"
	}
	return name
}

func (a *RobotsAgent) rules(ctx context.Context, target *url.URL) *robotstxt.RobotsData {
	key := strings.ToLower(target.Scheme + "://" + target.Host)

	a.mu.Lock()
	entry, ok := a.cache[key]
	a.mu.Unlock()
	if ok && time.Since(entry.fetched) < a.ttl {
		return entry.rules
	}

	rules, err := a.fetch(ctx, key+"/robots.txt")
	if err != nil {
		a.logger.Debug("robots.txt unavailable, allowing all", "host", target.Host, "error", err)
		if ctx.Err() != nil {
			// The caller gave up; the next crawl may ask again.
			return nil
		}
	}

	a.mu.Lock()
	a.cache[key] = robotsEntry{fetched: time.Now(), rules: rules}
	a.mu.Unlock()
	return rules
}

func (a *RobotsAgent) fetch(ctx context.Context, robotsURL string) (*robotstxt.RobotsData, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build robots request: %w", err)
	}
	if a.userAgent != "" {
		req.Header.Set("User-Agent", a.userAgent)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch robots.txt: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("robots.txt returned status %d", resp.StatusCode)
	}

	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		return nil, fmt.Errorf("parse robots.txt: %w", err)
	}
	return data, nil
}
