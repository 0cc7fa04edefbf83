// Package metrics exposes crawl progress as Prometheus metrics.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nao1215/deadlink/internal/model"
)

const namespace = "deadlink"

// Collector records every resolved page. It implements crawler.Listener.
//
// Design decision: Collector owns a private registry instead of using the
// global default because:
//  1. Tests can create collectors without duplicate registration panics
//  2. Only crawl metrics are exported, not the Go runtime defaults
type Collector struct {
	registry  *prometheus.Registry
	pages     *prometheus.CounterVec
	deadLinks *prometheus.CounterVec
	attempts  prometheus.Counter
	retries   prometheus.Counter
	duration  prometheus.Histogram
}

// NewCollector creates a collector with its own registry.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		pages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_total",
			Help:      "Resolved pages by status.",
		}, []string{"status"}),
		deadLinks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dead_links_total",
			Help:      "Dead URLs by failure kind.",
		}, []string{"kind"}),
		attempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "load_attempts_total",
			Help:      "Page load attempts, including retries.",
		}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_total",
			Help:      "Page load attempts after the first one.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "crawl_duration_seconds",
			Help:      "Wall time of completed crawls.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}),
	}
	c.registry.MustRegister(c.pages, c.deadLinks, c.attempts, c.retries, c.duration)
	return c
}

// Registry returns the registry holding the crawl metrics.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// OnPageVisited implements crawler.Listener.
func (c *Collector) OnPageVisited(page *model.PageResult) {
	c.pages.WithLabelValues(page.Status.String()).Inc()
	if page.Attempts > 0 {
		c.attempts.Add(float64(page.Attempts))
		c.retries.Add(float64(page.Attempts - 1))
	}
	if page.IsDead() {
		c.deadLinks.WithLabelValues(page.Failure.String()).Inc()
	}
}

// ObserveCrawl records the duration of a finished crawl.
func (c *Collector) ObserveCrawl(d time.Duration) {
	c.duration.Observe(d.Seconds())
}

// Handler returns the HTTP handler serving the metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (c *Collector) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return c.serve(ctx, ln)
}

func (c *Collector) serve(ctx context.Context, ln net.Listener) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Debug("metrics server shutdown", "error", err)
		}
	}()

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
