package crawler

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// HostLimiter spaces requests to the same host.
//
// Every call to Wait reserves the next free slot for the host under a lock,
// so concurrent workers hitting one host are serialized at least delay apart.
// An optional token bucket caps the sustained request rate per host.
type HostLimiter struct {
	delay time.Duration
	rps   float64

	mu       sync.Mutex
	next     map[string]time.Time
	limiters map[string]*rate.Limiter
}

// NewHostLimiter creates a limiter. A zero delay disables spacing and a
// non-positive rps disables the token bucket.
func NewHostLimiter(delay time.Duration, rps float64) *HostLimiter {
	return &HostLimiter{
		delay:    delay,
		rps:      rps,
		next:     make(map[string]time.Time),
		limiters: make(map[string]*rate.Limiter),
	}
}

// Wait blocks until a request to host is allowed.
func (h *HostLimiter) Wait(ctx context.Context, host string) error {
	if h == nil || host == "" {
		return nil
	}
	host = strings.ToLower(host)

	var sleep time.Duration
	var limiter *rate.Limiter

	h.mu.Lock()
	if h.delay > 0 {
		now := time.Now()
		slot := now
		if n, ok := h.next[host]; ok && n.After(now) {
			slot = n
		}
		h.next[host] = slot.Add(h.delay)
		sleep = slot.Sub(now)
	}
	if h.rps > 0 {
		limiter = h.limiterLocked(host)
	}
	h.mu.Unlock()

	if err := sleepContext(ctx, sleep); err != nil {
		return err
	}
	if limiter != nil {
		return limiter.Wait(ctx)
	}
	return nil
}

func (h *HostLimiter) limiterLocked(host string) *rate.Limiter {
	if l, ok := h.limiters[host]; ok {
		return l
	}
	l := rate.NewLimiter(rate.Limit(h.rps), 1)
	h.limiters[host] = l
	return l
}

// sleepContext pauses for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
