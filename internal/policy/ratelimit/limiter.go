// Package ratelimit throttles requests per source host so crawls stay
// polite towards the music sites.
package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/Amir-4m/music-crawler/internal/metrics"
)

// Config holds rate limiter configuration. Hosts overrides the default
// rate for specific hosts; keys may be bare hosts or full URLs.
type Config struct {
	DefaultRPS   float64
	DefaultBurst int
	Hosts        map[string]float64
}

// Limiter hands out one token bucket per host.
type Limiter struct {
	mu        sync.Mutex
	buckets   map[string]*rate.Limiter
	overrides map[string]rate.Limit
	fallback  rate.Limit
	burst     int
	now       func() time.Time
}

// New creates a Limiter. A non-positive rate disables limiting for the
// hosts it applies to.
func New(cfg Config) *Limiter {
	burst := cfg.DefaultBurst
	if burst <= 0 {
		burst = 1
	}
	l := &Limiter{
		buckets:   make(map[string]*rate.Limiter),
		overrides: make(map[string]rate.Limit, len(cfg.Hosts)),
		fallback:  toLimit(cfg.DefaultRPS),
		burst:     burst,
		now:       time.Now,
	}
	for host, rps := range cfg.Hosts {
		l.overrides[hostKey(host)] = toLimit(rps)
	}
	return l
}

func toLimit(rps float64) rate.Limit {
	if rps <= 0 {
		return rate.Inf
	}
	return rate.Limit(rps)
}

// hostKey folds "www." so both spellings of a site share a bucket.
func hostKey(raw string) string {
	return strings.TrimPrefix(metrics.SanitizeSite(raw), "www.")
}

// Limit reports the rate applied to the URL's host.
func (l *Limiter) Limit(rawURL string) rate.Limit {
	return l.bucket(hostKey(rawURL)).Limit()
}

func (l *Limiter) bucket(host string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.buckets[host]; ok {
		return b
	}
	limit, ok := l.overrides[host]
	if !ok {
		limit = l.fallback
	}
	b := rate.NewLimiter(limit, l.burst)
	l.buckets[host] = b
	return b
}

// Wait blocks until the URL's host has a token or ctx ends.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	host := hostKey(rawURL)
	b := l.bucket(host)
	start := l.now()
	if err := b.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait for %s: %w", host, err)
	}
	if waited := l.now().Sub(start); waited > time.Millisecond {
		metrics.ObserveRateLimitDelay(host, waited)
	}
	return nil
}
