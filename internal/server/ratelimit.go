// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server

import (
	"log/slog"
	"net"
	"net/http"
	"slices"
	"sync"
	"time"

	"golang.org/x/time/rate"

	wikierr "github.com/sigil-dev/wikiqa/pkg/errors"
)

const (
	defaultMaxVisitors = 10000
	staleVisitorAfter  = 10 * time.Minute
	cleanupInterval    = 5 * time.Minute
)

// RateLimitConfig configures per-IP rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained request rate per IP. Zero disables limiting.
	RequestsPerSecond float64
	Burst             int
	// MaxVisitors caps the number of IPs tracked at once; the least recently
	// seen are evicted on cleanup. Zero means the default of 10000.
	MaxVisitors int
}

// Validate checks that the RateLimitConfig is valid and applies defaults.
func (c *RateLimitConfig) Validate() error {
	if c.RequestsPerSecond < 0 {
		return wikierr.Errorf(wikierr.CodeServerConfigInvalid,
			"rate limit requests per second must not be negative (got %g)", c.RequestsPerSecond)
	}
	if c.RequestsPerSecond > 0 && c.Burst <= 0 {
		return wikierr.Errorf(wikierr.CodeServerConfigInvalid,
			"rate limit burst must be positive when rate is set (got burst=%d, rate=%g)",
			c.Burst, c.RequestsPerSecond)
	}
	if c.MaxVisitors < 0 {
		return wikierr.Errorf(wikierr.CodeServerConfigInvalid,
			"rate limit max visitors must not be negative (got %d)", c.MaxVisitors)
	}
	if c.MaxVisitors == 0 {
		c.MaxVisitors = defaultMaxVisitors
	}
	return nil
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// visitors holds one token bucket per client IP.
type visitors struct {
	cfg RateLimitConfig
	now func() time.Time

	mu      sync.Mutex
	entries map[string]*visitor
}

func newVisitors(cfg RateLimitConfig) *visitors {
	return &visitors{cfg: cfg, now: time.Now, entries: make(map[string]*visitor)}
}

func (v *visitors) allow(ip string) bool {
	now := v.now()

	v.mu.Lock()
	defer v.mu.Unlock()

	e, ok := v.entries[ip]
	if !ok {
		e = &visitor{limiter: rate.NewLimiter(rate.Limit(v.cfg.RequestsPerSecond), v.cfg.Burst)}
		v.entries[ip] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

// cleanup drops stale visitors, then evicts the least recently seen until
// the map is within MaxVisitors.
func (v *visitors) cleanup() {
	now := v.now()

	v.mu.Lock()
	defer v.mu.Unlock()

	type seen struct {
		ip string
		at time.Time
	}
	live := make([]seen, 0, len(v.entries))
	for ip, e := range v.entries {
		if now.Sub(e.lastSeen) > staleVisitorAfter {
			delete(v.entries, ip)
			continue
		}
		live = append(live, seen{ip: ip, at: e.lastSeen})
	}

	if v.cfg.MaxVisitors <= 0 || len(live) <= v.cfg.MaxVisitors {
		return
	}
	slices.SortFunc(live, func(a, b seen) int { return a.at.Compare(b.at) })
	evict := len(live) - v.cfg.MaxVisitors
	for _, s := range live[:evict] {
		delete(v.entries, s.ip)
	}
	slog.Warn("rate limiter visitor map cap enforced",
		"evicted", evict, "max_visitors", v.cfg.MaxVisitors, "remaining", len(v.entries))
}

func (v *visitors) len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.entries)
}

// rateLimitMiddleware enforces per-IP limits, or passes everything through
// when cfg.RequestsPerSecond is zero. Closing done stops the cleanup loop.
func rateLimitMiddleware(cfg RateLimitConfig, done <-chan struct{}) func(http.Handler) http.Handler {
	if cfg.RequestsPerSecond <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}

	vs := newVisitors(cfg)
	go func() {
		ticker := time.NewTicker(cleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				vs.cleanup()
			case <-done:
				return
			}
		}
	}()

	return limitHandler(vs)
}

func limitHandler(vs *visitors) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Limit by IP, not by connection: ephemeral ports would otherwise
			// each get their own bucket.
			ip, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				ip = r.RemoteAddr
			}

			if !vs.allow(ip) {
				slog.Warn("rate limit exceeded", "ip", ip, "path", r.URL.Path)
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", "1")
				w.WriteHeader(http.StatusTooManyRequests)
				if _, err := w.Write([]byte(`{"error":"rate limit exceeded"}`)); err != nil {
					slog.Warn("failed to write rate limit response", "error", err)
				}
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
