// Package middleware provides HTTP middleware for the gas station.
package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/drsui/gas-station/pkg/logger"
)

// IPRateLimiter enforces the per-IP admission tier. Each client IP gets
// a token bucket sized to the window allowance and refilled evenly over
// the window. This is a smoothed approximation of a per-window cap: a
// full burst plus the steady refill can admit up to roughly twice the
// allowance across one window span, but the sustained rate converges on
// the configured allowance.
type IPRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*ipEntry
	rate     rate.Limit
	burst    int
	disabled bool
	log      *logger.Logger

	onReject func(ip string)
}

type ipEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewIPRateLimiter allows requestsPerWindow requests per client IP over
// the given window.
func NewIPRateLimiter(requestsPerWindow int, window time.Duration, disabled bool, log *logger.Logger) *IPRateLimiter {
	if log == nil {
		log = logger.NewDefault("ratelimit")
	}
	if window <= 0 {
		window = time.Hour
	}
	return &IPRateLimiter{
		limiters: make(map[string]*ipEntry),
		rate:     rate.Limit(float64(requestsPerWindow) / window.Seconds()),
		burst:    requestsPerWindow,
		disabled: disabled,
		log:      log,
	}
}

// OnReject registers a callback fired for every rejected request.
func (rl *IPRateLimiter) OnReject(fn func(ip string)) { rl.onReject = fn }

func (rl *IPRateLimiter) getLimiter(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	entry, ok := rl.limiters[ip]
	if !ok {
		entry = &ipEntry{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.limiters[ip] = entry
	}
	entry.lastSeen = time.Now()
	return entry.limiter
}

// Handler wraps next with the per-IP check.
func (rl *IPRateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl.disabled {
			next.ServeHTTP(w, r)
			return
		}

		ip := ClientIP(r)
		if !rl.getLimiter(ip).Allow() {
			rl.log.WithField("ip", ip).WithField("path", r.URL.Path).Warn("ip rate limit exceeded")
			if rl.onReject != nil {
				rl.onReject(ip)
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]string{
				"error": "ip rate limit exceeded",
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Cleanup drops limiters idle for longer than maxIdle.
func (rl *IPRateLimiter) Cleanup(maxIdle time.Duration) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-maxIdle)
	removed := 0
	for ip, entry := range rl.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(rl.limiters, ip)
			removed++
		}
	}
	return removed
}

// StartCleanup periodically drops idle limiters until stop is closed.
func (rl *IPRateLimiter) StartCleanup(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				rl.Cleanup(2 * interval)
			}
		}
	}()
}

// ClientIP extracts the caller's address, preferring the first entry of
// X-Forwarded-For when a proxy sits in front.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			fwd = fwd[:i]
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
