package middleware

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/GearConnect-Official/gearconnect-landing/internal/platform/httpx"
	"github.com/GearConnect-Official/gearconnect-landing/internal/platform/requestctx"
)

const (
	limiterIdle    = 5 * time.Minute
	limiterSweep   = 3 * time.Minute
	rateLimitedMsg = "Too many requests. Please wait a moment and try again."
)

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter applies a token bucket per client IP.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*ipLimiter
	rate     rate.Limit
	burst    int
	now      func() time.Time
}

// NewRateLimiter allows perMinute requests per IP with a burst of the same
// size. A non-positive perMinute disables limiting.
func NewRateLimiter(perMinute int) *RateLimiter {
	rl := &RateLimiter{
		limiters: make(map[string]*ipLimiter),
		rate:     rate.Inf,
		burst:    1,
		now:      time.Now,
	}
	if perMinute > 0 {
		rl.rate = rate.Limit(float64(perMinute) / 60)
		rl.burst = perMinute
	}
	return rl
}

// Run sweeps idle limiters until ctx is cancelled.
func (rl *RateLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(limiterSweep)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.sweep()
		}
	}
}

func (rl *RateLimiter) sweep() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := rl.now()
	for ip, l := range rl.limiters {
		if now.Sub(l.lastSeen) > limiterIdle {
			delete(rl.limiters, ip)
		}
	}
}

func (rl *RateLimiter) limiter(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := rl.now()
	if l, ok := rl.limiters[ip]; ok {
		l.lastSeen = now
		return l.limiter
	}
	limiter := rate.NewLimiter(rl.rate, rl.burst)
	rl.limiters[ip] = &ipLimiter{limiter: limiter, lastSeen: now}
	return limiter
}

// Allow reports whether a request from ip may proceed.
func (rl *RateLimiter) Allow(ip string) bool {
	if rl.rate == rate.Inf {
		return true
	}
	return rl.limiter(ip).AllowN(rl.now(), 1)
}

// Middleware rejects requests over the limit with 429.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !rl.Allow(ip) {
			retryAfter := max(int(1/float64(rl.rate)), 1)
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			requestctx.Logger(r.Context()).Warn("rate limit exceeded", zap.String("remote_ip", ip))
			httpx.WriteError(r.Context(), w, httpx.NewError(http.StatusTooManyRequests, rateLimitedMsg))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP relies on chi's RealIP having rewritten RemoteAddr.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
