package middleware

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	limiterTTL     = 10 * time.Minute
	limiterCleanup = time.Minute
)

type limiterEntry struct {
	l        *rate.Limiter
	lastSeen time.Time
}

// limiterPool holds one token bucket per key; idle buckets are dropped after limiterTTL.
type limiterPool struct {
	mu      sync.Mutex
	m       map[string]*limiterEntry
	rps     rate.Limit
	burst   int
	cleanup sync.Once
	now     func() time.Time
}

func newLimiterPool(rps float64, burst int) *limiterPool {
	if rps <= 0 {
		rps = 20
	}
	if burst <= 0 {
		burst = int(rps) * 2
	}
	return &limiterPool{m: make(map[string]*limiterEntry), rps: rate.Limit(rps), burst: burst, now: time.Now}
}

func (p *limiterPool) allow(key string) bool {
	p.cleanup.Do(func() { go p.cleanupLoop() })
	p.mu.Lock()
	e, ok := p.m[key]
	if !ok {
		e = &limiterEntry{l: rate.NewLimiter(p.rps, p.burst)}
		p.m[key] = e
	}
	e.lastSeen = p.now()
	p.mu.Unlock()
	return e.l.AllowN(e.lastSeen, 1)
}

func (p *limiterPool) evict() {
	cutoff := p.now().Add(-limiterTTL)
	p.mu.Lock()
	defer p.mu.Unlock()
	for k, e := range p.m {
		if e.lastSeen.Before(cutoff) {
			delete(p.m, k)
		}
	}
}

func (p *limiterPool) cleanupLoop() {
	ticker := time.NewTicker(limiterCleanup)
	defer ticker.Stop()
	for range ticker.C {
		p.evict()
	}
}

// RateLimit applies a token bucket per client IP and, for signed-in callers, per user.
// Place it after LoadSession. Rejected requests get 429.
func RateLimit(rps float64, burst int) func(http.Handler) http.Handler {
	byIP := newLimiterPool(rps, burst)
	byUser := newLimiterPool(rps, burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !byIP.allow(clientIP(r)) {
				http.Error(w, "too many requests", http.StatusTooManyRequests)
				return
			}
			if p, ok := GetPrincipal(r.Context()); ok && !byUser.allow("u:"+p.UserID) {
				http.Error(w, "too many requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
