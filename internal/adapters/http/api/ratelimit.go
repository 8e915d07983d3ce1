package api

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// userLimiter keeps one token bucket per user. Buckets idle longer than
// limiterIdleTTL are dropped on the next sweep.
type userLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*limiterEntry
	rate      rate.Limit
	burst     int
	now       func() time.Time
	lastSweep time.Time
}

type limiterEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

func newUserLimiter(perSecond float64, burst int) *userLimiter {
	return &userLimiter{
		limiters:  make(map[string]*limiterEntry),
		rate:      rate.Limit(perSecond),
		burst:     burst,
		now:       time.Now,
		lastSweep: time.Now(),
	}
}

// Allow reports whether key may send one more request now.
func (l *userLimiter) Allow(key string) bool {
	now := l.now()
	l.mu.Lock()
	entry, ok := l.limiters[key]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.limiters[key] = entry
	}
	entry.lastAccess = now
	if now.Sub(l.lastSweep) > limiterIdleTTL {
		l.sweep(now)
	}
	limiter := entry.limiter
	l.mu.Unlock()

	return limiter.AllowN(now, 1)
}

// sweep must be called with l.mu held.
func (l *userLimiter) sweep(now time.Time) {
	for k, e := range l.limiters {
		if now.Sub(e.lastAccess) > limiterIdleTTL {
			delete(l.limiters, k)
		}
	}
	l.lastSweep = now
}

func (l *userLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// limiterKey buckets guests by client address.
func limiterKey(userID string, r *http.Request) string {
	if userID != "" {
		return "user:" + userID
	}
	return "guest:" + r.RemoteAddr
}
