// Package ratelimit applies a token bucket per client IP.
package ratelimit

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	dErrors "semear/pkg/domain-errors"
	"semear/pkg/platform/httputil"
	"semear/pkg/requestcontext"
)

// Limiter holds one bucket per key and periodically evicts idle ones.
type Limiter struct {
	limit   rate.Limit
	burst   int
	window  time.Duration
	idleTTL time.Duration
	clock   func() time.Time

	mu    sync.Mutex
	byKey map[string]*entry
	hits  uint64
}

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// New allows requests per window per key, refilling evenly across the window.
// A burst of the full allowance is permitted.
func New(requests int, window time.Duration) *Limiter {
	if requests <= 0 || window <= 0 {
		return nil
	}
	return &Limiter{
		limit:   rate.Every(window / time.Duration(requests)),
		burst:   requests,
		window:  window,
		idleTTL: 2 * window,
		clock:   time.Now,
		byKey:   make(map[string]*entry),
	}
}

// Allow consumes one token for key. A nil limiter allows everything.
func (l *Limiter) Allow(key string) bool {
	if l == nil || key == "" {
		return true
	}
	now := l.clock()

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.byKey[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.byKey[key] = e
	}
	e.lastSeen = now
	allowed := e.limiter.AllowN(now, 1)

	l.hits++
	if l.hits%512 == 0 {
		cutoff := now.Add(-l.idleTTL)
		for k, v := range l.byKey {
			if v.lastSeen.Before(cutoff) {
				delete(l.byKey, k)
			}
		}
	}
	return allowed
}

// Middleware rejects requests over the limit with 429. It keys on the client
// IP recorded by the metadata middleware.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(requestcontext.ClientIP(r.Context())) {
			w.Header().Set("Retry-After", strconv.Itoa(int(l.window.Seconds())))
			httputil.WriteError(w, dErrors.New(dErrors.CodeTooManyRequests, "muitas requisições, tente novamente mais tarde"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
