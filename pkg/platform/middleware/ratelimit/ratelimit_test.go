package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"semear/pkg/requestcontext"
)

func TestLimiterAllowsBurstThenBlocks(t *testing.T) {
	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	l := New(3, time.Minute)
	l.clock = func() time.Time { return now }

	for i := range 3 {
		assert.True(t, l.Allow("10.0.0.1"), "request %d", i)
	}
	assert.False(t, l.Allow("10.0.0.1"))
	assert.True(t, l.Allow("10.0.0.2"), "keys are independent")

	now = now.Add(20 * time.Second)
	assert.True(t, l.Allow("10.0.0.1"), "one token refills per window/requests")
}

func TestLimiterEvictsIdleKeys(t *testing.T) {
	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	l := New(10, time.Minute)
	l.clock = func() time.Time { return now }

	l.Allow("stale")
	now = now.Add(time.Hour)
	for range 511 {
		l.Allow("fresh")
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.NotContains(t, l.byKey, "stale")
	assert.Contains(t, l.byKey, "fresh")
}

func TestNilLimiterAllows(t *testing.T) {
	var l *Limiter
	assert.Nil(t, New(0, time.Minute))
	assert.True(t, l.Allow("x"))
}

func TestMiddlewareRejectsWith429(t *testing.T) {
	l := New(1, 15*time.Minute)
	h := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	do := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
		req = req.WithContext(requestcontext.WithClientMetadata(req.Context(), "203.0.113.9", "test"))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	require.Equal(t, http.StatusNoContent, do().Code)
	rec := do()
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "900", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "too_many_requests")
}
