package httptransport

import (
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"semear/internal/credential"
	"semear/internal/credential/handler"
	"semear/internal/credential/service"
	"semear/internal/credential/store"
	"semear/internal/did"
	jwttoken "semear/internal/jwt_token"
	"semear/internal/platform/logger"
	"semear/internal/rotation"
	"semear/pkg/platform/middleware/ratelimit"
	"semear/pkg/platform/middleware/requestid"
	"semear/pkg/testutil"
)

func newRouter(t *testing.T, limiter *ratelimit.Limiter) http.Handler {
	t.Helper()
	key, err := did.GenerateKey()
	require.NoError(t, err)
	engine := jwttoken.NewEngine()
	cfg := rotation.MustConfig(rotation.Quadrennial, "router-salt")
	issuer, err := credential.NewIssuer(engine, key, cfg, "Cooperativa Semear")
	require.NoError(t, err)
	verifier, err := credential.NewVerifier(engine, cfg)
	require.NoError(t, err)
	svc, err := service.New(issuer, verifier, store.NewMemory())
	require.NoError(t, err)

	log := logger.Discard()
	return NewRouter(Options{
		Logger:         log,
		AllowedOrigins: []string{"https://cooperativa.semear.app"},
		Limiter:        limiter,
		Metrics:        promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{}),
	}, handler.New(svc, log))
}

func TestMiddlewareChain(t *testing.T) {
	r := newRouter(t, nil)

	rr := testutil.DoRequest(r, testutil.NewRequest(t, http.MethodGet, "/api/health"))
	testutil.AssertStatusOK(t, rr)
	assert.NotEmpty(t, rr.Header().Get(requestid.Header))
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
}

func TestUnknownRouteIsJSON(t *testing.T) {
	r := newRouter(t, nil)

	rr := testutil.DoRequest(r, testutil.NewRequest(t, http.MethodGet, "/nope"))
	testutil.AssertStatusAndError(t, rr, http.StatusNotFound, "not_found")

	rr = testutil.DoRequest(r, testutil.NewRequest(t, http.MethodDelete, "/api/stats"))
	testutil.AssertStatusAndError(t, rr, http.StatusMethodNotAllowed, "method_not_allowed")
}

func TestCORS(t *testing.T) {
	r := newRouter(t, nil)

	req := testutil.NewRequest(t, http.MethodOptions, "/api/credentials")
	req.Header.Set("Origin", "https://cooperativa.semear.app")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := testutil.DoRequest(r, req)
	assert.Equal(t, "https://cooperativa.semear.app", rr.Header().Get("Access-Control-Allow-Origin"))

	req = testutil.NewRequest(t, http.MethodGet, "/api/stats")
	req.Header.Set("Origin", "https://evil.example")
	rr = testutil.DoRequest(r, req)
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimitAppliesToAPI(t *testing.T) {
	r := newRouter(t, ratelimit.New(2, 15*time.Minute))

	for range 2 {
		testutil.AssertStatusOK(t, testutil.DoRequest(r, testutil.NewRequest(t, http.MethodGet, "/api/cooperative")))
	}
	rr := testutil.DoRequest(r, testutil.NewRequest(t, http.MethodGet, "/api/cooperative"))
	testutil.AssertStatusAndError(t, rr, http.StatusTooManyRequests, "too_many_requests")

	testutil.AssertStatusOK(t, testutil.DoRequest(r, testutil.NewRequest(t, http.MethodGet, "/metrics")))
}
