// Package httptransport assembles the public HTTP surface: middleware chain,
// credential routes and the metrics endpoint.
package httptransport

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"semear/internal/credential/handler"
	"semear/internal/platform/tracing"
	dErrors "semear/pkg/domain-errors"
	"semear/pkg/platform/httputil"
	"semear/pkg/platform/middleware/logging"
	"semear/pkg/platform/middleware/metadata"
	"semear/pkg/platform/middleware/ratelimit"
	"semear/pkg/platform/middleware/requestid"
	"semear/pkg/platform/middleware/requesttime"
	"semear/pkg/platform/middleware/security"
)

// Options configures the router. A nil Limiter disables rate limiting.
type Options struct {
	Logger         *slog.Logger
	AllowedOrigins []string
	Limiter        *ratelimit.Limiter
	Metrics        http.Handler
}

// NewRouter wires all public endpoints behind the shared middleware chain.
func NewRouter(opts Options, credentials *handler.Handler) http.Handler {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	r := chi.NewRouter()
	r.Use(
		requestid.Middleware,
		requesttime.Middleware,
		metadata.ClientMetadata,
		tracing.Middleware,
		logging.Middleware(opts.Logger),
		chimw.Recoverer,
		security.Headers,
		corsFor(opts.AllowedOrigins, opts.Logger).Handler,
	)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "rota não encontrada"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method_not_allowed"})
	})

	metricsHandler := opts.Metrics
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	r.Handle("/metrics", metricsHandler)

	r.Group(func(r chi.Router) {
		r.Use(opts.Limiter.Middleware)
		credentials.Register(r)
	})
	return r
}

func corsFor(origins []string, logger *slog.Logger) *cors.Cors {
	o := cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization", requestid.Header},
		ExposedHeaders:   []string{requestid.Header},
		AllowCredentials: true,
	}
	o.Logger = corsLogger{logger}
	return cors.New(o)
}

// corsLogger adapts slog to the Printf-style logger rs/cors expects.
type corsLogger struct {
	logger *slog.Logger
}

func (l corsLogger) Printf(format string, args ...any) {
	l.logger.Debug("cors", "detail", fmt.Sprintf(format, args...))
}
