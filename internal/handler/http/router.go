package http

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/floradistro/pos-checkout/internal/service"
	"github.com/floradistro/pos-checkout/pkg/health"
	"github.com/floradistro/pos-checkout/pkg/httputil"
	"github.com/floradistro/pos-checkout/pkg/middleware"
)

// NewRouter creates a chi router with all checkout routes registered.
func NewRouter(
	orchestrator *service.Orchestrator,
	healthHandler *health.Handler,
	logger *slog.Logger,
	pprofAllowedCIDRs []string,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Tracing("pos-checkout"))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.PrometheusMetrics("pos-checkout"))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())

	// Prometheus metrics
	r.Handle("/metrics", promhttp.Handler())

	// Pprof debug endpoints (IP allowlisted)
	middleware.RegisterPprof(r, pprofAllowedCIDRs, logger)

	// Checkout API endpoints
	checkoutHandler := NewCheckoutHandler(orchestrator, logger)

	r.Route("/api/v1/checkout", func(r chi.Router) {
		r.Use(ContentTypeJSON)

		r.Post("/commit", checkoutHandler.Commit)
		r.Post("/cancel", checkoutHandler.Cancel)
		r.Post("/reset", checkoutHandler.Reset)
		r.Get("/session", checkoutHandler.GetSession)
	})

	return r
}

// ContentTypeJSON rejects requests with a body whose Content-Type is not
// JSON. Requests without a body pass through.
func ContentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength > 0 {
			ct := r.Header.Get("Content-Type")
			if !strings.HasPrefix(ct, "application/json") {
				httputil.WriteJSON(w, http.StatusUnsupportedMediaType, httputil.Response{
					Error: &httputil.ErrorResponse{Code: "UNSUPPORTED_MEDIA_TYPE", Message: "Content-Type must be application/json"},
				})
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
