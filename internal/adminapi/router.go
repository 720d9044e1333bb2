// Package adminapi is the admin HTTP surface: bearer-JWT-protected read-only
// visibility into registered users, plus health and Prometheus metrics
// endpoints. It never exposes a public key or any secret-derived value.
package adminapi

import (
	"net/http"
	"time"

	"github.com/coldforge/schnorrauth/internal/authstore"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter builds the admin API's chi router. metricsHandler is typically
// promhttp.HandlerFor(reg, promhttp.HandlerOpts{}) bound to the same
// registry internal/metrics/prometheus was constructed with; pass nil to
// omit /metrics entirely (metrics collection disabled).
//
// Routes:
//   - GET /health        - liveness probe, unauthenticated
//   - GET /health/ready  - readiness probe, unauthenticated
//   - GET /metrics       - Prometheus exposition, unauthenticated, if metricsHandler != nil
//   - GET /api/v1/users  - username + device count listing, bearer-protected
func NewRouter(users *authstore.Store, jwtService *JWTService, metricsHandler http.Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(requestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	health := &healthHandler{users: users}
	r.Get("/health", health.liveness)
	r.Get("/health/ready", health.readiness)

	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler)
	}

	usersH := &usersHandler{users: users}
	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(jwtAuth(jwtService))
			r.Get("/users", usersH.list)
		})
	})

	return r
}
