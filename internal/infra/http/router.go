// Package http wires the inbound REST surface: router, middleware stack
// and server lifecycle.
package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vulnwarden/api/internal/config"
	"github.com/vulnwarden/api/internal/infra/http/handler"
	"github.com/vulnwarden/api/internal/infra/http/middleware"
	"github.com/vulnwarden/api/pkg/logger"
)

// Handlers groups everything the router mounts.
type Handlers struct {
	Scans           *handler.ScanHandler
	Vulnerabilities *handler.VulnerabilityHandler
	Reports         *handler.ReportHandler
	Jobs            *handler.JobHandler
	Health          *handler.HealthHandler
}

// NewRouter builds the full route tree.
func NewRouter(cfg *config.Config, h Handlers, rl *middleware.RateLimiter, log *logger.Logger) chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(chimw.CleanPath)
	r.Use(rl.Middleware)
	r.Use(middleware.Decompress())
	r.Use(requestBodyLimit(cfg.Server.MaxBodySize))

	r.Get("/health/live", h.Health.Live)
	r.Get("/health/ready", h.Health.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.Auth, log))

		r.Route("/organisations/{orgID}", func(r chi.Router) {
			r.Use(middleware.RequireOrganisationAccess())

			r.Route("/scans", h.Scans.Routes)
			r.Route("/vulnerabilities", h.Vulnerabilities.Routes)
			r.Route("/reports", h.Reports.Routes)
			r.Route("/jobs", h.Jobs.Routes)
		})

		r.Route("/admin/jobs", func(r chi.Router) {
			r.Use(middleware.RequireStaff())
			h.Jobs.AdminRoutes(r)
		})
	})

	return r
}

func requestBodyLimit(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, limit)
			}
			next.ServeHTTP(w, r)
		})
	}
}
