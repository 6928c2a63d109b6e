package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// buildRouter constructs the chi mux with all routes wired.
func (g *Gateway) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(g.metrics.countRequests)

	// Public.
	r.Get("/health", g.handleHealth())

	r.Group(func(r chi.Router) {
		if g.config.Token != "" {
			r.Use(authMiddleware(g.config.Token, g.audit))
		}
		r.Get("/status", g.handleStatus())
		if g.metricsHandler != nil {
			r.Handle("/metrics", g.metricsHandler)
		}
		r.Route("/api", func(r chi.Router) {
			r.Get("/tools", g.handleListTools())
			r.Get("/rules", g.handleRules())
			r.Post("/tools/{name}/execute", g.handleExecute())
			if g.approvals != nil {
				r.Get("/approvals", g.handleListApprovals())
				r.Post("/approvals/{id}", g.handleResolveApproval())
			}
		})
	})

	return r
}
