/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the portal frontend

ROUTE GROUPS:
  /api/work-packages/*    Work package configuration and reads
  /api/models/*           Correction model management
  /api/regularizations/*  Ledger entry workflows
  /api/sync/*             Ingestion triggers (shared-secret protected)

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Sync-Secret"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		// Work package routes
		r.Route("/work-packages", func(r chi.Router) {
			r.Get("/", h.ListWorkPackages)
			r.Post("/", h.SaveWorkPackage)
			r.Get("/{id}", h.GetWorkPackage)

			r.Get("/{id}/periods", h.ListPeriods)
			r.Post("/{id}/periods", h.SavePeriod)

			r.Get("/{id}/assignments", h.ListAssignments)
			r.Post("/{id}/assignments", h.SaveAssignment)

			r.Get("/{id}/regularizations", h.ListRegularizations)
			r.Post("/{id}/regularizations", h.RecordRegularization)

			r.Get("/{id}/consumption", h.GetConsumption)
			r.Get("/{id}/metrics", h.GetMetrics)
			r.Get("/{id}/tm-report", h.GetTMReport)
		})

		// Correction model routes
		r.Route("/models", func(r chi.Router) {
			r.Get("/", h.ListModels)
			r.Post("/", h.SaveModel)
			r.Get("/{code}", h.GetModel)
			r.Post("/{code}/default", h.SetDefaultModel)
		})

		// Regularization workflows
		r.Route("/regularizations", func(r chi.Router) {
			r.Delete("/{id}", h.DeleteRegularization)
			r.Post("/{id}/review", h.MarkRegularizationReviewed)
			r.Post("/{id}/billing-flags", h.SetBillingFlags)
		})

		// Sync triggers
		r.Route("/sync", func(r chi.Router) {
			r.Post("/work-packages/{id}", h.TriggerSync)
			r.Post("/all", h.TriggerSyncAll)
			r.Post("/stop", h.StopSync)
			r.Post("/resume", h.ResumeSync)
			r.Get("/runs", h.ListSyncRuns)
		})
	})

	return r
}
