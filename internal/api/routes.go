package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SetupRoutes builds the route tree. Webhooks sit outside /api because the
// sending platforms call them directly and authenticate per-tenant by
// signature, not by operator credentials.
func SetupRoutes(h *Handlers) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", h.HealthCheck)

	r.Post("/webhooks/{tenantID}/events", h.ReceiveWebhook)

	r.Route("/api", func(r chi.Router) {
		r.Route("/leads", func(r chi.Router) {
			r.Post("/", h.IngestLead)
			r.Get("/{id}", h.GetLead)
		})

		r.Route("/recovery", func(r chi.Router) {
			r.Get("/mailboxes/{id}", h.GetMailboxRecovery)
			r.Get("/domains/{id}", h.GetDomainRecovery)
			r.Get("/{entityType}/{id}/transitions", h.ListTransitions)
			r.Post("/mailboxes/{id}/resume", h.ResumeMailbox)
		})

		r.Route("/routing-rules", func(r chi.Router) {
			r.Post("/", h.CreateRoutingRule)
			r.Get("/", h.ListRoutingRules)
			r.Put("/{id}", h.UpdateRoutingRule)
			r.Delete("/{id}", h.DeleteRoutingRule)
		})

		r.Route("/dead-letters", func(r chi.Router) {
			r.Get("/", h.ListDeadLetters)
			r.Post("/replay-all", h.ReplayAllDeadLetters)
			r.Post("/{id}/replay", h.ReplayDeadLetter)
		})
	})

	return r
}
