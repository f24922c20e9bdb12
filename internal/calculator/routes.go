package calculator

import "github.com/go-chi/chi/v5"

// RegisterRoutes mounts all calculator endpoints onto the given router
// under the /calculator prefix.
func RegisterRoutes(r chi.Router, h *Handler) {
	r.Route("/calculator", func(r chi.Router) {
		r.Post("/evaluate", h.Evaluate)

		r.Post("/sessions", h.CreateSession)
		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Get("/", h.GetSession)
			r.Delete("/", h.DeleteSession)
			r.Post("/actions", h.Dispatch)
			r.Post("/keys", h.Key)
			r.Post("/batch", h.Batch)
			r.Get("/history", h.History)
			r.Delete("/history", h.ClearHistory)
			r.Post("/history/{index}/restore", h.Restore)
		})
	})
}
