package api

import (
	"github.com/go-chi/chi/v5"
)

// Register mounts every /api route on r
func Register(r chi.Router, live *LiveHandler, analytics *AnalyticsHandler, calls *CallsHandler) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/live", live.HandleLive)
		r.Get("/live/sessions", live.HandleSessions)
		r.Post("/upload", live.HandleUpload)
		r.Get("/analytics", analytics.HandleAnalytics)

		r.Route("/calls", func(r chi.Router) {
			r.Get("/", calls.List)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", calls.Get)
				r.Patch("/", calls.Update)
				r.Delete("/", calls.Delete)
				r.Post("/end", calls.End)
				r.Get("/turns", calls.Turns)
				r.Get("/turns/low-confidence", calls.LowConfidenceTurns)
				r.Get("/emotions", calls.Emotions)
				r.Get("/suggestions", calls.Suggestions)
			})
		})

		r.Patch("/suggestions/{id}", calls.UpdateSuggestion)
	})
}
