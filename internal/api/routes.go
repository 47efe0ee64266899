package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ignite/automail/internal/tracking"
)

// SetupRoutes configures the full HTTP surface.
func SetupRoutes(h *Handlers, trackingHandler *tracking.Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/", h.HandleRoot)
	r.Get("/health", h.HandleHealth)

	r.Route("/api/mail", func(r chi.Router) {
		r.Get("/", h.HandleMailStatus)
		r.Get("/templates", h.HandleListTemplates)
		r.Post("/templates/reload", h.HandleReloadTemplates)
		r.Post("/preview", h.HandlePreview)
		r.Post("/send", h.HandleSend)
		r.Post("/bulk", h.HandleBulk)
		r.Get("/test", h.HandleMailTest)
	})

	r.Mount("/api/track", trackingHandler.Routes())

	r.Route("/api/sheets", func(r chi.Router) {
		r.Get("/test/connection", h.HandleSheetsTest)
		r.Get("/{sheetID}", h.HandleGetSheet)
	})

	r.Route("/api/auto-send", func(r chi.Router) {
		r.Post("/send", h.HandleAutoSend)
		r.Get("/check/{sheetID}", h.HandleAutoSendCheck)
	})

	return r
}
