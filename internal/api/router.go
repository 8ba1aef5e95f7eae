package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"stockwatch/internal/config"
)

// NewRouter builds the inbound HTTP surface (§4.9): add/remove/list items,
// per-user notification prefs, and the admin routes, gated by bearer auth.
func NewRouter(s *Server, cfg config.Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Compress(5))
	r.Use(httprate.LimitByRealIP(60, time.Minute))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", s.Health)

	r.Group(func(r chi.Router) {
		r.Use(authenticate(cfg))

		r.Post("/items", s.AddItem)
		r.Delete("/items/{itemID}", s.RemoveItem)
		r.Get("/items", s.ListItems)
		r.Patch("/users/me/prefs", s.SetUserPrefs)

		r.Group(func(r chi.Router) {
			r.Use(requireAdmin(cfg))

			r.Get("/admin/items", s.AdminListAll)
			r.Post("/admin/items/{itemID}/disable", s.AdminDisableItem)
			r.Post("/admin/ban", s.AdminBan)
		})
	})

	return r
}
