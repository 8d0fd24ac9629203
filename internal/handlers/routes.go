package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/sshbridge/sshbridge/internal/middleware"
)

// Routes assembles the HTTP surface: a health probe plus the per-user intent
// endpoints behind the allow-list check.
func (a *API) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)

	r.Get("/health", a.HealthCheck)

	r.Route("/api/v1/users/{userID}", func(r chi.Router) {
		r.Use(middleware.RequireAllowedUser)

		r.Post("/connect", a.Connect)
		r.Post("/cancel", a.Cancel)
		r.Post("/text", a.SubmitText)
		r.Post("/execute", a.Execute)
		r.Post("/disconnect", a.Disconnect)
		r.Get("/status", a.Status)
		r.Get("/files", a.ListFiles)
		r.Post("/upload", a.Upload)
		r.Get("/download", a.Download)
		r.Get("/monitors", a.Monitors)
		r.Post("/monitors/{name}", a.RunMonitor)
		r.Get("/stream", a.Stream)
	})

	return r
}
