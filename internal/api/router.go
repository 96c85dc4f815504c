package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/starford/nbpublish/internal/buildservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *buildservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Build records.
	r.Get("/notebooks", h.ListNotebooks)
	r.Get("/notebooks/*", h.GetNotebook)
	r.Get("/sources", h.ListSources)

	// Publishing.
	r.Post("/publish", h.PublishAll)
	r.Post("/publish/{topic}/{name}", h.PublishOne)
	r.Post("/preview", h.Preview)
	r.Get("/rules", h.Rules)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
