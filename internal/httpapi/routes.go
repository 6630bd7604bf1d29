package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/guessgrid/backend/internal/ws"
)

func SetupRoutes(a *API) http.Handler {
	r := chi.NewRouter()

	// Public routes
	r.Post("/sessions", a.CreateSession)
	r.Get("/sessions", a.ListSessions)
	r.Get("/sessions/{code}", a.GetSession)
	r.Get("/sessions/{code}/qr", a.SessionQR)
	r.Get("/healthz", Healthz)
	r.Get("/ws", ws.Handler(a.Hub, a.Log))
	return r
}
