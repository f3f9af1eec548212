package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/gluk-w/claworc/log-viewer/internal/middleware"
)

// NewRouter builds the HTTP surface. Everything under /api/v1 requires
// apiToken when it is set.
func NewRouter(apiToken string) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)

	r.Get("/health", HealthCheck)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RequireToken(apiToken))

		r.Post("/ssh/test", SSHConnectionTest)
		r.Post("/logs/read", ReadRemoteLog)
		r.Post("/logs/discover", DiscoverLogs)

		r.Get("/tails", ListTails)
		r.Post("/tails", StartTail)
		r.Delete("/tails", StopTail)
		r.Get("/tails/{host}/{port}/events", GetTailEvents)

		r.Get("/events", EventsWS)

		r.Get("/connections", ListConnections)
		r.Post("/connections", CreateConnection)
		r.Get("/connections/{id}", GetConnection)
		r.Put("/connections/{id}", UpdateConnection)
		r.Delete("/connections/{id}", DeleteConnection)

		r.Get("/history", GetTailHistory)
		r.Delete("/history", PurgeTailHistory)

		r.Get("/server-logs", GetServerLogs)
		r.Delete("/server-logs", ClearServerLogs)
	})
	return r
}
