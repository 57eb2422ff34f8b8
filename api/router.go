package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"market-chat/auth"
	"market-chat/hub"
	"market-chat/observability"
)

// NewRouter wires the HTTP surface. Everything under /conversations requires
// a resolved identity; /healthz and /debug/stats stay open for probes.
func NewRouter(
	handler *ChatHandler,
	verifier auth.IVerifier,
	registry *hub.Registry,
	metrics *observability.Metrics,
	log *slog.Logger,
) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/debug/stats", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, metrics.Snapshot(registry.ObserverCount()))
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(verifier))

		r.Post("/users/{participant}/messages", handler.SendMessage)

		r.Route("/conversations", func(r chi.Router) {
			r.Post("/", handler.StartConversation)
			r.Get("/", handler.Conversations)
			r.Get("/{id}/messages", handler.History)
			r.Get("/{id}/messages/search", handler.Search)
			r.Get("/{id}/stream", handler.Stream)
		})
	})

	log.Info("router mounted", "routes", []string{
		"POST /users/{participant}/messages",
		"POST /conversations",
		"GET /conversations",
		"GET /conversations/{id}/messages",
		"GET /conversations/{id}/messages/search",
		"GET /conversations/{id}/stream",
	})

	return r
}
