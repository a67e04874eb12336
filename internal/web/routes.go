package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/media-dedup/internal/web/handlers"
)

func (s *Server) setupRoutes() {
	ingestHandler := handlers.NewIngestHandler(s.pipeline, s.logger)
	corpusHandler := handlers.NewCorpusHandler(s.corpus, s.logger)

	s.router.Get("/health", handlers.HealthCheck)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", handlers.HealthCheck)

		r.Post("/ingest", ingestHandler.Ingest)
		r.Post("/check", ingestHandler.Check)

		r.Get("/corpus", corpusHandler.List)
	})

	s.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"not found"}`))
	})
}
