package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/tryonworks/broker/internal/artifacts"
	"github.com/tryonworks/broker/internal/job"
	"github.com/tryonworks/broker/internal/tryon"
)

func NewRouter(runner *tryon.Runner, store job.JobStore, artifactStore *artifacts.Store) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	h := NewHandlers(runner, store)
	ah := artifacts.NewHandlers(artifactStore)

	r.Get("/", h.Home)
	r.Get("/health", h.Health)
	r.Get("/stats", h.Stats)

	r.Post("/start-tryon", h.StartTryOn)
	r.Get("/status/{jobID}", h.GetStatus)

	// Serve generated images
	r.Get("/static/{filename}", ah.Serve)

	return r
}
