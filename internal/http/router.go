package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"finsight/internal/handlers"
	"finsight/internal/processor"
	"finsight/internal/search"
	"finsight/internal/store"
)

// Deps holds dependencies for the HTTP router.
type Deps struct {
	Processor   *processor.Processor
	Search      *search.Service
	Coordinator *store.Coordinator
}

// NewRouter creates a new HTTP router with the provided dependencies.
func NewRouter(deps *Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(LoggerMiddleware)
	r.Use(CORS)

	processHandler := handlers.NewProcessHandler(deps.Processor)
	searchHandler := handlers.NewSearchHandler(deps.Search)
	healthHandler := handlers.NewHealthHandler(deps.Coordinator)

	r.Route("/api", func(r chi.Router) {
		r.Post("/process", processHandler.Process)
		r.Post("/process/batch", processHandler.Batch)
		r.Post("/search", searchHandler.Search)
		r.Get("/companies", searchHandler.Companies)
		r.Get("/years", searchHandler.Years)
		r.Get("/stats", searchHandler.Stats)
		r.Method(http.MethodGet, "/health", healthHandler)
	})

	return r
}
