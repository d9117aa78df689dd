package devbackend

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/vitalog/healthchat/internal/middleware"
	"github.com/vitalog/healthchat/pkg/utils"
)

// NewRouter serves the handler under /api. A non-empty token enables the
// bearer check.
func NewRouter(h *Handler, token string, logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Metrics)
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)
	r.Use(middleware.CORS)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(api chi.Router) {
		api.Use(middleware.RequireBearer(token))
		h.RegisterRoutes(api)
	})

	return r
}
