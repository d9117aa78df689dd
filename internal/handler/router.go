package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/vitalog/healthchat/internal/handler/chat"
	"github.com/vitalog/healthchat/internal/handler/events"
	"github.com/vitalog/healthchat/internal/middleware"
	chatService "github.com/vitalog/healthchat/internal/service/chat"
	"github.com/vitalog/healthchat/pkg/utils"
)

// NewRouter wires the bridge API to the conversation manager.
func NewRouter(mgr *chatService.Manager, logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Metrics)
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)
	r.Use(middleware.CORS)

	chatHandler := chat.New(mgr, logger)
	eventsHandler := events.New(mgr, logger)

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]any{
			"status":  "ok",
			"sending": mgr.Sending(),
		})
	})

	r.Route("/api", func(api chi.Router) {
		chatHandler.RegisterRoutes(api)
		eventsHandler.RegisterRoutes(api)
	})

	return r
}
