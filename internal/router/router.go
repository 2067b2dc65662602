package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"studyrooms-backend/internal/handlers"
	"studyrooms-backend/internal/middleware"
)

func New(
	jwtAuth *middleware.JWTAuth,
	apiLimiter *middleware.RateLimiter,
	roomHandler *handlers.RoomHandler,
	wsHandler http.HandlerFunc,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {

		// ──── Room Membership Routes ────
		r.Route("/communities/{communityId}/rooms/{roomId}", func(r chi.Router) {
			r.Use(apiLimiter.Middleware)
			r.Use(jwtAuth.Middleware)
			r.Use(chimiddleware.Timeout(15 * time.Second))
			r.Get("/", roomHandler.GetRoom)
			r.Post("/membership", roomHandler.AcquireMembership)
			r.Delete("/membership", roomHandler.ReleaseMembership)
		})

		// ──── WebSocket ────
		r.Get("/ws", wsHandler)
	})

	return r
}
