package router

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"tabletalk-web/internal/handlers"
	"tabletalk-web/internal/middleware"
	"tabletalk-web/internal/websocket"
)

func New(
	pageHandler *handlers.PageHandler,
	chatHandler *handlers.ChatHandler,
	wsHub *websocket.Hub,
	static http.Handler,
	chatLimiter *middleware.RateLimiter,
	logger *slog.Logger,
	frontendURL string,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.CORS(frontendURL))

	// Health check
	r.Get("/health", handlers.Health)
	r.Get("/healthz", handlers.Health)

	// ──── Page ────
	r.Get("/", pageHandler.Home)
	r.Handle("/static/*", static)

	r.Route("/api", func(r chi.Router) {
		// ──── Chat Proxy ────
		r.Group(func(r chi.Router) {
			if chatLimiter != nil {
				r.Use(chatLimiter.Middleware)
			}
			r.Post("/chat", chatHandler.Stream)
		})

		// ──── Transcript ────
		r.Get("/sessions/{id}/messages", chatHandler.Messages)

		// ──── WebSocket ────
		if wsHub != nil {
			r.Get("/ws", wsHub.HandleWebSocket)
		}
	})

	return r
}
