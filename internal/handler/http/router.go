package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v3"
	"github.com/go-chi/jwtauth/v5"
	"github.com/linkpulse/notifyhub/internal/handler/http/middleware"
	"github.com/linkpulse/notifyhub/internal/pkg/jwt"
)

// RouterConfig holds router-level settings
type RouterConfig struct {
	AllowedOrigins []string
	// InternalAPIKey enables the internal trigger endpoint when set
	InternalAPIKey string
}

func NewRouter(
	cfg RouterConfig,
	logger *slog.Logger,
	JWTService jwt.Service,
	notificationHandler NotificationHandler,
	presenceHandler PresenceHandler,
	wsHandler http.Handler,
) *chi.Mux {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token", middleware.InternalKeyHeader},
		ExposedHeaders:   []string{"Link"},
		MaxAge:           300,
	}))

	r.Use(httplog.RequestLogger(logger, &httplog.Options{
		Level:  slog.LevelDebug,
		Schema: httplog.SchemaECS,
	}))

	r.Use(chiMiddleware.AllowContentEncoding("application/json"))
	r.Use(chiMiddleware.CleanPath)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/"))

	// Socket handshakes authenticate inside the upgrade
	r.Handle("/ws", wsHandler)

	r.Route("/api/v1", func(r chi.Router) {

		// Requires authentication
		r.Group(func(r chi.Router) {
			r.Use(jwtauth.Verifier(JWTService.JWTAuth()))
			r.Use(middleware.AuthRequired(JWTService.JWTAuth()))

			r.Route("/notifications", func(r chi.Router) {
				r.Get("/", notificationHandler.List)
				r.Get("/unread-count", notificationHandler.UnreadCount)
				r.Get("/ws-token", notificationHandler.GetWSToken)
				r.Put("/read-all", notificationHandler.MarkAllAsRead)
				r.Put("/{id}/read", notificationHandler.MarkAsRead)
				r.Delete("/{id}", notificationHandler.Delete)
			})

			r.Get("/presence", presenceHandler.Status)
		})

		// Service to service
		if cfg.InternalAPIKey != "" {
			r.Route("/internal", func(r chi.Router) {
				r.Use(middleware.InternalKeyRequired(cfg.InternalAPIKey))
				r.Post("/notifications", notificationHandler.Create)
			})
		}
	})
	return r
}
