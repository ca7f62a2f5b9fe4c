package api

import (
	"net/http"

	_ "embed"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/medbook/booking-assistant/internal/booking"
	"github.com/medbook/booking-assistant/internal/logging"
)

//go:embed static/index.html
var chatPage []byte

type RouterConfig struct {
	Service *booking.Service
	PgPool  *pgxpool.Pool
	Redis   *redis.Client
	Logger  *logging.Logger
	Env     string
	Version string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// Session endpoints
	r.Post("/api/sessions", createSessionHandler(cfg.Service))
	r.Get("/api/sessions", listSessionsHandler(cfg.Service))
	r.Get("/api/sessions/{id}", getSessionHandler(cfg.Service))
	r.Delete("/api/sessions/{id}", deleteSessionHandler(cfg.Service))

	// Chat endpoints
	r.Post("/api/chat", chatHandler(cfg.Service))
	r.Get("/api/chat-history/{id}", historyHandler(cfg.Service))
	r.Post("/api/cleanup", cleanupHandler(cfg.Service))

	// Real-time chat
	ws := NewWSHandler(cfg.Service, cfg.Logger)
	r.Get("/ws/{id}", ws.Handle)

	// Companion chat page
	r.Get("/", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(chatPage)
	})

	return r
}
