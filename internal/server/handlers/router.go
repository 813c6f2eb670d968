package handlers

import (
	"log/slog"
	"net/http"

	"github.com/bloghive/auth-service/internal/server/middleware"
)

// RouterConfig собирает зависимости HTTP маршрутизатора
type RouterConfig struct {
	Logger      *slog.Logger
	Auth        *AuthHandler
	Me          *MeHandler
	Health      *HealthHandler
	Gateway     func(http.Handler) http.Handler
	AuthLimiter *middleware.RateLimiter
}

// NewRouter строит маршрутизатор сервиса.
// Gateway вешается на все маршруты: он никогда не отклоняет запрос,
// а только кладет principal в контекст. Отказ — ответственность
// RequireAuth на защищенных маршрутах
func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()

	// Публичные маршруты аутентификации под rate limiter:
	// защита от перебора паролей и token guessing
	limited := func(h http.HandlerFunc) http.Handler {
		if cfg.AuthLimiter == nil {
			return h
		}
		return cfg.AuthLimiter.Middleware()(h)
	}

	mux.Handle("POST /api/v1/auth/signup", limited(cfg.Auth.Signup))
	mux.Handle("POST /api/v1/auth/login", limited(cfg.Auth.Login))
	mux.Handle("POST /api/v1/auth/refresh", limited(cfg.Auth.Refresh))
	mux.HandleFunc("POST /api/v1/auth/signout", cfg.Auth.Signout)

	// Защищенные маршруты
	requireAuth := middleware.RequireAuth(cfg.Logger)
	mux.Handle("GET /api/v1/me", requireAuth(http.HandlerFunc(cfg.Me.Me)))

	mux.HandleFunc("GET /api/v1/health", cfg.Health.Health)

	var handler http.Handler = mux
	handler = cfg.Gateway(handler)
	handler = middleware.Logging(cfg.Logger, "/api/v1/health")(handler)
	handler = middleware.Recovery(cfg.Logger)(handler)

	return handler
}
