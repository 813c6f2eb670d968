package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/bloghive/auth-service/internal/models"
	"github.com/bloghive/auth-service/internal/server/cache"
	"github.com/bloghive/auth-service/internal/server/principal"
	"github.com/bloghive/auth-service/internal/server/token"
	"github.com/bloghive/auth-service/pkg/api"
)

type contextKey string

// Ключи контекста запроса
const (
	principalKey contextKey = "principal"
	metaKey      contextKey = "request_meta"
)

// RequestMeta — метаданные запроса, сопровождающие principal
type RequestMeta struct {
	RemoteAddr string
	UserAgent  string
}

// PrincipalFromContext возвращает principal текущего запроса.
// ok == false означает анонимный запрос
func PrincipalFromContext(ctx context.Context) (*models.Principal, bool) {
	p, ok := ctx.Value(principalKey).(*models.Principal)
	return p, ok
}

// MetaFromContext возвращает метаданные запроса
func MetaFromContext(ctx context.Context) (RequestMeta, bool) {
	m, ok := ctx.Value(metaKey).(RequestMeta)
	return m, ok
}

// Authenticate создает gateway middleware: извлекает bearer токен,
// проверяет blacklist, валидирует подпись и разрешает principal.
// Никогда не прерывает запрос: любой сбой на любом шаге означает
// анонимный проход дальше, решение об отказе принимает RequireAuth
// или сам обработчик
func Authenticate(
	logger *slog.Logger,
	store cache.Store,
	codec *token.Codec,
	resolver *principal.Resolver,
) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), metaKey, RequestMeta{
				RemoteAddr: r.RemoteAddr,
				UserAgent:  r.UserAgent(),
			})
			r = r.WithContext(ctx)

			tokenString, ok := BearerToken(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			// Blacklist проверяется до криптографической валидации:
			// отозванный токен отвергается, даже если подпись верна.
			// Ошибка проверки трактуется как промах: сбой кеша не должен
			// превращать каждый аутентифицированный запрос в анонимный
			revoked, err := store.Has(ctx, cache.TypeBlacklist, tokenString)
			if err != nil {
				logger.WarnContext(ctx, "blacklist check failed, treating as miss",
					slog.Any("error", err))
				revoked = false
			}
			if revoked {
				logger.DebugContext(ctx, "revoked token presented")
				next.ServeHTTP(w, r)
				return
			}

			claims, err := codec.Verify(tokenString)
			if err != nil {
				logger.DebugContext(ctx, "invalid access token", slog.Any("error", err))
				next.ServeHTTP(w, r)
				return
			}

			user, err := resolver.UserByID(ctx, claims.UserID)
			if err != nil {
				// Токен валиден, но владельца больше нет — анонимный проход
				logger.WarnContext(ctx, "token subject not resolvable",
					slog.String("user_id", claims.UserID), slog.Any("error", err))
				next.ServeHTTP(w, r)
				return
			}

			if !user.Enabled {
				logger.WarnContext(ctx, "disabled user presented valid token",
					slog.String("user_id", user.ID))
				next.ServeHTTP(w, r)
				return
			}

			ctx = context.WithValue(ctx, principalKey, models.NewPrincipal(user))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAuth отклоняет анонимные запросы с 401.
// Вешается на защищенные маршруты поверх Authenticate
func RequireAuth(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := PrincipalFromContext(r.Context()); !ok {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(api.ErrorResponse{
					Error:   "unauthorized",
					Message: "authentication required",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// BearerToken извлекает токен из заголовка Authorization.
// Ожидаемый формат: "Bearer <token>"
func BearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}

	return parts[1], true
}
