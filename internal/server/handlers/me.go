package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/bloghive/auth-service/internal/server/middleware"
	"github.com/bloghive/auth-service/pkg/api"
)

// MeHandler возвращает профиль аутентифицированного пользователя
type MeHandler struct {
	logger *slog.Logger
}

// NewMeHandler создает новый handler профиля
func NewMeHandler(logger *slog.Logger) *MeHandler {
	return &MeHandler{logger: logger}
}

// Me обрабатывает GET /api/v1/me
// Маршрут защищен RequireAuth, principal гарантированно в контексте
func (h *MeHandler) Me(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		// RequireAuth не пропустил бы анонимный запрос сюда
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(api.ErrorResponse{Error: "unauthorized"})
		return
	}

	resp := api.ProfileResponse{
		User: api.UserResponse{
			ID:       p.ID,
			Username: p.Username,
			Email:    p.Email,
			Role:     p.Role,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("failed to encode profile response", slog.Any("error", err))
	}
}
