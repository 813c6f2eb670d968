package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/bloghive/auth-service/internal/models"
	"github.com/bloghive/auth-service/internal/server/auth"
	"github.com/bloghive/auth-service/internal/server/middleware"
	"github.com/bloghive/auth-service/internal/server/storage"
	"github.com/bloghive/auth-service/internal/server/token"
	"github.com/bloghive/auth-service/internal/validation"
	"github.com/bloghive/auth-service/pkg/api"
)

// AuthHandler обрабатывает HTTP запросы жизненного цикла сессии
type AuthHandler struct {
	logger  *slog.Logger
	service *auth.Service
}

// NewAuthHandler создает новый handler для аутентификации
func NewAuthHandler(logger *slog.Logger, service *auth.Service) *AuthHandler {
	return &AuthHandler{
		logger:  logger,
		service: service,
	}
}

// Signup обрабатывает POST /api/v1/auth/signup
// Регистрирует пользователя и сразу выдает токены
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "failed to decode signup request", slog.Any("error", err))
		h.sendError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := validation.ValidateUsername(req.Username); err != nil {
		h.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := validation.ValidateEmail(req.Email); err != nil {
		h.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := validation.ValidatePassword(req.Password); err != nil {
		h.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	user, err := h.service.Signup(ctx, req.Username, req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrDuplicateUsername):
			h.sendError(w, "username already taken", http.StatusBadRequest)
		case errors.Is(err, storage.ErrDuplicateEmail):
			h.sendError(w, "email already registered", http.StatusBadRequest)
		default:
			h.logger.ErrorContext(ctx, "failed to create user", slog.Any("error", err))
			h.sendError(w, "internal server error", http.StatusInternalServerError)
		}
		return
	}

	// Сразу выполняем вход: клиент получает сессию без второго запроса
	tokens, err := h.service.Login(ctx, req.Username, req.Password)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to login after signup", slog.Any("error", err))
		h.sendError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	resp := api.SignupResponse{
		User:   userResponse(user),
		Tokens: *tokens,
	}

	h.sendJSON(w, resp, http.StatusCreated)
}

// Login обрабатывает POST /api/v1/auth/login
// Аутентификация по username/email и паролю
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "failed to decode login request", slog.Any("error", err))
		h.sendError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if req.Login == "" || req.Password == "" {
		h.sendError(w, "login and password are required", http.StatusBadRequest)
		return
	}

	tokens, err := h.service.Login(ctx, req.Login, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrAuthenticationFailed) {
			// Единый ответ для неизвестного логина и неверного пароля
			h.sendError(w, "invalid credentials", http.StatusUnauthorized)
			return
		}
		h.logger.ErrorContext(ctx, "login failed", slog.Any("error", err))
		h.sendError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	h.sendJSON(w, tokens, http.StatusOK)
}

// Refresh обрабатывает POST /api/v1/auth/refresh
// Выдает новый access token по refresh токену из тела запроса
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "failed to decode refresh request", slog.Any("error", err))
		h.sendError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if req.RefreshToken == "" {
		h.sendError(w, "refresh_token is required", http.StatusBadRequest)
		return
	}

	tokens, err := h.service.Refresh(ctx, req.RefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrRefreshTokenNotFound):
			h.sendError(w, "refresh token not found", http.StatusNotFound)
		case errors.Is(err, auth.ErrRefreshTokenExpired):
			h.sendError(w, "refresh token expired", http.StatusBadRequest)
		default:
			h.logger.ErrorContext(ctx, "refresh failed", slog.Any("error", err))
			h.sendError(w, "internal server error", http.StatusInternalServerError)
		}
		return
	}

	h.sendJSON(w, tokens, http.StatusOK)
}

// Signout обрабатывает POST /api/v1/auth/signout
// Отзывает все сессии владельца access токена
func (h *AuthHandler) Signout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	accessToken, ok := middleware.BearerToken(r)
	if !ok {
		h.sendError(w, "Authorization header is required", http.StatusUnauthorized)
		return
	}

	if err := h.service.Logout(ctx, accessToken); err != nil {
		if errors.Is(err, token.ErrInvalidToken) {
			h.sendError(w, "invalid or expired access token", http.StatusUnauthorized)
			return
		}
		h.logger.ErrorContext(ctx, "signout failed", slog.Any("error", err))
		h.sendError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// userResponse конвертирует модель в публичное представление
func userResponse(user *models.User) api.UserResponse {
	return api.UserResponse{
		ID:       user.ID,
		Username: user.Username,
		Email:    user.Email,
		Role:     user.Role,
	}
}

// sendJSON отправляет JSON ответ
func (h *AuthHandler) sendJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode JSON response", slog.Any("error", err))
	}
}

// sendError отправляет JSON ответ с ошибкой
func (h *AuthHandler) sendError(w http.ResponseWriter, message string, statusCode int) {
	resp := api.ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
	}
	h.sendJSON(w, resp, statusCode)
}
