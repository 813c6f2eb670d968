package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/bloghive/auth-service/internal/models"
	"github.com/bloghive/auth-service/internal/server/cache"
	"github.com/bloghive/auth-service/internal/server/principal"
	"github.com/bloghive/auth-service/internal/server/storage"
	"github.com/bloghive/auth-service/internal/server/token"
	"github.com/bloghive/auth-service/pkg/api"
)

// Ошибки сессионных операций
var (
	// ErrAuthenticationFailed — неверные учетные данные; сообщение не раскрывает,
	// что именно неверно: username или пароль
	ErrAuthenticationFailed = errors.New("invalid credentials")

	// ErrRefreshTokenExpired — срок действия refresh токена истек
	ErrRefreshTokenExpired = errors.New("refresh token expired")

	// ErrRefreshTokenNotFound — refresh токен не найден ни в кеше, ни в хранилище
	ErrRefreshTokenNotFound = errors.New("refresh token not found")
)

// TokenType — значение поля token_type в ответах
const TokenType = "Bearer"

// Config содержит политики сессионных операций
type Config struct {
	// RevokeOnLogin: при входе отзывать все предыдущие refresh токены
	// пользователя. По умолчанию выключено: одновременные сессии
	// с нескольких устройств остаются валидными
	RevokeOnLogin bool
}

// Service реализует жизненный цикл сессии: login, signup, refresh, logout.
// Durable запись всегда выполняется раньше записи в кеш: потеря кеша
// безопасна (промах уходит в хранилище), обратный порядок невозможен
type Service struct {
	logger   *slog.Logger
	users    storage.UserStorage
	tokens   storage.TokenStorage
	store    cache.Store
	codec    *token.Codec
	resolver *principal.Resolver
	cfg      Config
}

// NewService создает новый сервис аутентификации
func NewService(
	logger *slog.Logger,
	users storage.UserStorage,
	tokens storage.TokenStorage,
	store cache.Store,
	codec *token.Codec,
	resolver *principal.Resolver,
	cfg Config,
) *Service {
	return &Service{
		logger:   logger,
		users:    users,
		tokens:   tokens,
		store:    store,
		codec:    codec,
		resolver: resolver,
		cfg:      cfg,
	}
}

// Login аутентифицирует пользователя по username/email и паролю
// и выдает пару access + refresh токенов
func (s *Service) Login(ctx context.Context, login, password string) (*api.TokenResponse, error) {
	user, err := s.resolver.UserByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return nil, ErrAuthenticationFailed
		}
		return nil, fmt.Errorf("failed to resolve user: %w", err)
	}

	if !user.Enabled {
		return nil, ErrAuthenticationFailed
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrAuthenticationFailed
	}

	if s.cfg.RevokeOnLogin {
		s.revokeUserSessions(ctx, user.ID)
	}

	resp, err := s.issueSession(ctx, user)
	if err != nil {
		return nil, err
	}

	// Обновляем last_login; некритичная ошибка — логируем, но не прерываем
	if err := s.users.UpdateLastLogin(ctx, user.ID, time.Now()); err != nil {
		s.logger.WarnContext(ctx, "failed to update last login", slog.Any("error", err))
	}

	s.logger.InfoContext(ctx, "user logged in",
		slog.String("user_id", user.ID),
		slog.String("username", user.Username))

	return resp, nil
}

// Signup регистрирует нового пользователя с ролью по умолчанию.
// Токены не выдает: boundary сразу после успешной регистрации вызывает Login
func (s *Service) Signup(ctx context.Context, username, email, password string) (*models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		ID:           uuid.New().String(),
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		Role:         models.RoleUser,
		Enabled:      true,
		CreatedAt:    time.Now(),
	}

	// Duplicate ошибки (ErrDuplicateUsername / ErrDuplicateEmail) проходят как есть
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "user registered",
		slog.String("user_id", user.ID),
		slog.String("username", username))

	return user, nil
}

// Refresh выдает новый access token по refresh токену.
// Сначала проверяется кеш, при промахе — durable хранилище с обратной
// записью в кеш. Refresh токен не ротируется: строка переиспользуется
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*api.TokenResponse, error) {
	now := time.Now()

	res := s.store.Get(ctx, cache.TypeRefreshTokens, refreshToken)
	switch res.Status {
	case cache.StatusHit:
		var record models.RefreshToken
		if err := res.Decode(cache.SchemaRefreshToken, &record); err != nil {
			// Отравленная запись: удаляем и падаем на durable хранилище
			s.logger.WarnContext(ctx, "poisoned refresh token cache entry", slog.Any("error", err))
			if _, err := s.store.Delete(ctx, cache.TypeRefreshTokens, refreshToken); err != nil {
				s.logger.WarnContext(ctx, "failed to delete poisoned entry", slog.Any("error", err))
			}
			break
		}

		if record.Expired(now) {
			s.expireRefreshToken(ctx, refreshToken)
			return nil, ErrRefreshTokenExpired
		}

		return s.mintAccessToken(ctx, &record)

	case cache.StatusError:
		s.logger.WarnContext(ctx, "refresh token cache read failed, falling back to storage",
			slog.Any("error", res.Err))
	}

	record, err := s.tokens.GetRefreshToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, storage.ErrTokenNotFound) {
			return nil, ErrRefreshTokenNotFound
		}
		return nil, fmt.Errorf("failed to get refresh token: %w", err)
	}

	if record.Expired(now) {
		// Ленивая чистка: истекшая строка удаляется при первом обращении
		s.expireRefreshToken(ctx, refreshToken)
		return nil, ErrRefreshTokenExpired
	}

	// Обратная запись в кеш, TTL = остаток жизни токена
	s.cacheRefreshToken(ctx, record)

	return s.mintAccessToken(ctx, record)
}

// Logout отзывает все сессии владельца токена и помещает сам access token
// в blacklist до его естественного истечения
func (s *Service) Logout(ctx context.Context, accessToken string) error {
	claims, err := s.codec.Verify(accessToken)
	if err != nil {
		return err
	}

	s.revokeUserSessions(ctx, claims.UserID)

	// Запись в blacklist обязана пережить сам токен, иначе отозванный
	// токен снова станет валидным после вытеснения из кеша
	remaining := time.Until(claims.ExpiresAt.Time)
	if remaining > 0 {
		if err := s.store.Set(ctx, cache.TypeBlacklist, accessToken, cache.SchemaRevoked, struct{}{}, remaining); err != nil {
			return fmt.Errorf("failed to blacklist access token: %w", err)
		}
	}

	s.logger.InfoContext(ctx, "user logged out", slog.String("user_id", claims.UserID))

	return nil
}

// issueSession создает refresh токен, персистит его, наполняет кеш
// и выдает access token
func (s *Service) issueSession(ctx context.Context, user *models.User) (*api.TokenResponse, error) {
	accessToken, expiresIn, err := s.codec.Issue(user.ID, user.Username)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	refreshToken, expiresAt, err := s.codec.NewRefreshToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	record := &models.RefreshToken{
		Token:     refreshToken,
		UserID:    user.ID,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now(),
	}

	// Durable запись всегда первая
	if err := s.tokens.SaveRefreshToken(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to save refresh token: %w", err)
	}

	s.cacheRefreshToken(ctx, record)
	s.resolver.CacheUser(ctx, user)

	return &api.TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    TokenType,
		ExpiresIn:    expiresIn,
	}, nil
}

// mintAccessToken выдает новый access token владельцу refresh токена,
// переиспользуя существующую refresh строку
func (s *Service) mintAccessToken(ctx context.Context, record *models.RefreshToken) (*api.TokenResponse, error) {
	user, err := s.resolver.UserByID(ctx, record.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve token owner: %w", err)
	}

	accessToken, expiresIn, err := s.codec.Issue(user.ID, user.Username)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	return &api.TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: record.Token,
		TokenType:    TokenType,
		ExpiresIn:    expiresIn,
	}, nil
}

// cacheRefreshToken кладет запись refresh токена в кеш с TTL = остаток жизни.
// Ошибки глотаются: наполнение кеша — оптимизация, не требование корректности
func (s *Service) cacheRefreshToken(ctx context.Context, record *models.RefreshToken) {
	ttl := time.Until(record.ExpiresAt)
	if ttl <= 0 {
		return
	}

	if err := s.store.Set(ctx, cache.TypeRefreshTokens, record.Token, cache.SchemaRefreshToken, record, ttl); err != nil {
		s.logger.WarnContext(ctx, "failed to cache refresh token", slog.Any("error", err))
	}
}

// expireRefreshToken удаляет истекший refresh токен из кеша и хранилища
func (s *Service) expireRefreshToken(ctx context.Context, refreshToken string) {
	if _, err := s.store.Delete(ctx, cache.TypeRefreshTokens, refreshToken); err != nil {
		s.logger.WarnContext(ctx, "failed to delete expired token from cache", slog.Any("error", err))
	}

	if err := s.tokens.DeleteRefreshToken(ctx, refreshToken); err != nil && !errors.Is(err, storage.ErrTokenNotFound) {
		s.logger.WarnContext(ctx, "failed to delete expired token from storage", slog.Any("error", err))
	}
}

// revokeUserSessions удаляет все refresh токены пользователя
// из durable хранилища и их записи из кеша
func (s *Service) revokeUserSessions(ctx context.Context, userID string) {
	tokens, err := s.tokens.GetUserTokens(ctx, userID)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to list user tokens", slog.Any("error", err))
	}
	for _, t := range tokens {
		if _, err := s.store.Delete(ctx, cache.TypeRefreshTokens, t.Token); err != nil {
			s.logger.WarnContext(ctx, "failed to delete refresh token from cache", slog.Any("error", err))
		}
	}

	count, err := s.tokens.DeleteUserTokens(ctx, userID)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to delete user tokens", slog.Any("error", err))
		return
	}

	s.logger.DebugContext(ctx, "user sessions revoked",
		slog.String("user_id", userID),
		slog.Int("tokens_deleted", count))
}
