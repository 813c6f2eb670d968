package auth

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/bloghive/auth-service/internal/models"
	"github.com/bloghive/auth-service/internal/server/cache"
	"github.com/bloghive/auth-service/internal/server/principal"
	"github.com/bloghive/auth-service/internal/server/storage"
	"github.com/bloghive/auth-service/internal/server/storage/sqlite"
	"github.com/bloghive/auth-service/internal/server/token"
)

const testPassword = "correct-horse-battery"

type testEnv struct {
	service *Service
	storage *sqlite.Storage
	mem     *cache.Memory
	codec   *token.Codec
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func setupService(t *testing.T, cfg Config) *testEnv {
	t.Helper()

	s, err := sqlite.New(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	mem := cache.NewMemory("test:")
	codec := token.NewCodec(token.Config{
		Secret:          []byte("test-secret-key"),
		Issuer:          "bloghive-auth",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 30 * 24 * time.Hour,
	})
	logger := testLogger()
	resolver := principal.NewResolver(logger, s, mem, time.Hour)

	return &testEnv{
		service: NewService(logger, s, s, mem, codec, resolver, cfg),
		storage: s,
		mem:     mem,
		codec:   codec,
	}
}

func signupUser(t *testing.T, env *testEnv, username, email string) *models.User {
	t.Helper()

	user, err := env.service.Signup(context.Background(), username, email, testPassword)
	require.NoError(t, err)
	return user
}

func TestService_Signup(t *testing.T) {
	ctx := context.Background()
	env := setupService(t, Config{})

	user, err := env.service.Signup(ctx, "alice", "alice@example.com", testPassword)
	require.NoError(t, err)

	assert.NotEmpty(t, user.ID)
	assert.Equal(t, "alice", user.Username)
	assert.Equal(t, models.RoleUser, user.Role)
	assert.True(t, user.Enabled)

	// Пароль хранится только в виде bcrypt хеша
	assert.NotEqual(t, testPassword, user.PasswordHash)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(testPassword)))
}

func TestService_Signup_Duplicates(t *testing.T) {
	ctx := context.Background()
	env := setupService(t, Config{})

	signupUser(t, env, "bob", "bob@example.com")

	_, err := env.service.Signup(ctx, "bob", "other@example.com", testPassword)
	assert.ErrorIs(t, err, storage.ErrDuplicateUsername)

	_, err = env.service.Signup(ctx, "other", "bob@example.com", testPassword)
	assert.ErrorIs(t, err, storage.ErrDuplicateEmail)
}

func TestService_Login(t *testing.T) {
	ctx := context.Background()
	env := setupService(t, Config{})

	user := signupUser(t, env, "carol", "carol@example.com")

	resp, err := env.service.Login(ctx, "carol", testPassword)
	require.NoError(t, err)

	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.Equal(t, int64((15 * time.Minute).Seconds()), resp.ExpiresIn)

	// Access token проходит проверку и несет identity пользователя
	claims, err := env.codec.Verify(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, "carol", claims.Username)

	// Refresh токен персистирован в durable хранилище
	record, err := env.storage.GetRefreshToken(ctx, resp.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, record.UserID)

	// И лежит в кеше
	res := env.mem.Get(ctx, cache.TypeRefreshTokens, resp.RefreshToken)
	assert.Equal(t, cache.StatusHit, res.Status)

	// Запись пользователя прогрета под обоими ключами
	res = env.mem.Get(ctx, cache.TypeUsers, user.ID)
	assert.Equal(t, cache.StatusHit, res.Status)
	res = env.mem.Get(ctx, cache.TypeUsers, "carol")
	assert.Equal(t, cache.StatusHit, res.Status)

	// last_login обновлен
	fresh, err := env.storage.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.NotNil(t, fresh.LastLogin)
}

func TestService_Login_ByEmail(t *testing.T) {
	ctx := context.Background()
	env := setupService(t, Config{})

	signupUser(t, env, "dave", "dave@example.com")

	resp, err := env.service.Login(ctx, "dave@example.com", testPassword)
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
}

func TestService_Login_InvalidCredentials(t *testing.T) {
	ctx := context.Background()
	env := setupService(t, Config{})

	signupUser(t, env, "erin", "erin@example.com")

	tests := []struct {
		name     string
		login    string
		password string
	}{
		{"wrong password", "erin", "wrong-password"},
		{"unknown user", "ghost", testPassword},
		{"unknown email", "ghost@example.com", testPassword},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.service.Login(ctx, tt.login, tt.password)
			assert.ErrorIs(t, err, ErrAuthenticationFailed)
		})
	}
}

func TestService_Login_DisabledUser(t *testing.T) {
	ctx := context.Background()
	env := setupService(t, Config{})

	user := signupUser(t, env, "frank", "frank@example.com")

	_, err := env.storage.DB().Exec(`UPDATE users SET enabled = 0 WHERE id = ?`, user.ID)
	require.NoError(t, err)

	_, err = env.service.Login(ctx, "frank", testPassword)
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
}

func TestService_Login_RevokeOnLogin(t *testing.T) {
	ctx := context.Background()
	env := setupService(t, Config{RevokeOnLogin: true})

	user := signupUser(t, env, "grace", "grace@example.com")

	first, err := env.service.Login(ctx, "grace", testPassword)
	require.NoError(t, err)

	second, err := env.service.Login(ctx, "grace", testPassword)
	require.NoError(t, err)

	// Первый refresh токен отозван, второй жив
	_, err = env.storage.GetRefreshToken(ctx, first.RefreshToken)
	assert.ErrorIs(t, err, storage.ErrTokenNotFound)

	res := env.mem.Get(ctx, cache.TypeRefreshTokens, first.RefreshToken)
	assert.Equal(t, cache.StatusMiss, res.Status)

	record, err := env.storage.GetRefreshToken(ctx, second.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, record.UserID)
}

func TestService_Login_ConcurrentSessionsByDefault(t *testing.T) {
	ctx := context.Background()
	env := setupService(t, Config{})

	signupUser(t, env, "heidi", "heidi@example.com")

	first, err := env.service.Login(ctx, "heidi", testPassword)
	require.NoError(t, err)

	_, err = env.service.Login(ctx, "heidi", testPassword)
	require.NoError(t, err)

	// Без RevokeOnLogin предыдущая сессия остается валидной
	_, err = env.storage.GetRefreshToken(ctx, first.RefreshToken)
	require.NoError(t, err)
}

func TestService_Refresh_CacheHit(t *testing.T) {
	ctx := context.Background()
	env := setupService(t, Config{})

	signupUser(t, env, "ivan", "ivan@example.com")

	login, err := env.service.Login(ctx, "ivan", testPassword)
	require.NoError(t, err)

	resp, err := env.service.Refresh(ctx, login.RefreshToken)
	require.NoError(t, err)

	// Refresh строка не ротируется, выдается только новый access token
	assert.Equal(t, login.RefreshToken, resp.RefreshToken)
	assert.NotEmpty(t, resp.AccessToken)

	claims, err := env.codec.Verify(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "ivan", claims.Username)
}

func TestService_Refresh_StoreFallbackBackfillsCache(t *testing.T) {
	ctx := context.Background()
	env := setupService(t, Config{})

	signupUser(t, env, "judy", "judy@example.com")

	login, err := env.service.Login(ctx, "judy", testPassword)
	require.NoError(t, err)

	// Симулируем вытеснение из кеша: запись пропала, durable строка жива
	_, err = env.mem.Delete(ctx, cache.TypeRefreshTokens, login.RefreshToken)
	require.NoError(t, err)

	resp, err := env.service.Refresh(ctx, login.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, login.RefreshToken, resp.RefreshToken)

	// Обратная запись: кеш снова прогрет
	res := env.mem.Get(ctx, cache.TypeRefreshTokens, login.RefreshToken)
	assert.Equal(t, cache.StatusHit, res.Status)
}

func TestService_Refresh_Expired(t *testing.T) {
	ctx := context.Background()
	env := setupService(t, Config{})

	user := signupUser(t, env, "kate", "kate@example.com")

	// Вставляем истекший токен напрямую в хранилище
	expired := &models.RefreshToken{
		Token:     "expired-token",
		UserID:    user.ID,
		ExpiresAt: time.Now().Add(-time.Hour),
		CreatedAt: time.Now().Add(-2 * time.Hour),
	}
	require.NoError(t, env.storage.SaveRefreshToken(ctx, expired))

	_, err := env.service.Refresh(ctx, "expired-token")
	assert.ErrorIs(t, err, ErrRefreshTokenExpired)

	// Ленивая чистка: строка удалена при первом обращении
	_, err = env.storage.GetRefreshToken(ctx, "expired-token")
	assert.ErrorIs(t, err, storage.ErrTokenNotFound)
}

func TestService_Refresh_NotFound(t *testing.T) {
	ctx := context.Background()
	env := setupService(t, Config{})

	_, err := env.service.Refresh(ctx, "no-such-token")
	assert.ErrorIs(t, err, ErrRefreshTokenNotFound)
}

func TestService_Refresh_PoisonedCacheFallsBack(t *testing.T) {
	ctx := context.Background()
	env := setupService(t, Config{})

	signupUser(t, env, "leo", "leo@example.com")

	login, err := env.service.Login(ctx, "leo", testPassword)
	require.NoError(t, err)

	// Портим кешированную запись токена
	env.mem.SetRaw(cache.TypeRefreshTokens, login.RefreshToken, []byte("garbage"), time.Hour)

	// Refresh не падает: деградирует к durable хранилищу
	resp, err := env.service.Refresh(ctx, login.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, login.RefreshToken, resp.RefreshToken)
}

func TestService_Logout(t *testing.T) {
	ctx := context.Background()
	env := setupService(t, Config{})

	signupUser(t, env, "mallory", "mallory@example.com")

	login, err := env.service.Login(ctx, "mallory", testPassword)
	require.NoError(t, err)

	require.NoError(t, env.service.Logout(ctx, login.AccessToken))

	// Access token попал в blacklist
	revoked, err := env.mem.Has(ctx, cache.TypeBlacklist, login.AccessToken)
	require.NoError(t, err)
	assert.True(t, revoked)

	// Все refresh токены пользователя отозваны
	_, err = env.storage.GetRefreshToken(ctx, login.RefreshToken)
	assert.ErrorIs(t, err, storage.ErrTokenNotFound)

	res := env.mem.Get(ctx, cache.TypeRefreshTokens, login.RefreshToken)
	assert.Equal(t, cache.StatusMiss, res.Status)

	// Refresh после logout невозможен
	_, err = env.service.Refresh(ctx, login.RefreshToken)
	assert.ErrorIs(t, err, ErrRefreshTokenNotFound)
}

func TestService_Logout_InvalidToken(t *testing.T) {
	ctx := context.Background()
	env := setupService(t, Config{})

	err := env.service.Logout(ctx, "not-a-jwt")
	assert.ErrorIs(t, err, token.ErrInvalidToken)
}
