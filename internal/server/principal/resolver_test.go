package principal

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bloghive/auth-service/internal/models"
	"github.com/bloghive/auth-service/internal/server/cache"
	"github.com/bloghive/auth-service/internal/server/storage"
	"github.com/bloghive/auth-service/internal/server/storage/sqlite"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func setupResolver(t *testing.T) (*Resolver, *sqlite.Storage, *cache.Memory) {
	t.Helper()

	s, err := sqlite.New(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	mem := cache.NewMemory("test:")
	r := NewResolver(testLogger(), s, mem, time.Hour)
	return r, s, mem
}

func createUser(t *testing.T, s *sqlite.Storage, username, email string) *models.User {
	t.Helper()

	user := &models.User{
		ID:           uuid.New().String(),
		Username:     username,
		Email:        email,
		PasswordHash: "hash",
		Role:         models.RoleUser,
		Enabled:      true,
		CreatedAt:    time.Now(),
	}
	require.NoError(t, s.CreateUser(context.Background(), user))
	return user
}

func TestResolver_ResolveByID_MissThenHit(t *testing.T) {
	ctx := context.Background()
	r, s, mem := setupResolver(t)

	user := createUser(t, s, "alice", "alice@example.com")

	// Первое разрешение — промах кеша, чтение из хранилища
	p, err := r.ResolveByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.ID, p.ID)
	assert.Equal(t, "alice", p.Username)

	// После разрешения запись лежит в кеше под обоими ключами
	res := mem.Get(ctx, cache.TypeUsers, user.ID)
	assert.Equal(t, cache.StatusHit, res.Status)

	res = mem.Get(ctx, cache.TypeUsers, "alice")
	assert.Equal(t, cache.StatusHit, res.Status)
}

func TestResolver_DualKeyCoherence(t *testing.T) {
	ctx := context.Background()
	r, s, _ := setupResolver(t)

	user := createUser(t, s, "bob", "bob@example.com")

	// Разогреваем кеш разрешением по login
	_, err := r.ResolveByLogin(ctx, "bob")
	require.NoError(t, err)

	// Оба пути возвращают идентичные данные даже после удаления из хранилища
	// (доказывает, что чтение идет из кеша, а не из durable источника)
	_, err = s.DB().Exec(`DELETE FROM users WHERE id = ?`, user.ID)
	require.NoError(t, err)

	byID, err := r.ResolveByID(ctx, user.ID)
	require.NoError(t, err)

	byLogin, err := r.ResolveByLogin(ctx, "bob")
	require.NoError(t, err)

	assert.Equal(t, byID, byLogin)
}

func TestResolver_ResolveByLogin_Email(t *testing.T) {
	ctx := context.Background()
	r, s, _ := setupResolver(t)

	user := createUser(t, s, "carol", "carol@example.com")

	p, err := r.ResolveByLogin(ctx, "carol@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, p.ID)
}

func TestResolver_UserNotFound(t *testing.T) {
	ctx := context.Background()
	r, _, _ := setupResolver(t)

	_, err := r.ResolveByID(ctx, uuid.New().String())
	assert.ErrorIs(t, err, storage.ErrUserNotFound)

	_, err = r.ResolveByLogin(ctx, "ghost")
	assert.ErrorIs(t, err, storage.ErrUserNotFound)
}

func TestResolver_PoisonedCacheSelfHeals(t *testing.T) {
	ctx := context.Background()
	r, s, mem := setupResolver(t)

	user := createUser(t, s, "dave", "dave@example.com")

	// Чужой сервис записал под нашим ключом значение другой схемы
	require.NoError(t, mem.Set(ctx, cache.TypeUsers, user.ID, "post/v1",
		map[string]string{"title": "not a user"}, time.Hour))

	// Разрешение не падает: отравленная запись удаляется, читаем из хранилища
	p, err := r.ResolveByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "dave", p.Username)

	// Кеш самовосстановился: теперь под ключом лежит корректная запись
	res := mem.Get(ctx, cache.TypeUsers, user.ID)
	require.Equal(t, cache.StatusHit, res.Status)

	var cached models.User
	require.NoError(t, res.Decode(cache.SchemaUser, &cached))
	assert.Equal(t, user.ID, cached.ID)
}

func TestResolver_CorruptEntryFallsBack(t *testing.T) {
	ctx := context.Background()
	r, s, mem := setupResolver(t)

	user := createUser(t, s, "erin", "erin@example.com")

	mem.SetRaw(cache.TypeUsers, user.ID, []byte("garbage"), time.Hour)

	p, err := r.ResolveByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "erin", p.Username)
}
