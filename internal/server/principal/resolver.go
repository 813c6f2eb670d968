package principal

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/bloghive/auth-service/internal/models"
	"github.com/bloghive/auth-service/internal/server/cache"
	"github.com/bloghive/auth-service/internal/server/storage"
)

// DefaultUserTTL — время жизни записи пользователя в кеше
const DefaultUserTTL = 24 * time.Hour

// Resolver превращает subject id или login в аутентифицированный Principal.
// Читает через общий кеш (cache-aside): сначала кеш, при промахе — durable
// хранилище с обратной записью под обоими ключами (id и username)
type Resolver struct {
	logger *slog.Logger
	users  storage.UserStorage
	store  cache.Store
	ttl    time.Duration
}

// NewResolver создает новый resolver
// ttl <= 0 заменяется на DefaultUserTTL
func NewResolver(logger *slog.Logger, users storage.UserStorage, store cache.Store, ttl time.Duration) *Resolver {
	if ttl <= 0 {
		ttl = DefaultUserTTL
	}
	return &Resolver{
		logger: logger,
		users:  users,
		store:  store,
		ttl:    ttl,
	}
}

// ResolveByID разрешает principal по user id (путь Authentication Gateway)
func (r *Resolver) ResolveByID(ctx context.Context, userID string) (*models.Principal, error) {
	user, err := r.UserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return models.NewPrincipal(user), nil
}

// ResolveByLogin разрешает principal по username или email (путь login)
func (r *Resolver) ResolveByLogin(ctx context.Context, login string) (*models.Principal, error) {
	user, err := r.UserByLogin(ctx, login)
	if err != nil {
		return nil, err
	}
	return models.NewPrincipal(user), nil
}

// UserByID возвращает полную запись пользователя по id,
// используя кеш как read-through слой
func (r *Resolver) UserByID(ctx context.Context, userID string) (*models.User, error) {
	return r.resolve(ctx, userID, func(ctx context.Context) (*models.User, error) {
		return r.users.GetUserByID(ctx, userID)
	})
}

// UserByLogin возвращает полную запись пользователя по username или email.
// Login, содержащий '@', трактуется как email
func (r *Resolver) UserByLogin(ctx context.Context, login string) (*models.User, error) {
	fetch := func(ctx context.Context) (*models.User, error) {
		if strings.Contains(login, "@") {
			return r.users.GetUserByEmail(ctx, login)
		}
		return r.users.GetUserByUsername(ctx, login)
	}
	return r.resolve(ctx, login, fetch)
}

// resolve — общий путь разрешения: кеш, самовосстановление при порче,
// durable хранилище, обратная запись
func (r *Resolver) resolve(ctx context.Context, key string, fetch func(context.Context) (*models.User, error)) (*models.User, error) {
	res := r.store.Get(ctx, cache.TypeUsers, key)

	switch res.Status {
	case cache.StatusHit:
		var user models.User
		if err := res.Decode(cache.SchemaUser, &user); err == nil {
			return &user, nil
		}
		// Запись чужой схемы или битая — удаляем и падаем на durable источник
		r.logger.WarnContext(ctx, "poisoned cache entry, falling back to storage",
			slog.String("key", key))
		if _, err := r.store.Delete(ctx, cache.TypeUsers, key); err != nil {
			r.logger.WarnContext(ctx, "failed to delete poisoned cache entry", slog.Any("error", err))
		}

	case cache.StatusError:
		// Ошибка кеша никогда не становится ошибкой запроса — деградируем к хранилищу
		r.logger.WarnContext(ctx, "cache read failed, falling back to storage",
			slog.String("key", key), slog.Any("error", res.Err))
		// Битую запись удаляем, чтобы она не отравляла последующие чтения
		if errors.Is(res.Err, cache.ErrCorruptEntry) {
			if _, err := r.store.Delete(ctx, cache.TypeUsers, key); err != nil {
				r.logger.WarnContext(ctx, "failed to delete corrupt cache entry", slog.Any("error", err))
			}
		}
	}

	user, err := fetch(ctx)
	if err != nil {
		return nil, err
	}

	r.CacheUser(ctx, user)
	return user, nil
}

// CacheUser записывает пользователя в кеш под обоими ключами: id и username.
// Gateway резолвит по id на каждом запросе, login — по username;
// оба пути должны попадать в кеш после первого разрешения.
// Ошибки записи логируются и глотаются: наполнение кеша — оптимизация
func (r *Resolver) CacheUser(ctx context.Context, user *models.User) {
	for _, key := range []string{user.ID, user.Username} {
		if err := r.store.Set(ctx, cache.TypeUsers, key, cache.SchemaUser, user, r.ttl); err != nil {
			r.logger.WarnContext(ctx, "failed to cache user",
				slog.String("key", key), slog.Any("error", err))
		}
	}
}
