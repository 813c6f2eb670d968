package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Значения по умолчанию
const (
	DefaultListenAddr      = ":8080"
	DefaultDatabasePath    = "auth.db"
	DefaultRedisAddr       = "localhost:6379"
	DefaultCacheKeyPrefix  = "bloghive:"
	DefaultIssuer          = "bloghive-auth"
	DefaultAccessTokenTTL  = 15 * time.Minute
	DefaultRefreshTokenTTL = 30 * 24 * time.Hour
	DefaultUserCacheTTL    = 24 * time.Hour
)

// ErrMissingJWTSecret — секрет подписи обязателен, дефолта нет
var ErrMissingJWTSecret = errors.New("JWT_SECRET is required")

// Config содержит конфигурацию сервиса, читается из окружения
type Config struct {
	// HTTP
	ListenAddr string

	// Хранилище
	DatabasePath string

	// Redis / общий кеш
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	CacheKeyPrefix string

	// Токены
	JWTSecret       string
	Issuer          string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	// Кеш пользователей
	UserCacheTTL time.Duration

	// Политики
	RevokeOnLogin bool

	// Окружение: "dev" или "prod", влияет на формат логов
	Env string
}

// Load читает конфигурацию из переменных окружения.
// .env файл подхватывается, если существует; переменные окружения
// имеют приоритет над файлом
func Load(logger *slog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		// Отсутствие .env — нормальная ситуация в проде
		logger.Debug("no .env file loaded", slog.Any("error", err))
	}

	cfg := &Config{
		ListenAddr:     envOr("LISTEN_ADDR", DefaultListenAddr),
		DatabasePath:   envOr("DATABASE_PATH", DefaultDatabasePath),
		RedisAddr:      envOr("REDIS_ADDR", DefaultRedisAddr),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
		CacheKeyPrefix: envOr("CACHE_KEY_PREFIX", DefaultCacheKeyPrefix),
		JWTSecret:      os.Getenv("JWT_SECRET"),
		Issuer:         envOr("JWT_ISSUER", DefaultIssuer),
		Env:            envOr("ENV", "dev"),
	}

	if cfg.JWTSecret == "" {
		return nil, ErrMissingJWTSecret
	}

	var err error
	if cfg.RedisDB, err = envInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.AccessTokenTTL, err = envDuration("ACCESS_TOKEN_TTL", DefaultAccessTokenTTL); err != nil {
		return nil, err
	}
	if cfg.RefreshTokenTTL, err = envDuration("REFRESH_TOKEN_TTL", DefaultRefreshTokenTTL); err != nil {
		return nil, err
	}
	if cfg.UserCacheTTL, err = envDuration("USER_CACHE_TTL", DefaultUserCacheTTL); err != nil {
		return nil, err
	}
	if cfg.RevokeOnLogin, err = envBool("AUTH_REVOKE_ON_LOGIN", false); err != nil {
		return nil, err
	}

	return cfg, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func envBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
