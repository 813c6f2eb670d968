package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bloghive/auth-service/internal/config"
	"github.com/bloghive/auth-service/internal/server/auth"
	"github.com/bloghive/auth-service/internal/server/cache"
	"github.com/bloghive/auth-service/internal/server/handlers"
	"github.com/bloghive/auth-service/internal/server/middleware"
	"github.com/bloghive/auth-service/internal/server/principal"
	"github.com/bloghive/auth-service/internal/server/storage/sqlite"
	"github.com/bloghive/auth-service/internal/server/token"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

const (
	shutdownTimeout = 10 * time.Second
	sweepInterval   = time.Hour

	// Лимит на эндпоинты с учетными данными: защита от перебора паролей
	authRateLimit  = 30
	authRateWindow = time.Minute
)

func main() {
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	bootstrapLogger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	cfg, err := config.Load(bootstrapLogger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := newLogger(cfg.Env)
	slog.SetDefault(logger)

	logger.Info("starting auth service",
		slog.String("version", Version),
		slog.String("env", cfg.Env),
		slog.String("listen_addr", cfg.ListenAddr))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Durable хранилище
	store, err := sqlite.New(ctx, cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("failed to close storage", slog.Any("error", err))
		}
	}()

	// Общий кеш платформы
	redisCache, err := cache.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.CacheKeyPrefix)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	defer func() {
		if err := redisCache.Close(); err != nil {
			logger.Error("failed to close redis", slog.Any("error", err))
		}
	}()

	codec := token.NewCodec(token.Config{
		Secret:          []byte(cfg.JWTSecret),
		Issuer:          cfg.Issuer,
		AccessTokenTTL:  cfg.AccessTokenTTL,
		RefreshTokenTTL: cfg.RefreshTokenTTL,
	})

	resolver := principal.NewResolver(logger, store, redisCache, cfg.UserCacheTTL)
	service := auth.NewService(logger, store, store, redisCache, codec, resolver, auth.Config{
		RevokeOnLogin: cfg.RevokeOnLogin,
	})

	limiter := middleware.NewRateLimiter(authRateLimit, authRateWindow, logger)
	defer limiter.Stop()

	// Фоновая зачистка истекших refresh токенов. Основной механизм —
	// ленивое удаление при обращении, sweep подчищает брошенные сессии
	go sweepExpiredTokens(ctx, logger, store)

	router := handlers.NewRouter(handlers.RouterConfig{
		Logger:      logger,
		Auth:        handlers.NewAuthHandler(logger, service),
		Me:          handlers.NewMeHandler(logger),
		Health:      handlers.NewHealthHandler(logger, store.DB(), Version),
		Gateway:     middleware.Authenticate(logger, redisCache, codec, resolver),
		AuthLimiter: limiter,
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", slog.String("addr", cfg.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

// sweepExpiredTokens периодически удаляет истекшие refresh токены
func sweepExpiredTokens(ctx context.Context, logger *slog.Logger, store *sqlite.Storage) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			count, err := store.DeleteExpiredTokens(ctx)
			if err != nil {
				logger.Warn("expired token sweep failed", slog.Any("error", err))
				continue
			}
			if count > 0 {
				logger.Info("expired tokens swept", slog.Int("count", count))
			}
		}
	}
}

// newLogger выбирает формат логов по окружению:
// JSON в проде, текст в dev
func newLogger(env string) *slog.Logger {
	if env == "prod" {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func printVersion() {
	fmt.Printf("BlogHive Auth Service\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Date: %s\n", BuildDate)
	fmt.Printf("Git Commit: %s\n", GitCommit)
}
