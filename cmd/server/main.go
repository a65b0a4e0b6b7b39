// Package main is the entry point for the inventory catalog API server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/vyrodovalexey/inventory-catalog/internal/cache"
	"github.com/vyrodovalexey/inventory-catalog/internal/catalog"
	"github.com/vyrodovalexey/inventory-catalog/internal/config"
	"github.com/vyrodovalexey/inventory-catalog/internal/handler"
	"github.com/vyrodovalexey/inventory-catalog/internal/query"
	"github.com/vyrodovalexey/inventory-catalog/internal/server"
	"github.com/vyrodovalexey/inventory-catalog/internal/store"
)

// cachePingTimeout bounds the startup reachability check of the cache backend.
const cachePingTimeout = 5 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Use a basic logger for startup errors
		basicLogger, _ := zap.NewProduction()
		basicLogger.Fatal("failed to load configuration", zap.Error(err))
	}

	// Initialize logger
	logger, err := initLogger(cfg.LogLevel)
	if err != nil {
		basicLogger, _ := zap.NewProduction()
		basicLogger.Fatal("failed to initialize logger", zap.Error(err))
	}
	defer func() {
		_ = logger.Sync()
	}()

	logger.Info("configuration loaded",
		zap.Int("server_port", cfg.ServerPort),
		zap.String("log_level", cfg.LogLevel),
		zap.String("environment", cfg.Environment),
		zap.Duration("shutdown_timeout", cfg.ShutdownTimeout),
		zap.Bool("metrics_enabled", cfg.MetricsEnabled),
		zap.String("store_backend", cfg.StoreBackend),
		zap.String("data_path", cfg.DataPath),
		zap.Bool("file_lock_enabled", cfg.FileLockEnabled),
		zap.String("cache_backend", cfg.CacheBackend),
		zap.Strings("cors_origins", cfg.CORSOrigins),
	)

	itemStore, err := newStore(cfg)
	if err != nil {
		logger.Fatal("failed to create store", zap.Error(err))
	}

	events := handler.NewWebSocketHandler(logger, cfg.CORSOrigins)

	svc := catalog.NewService(itemStore, logger,
		catalog.WithLocker(newLocker(cfg)),
		catalog.WithEngine(query.NewEngine(cfg.Language())),
		catalog.WithNotifier(events),
	)

	responseCache, err := newResponseCache(cfg, svc.LastModified, logger)
	if err != nil {
		logger.Fatal("failed to create response cache", zap.Error(err))
	}
	defer func() {
		if err := responseCache.Close(); err != nil {
			logger.Warn("failed to close response cache", zap.Error(err))
		}
	}()

	srv := server.New(cfg, logger, server.Deps{
		Catalog: svc,
		Cache:   responseCache,
		Events:  events,
	})

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- srv.Start()
	}()

	// Wait for shutdown signal
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("server error", zap.Error(err))
		return 1
	case sig := <-shutdown:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("graceful shutdown failed", zap.Error(err))
			return 1
		}
	}

	logger.Info("server stopped")
	return 0
}

// initLogger initializes a zap logger with the specified log level.
func initLogger(level string) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		zapLevel = zapcore.InfoLevel
	}

	zapConfig := zap.Config{
		Level:       zap.NewAtomicLevelAt(zapLevel),
		Development: false,
		Sampling: &zap.SamplingConfig{
			Initial:    100,
			Thereafter: 100,
		},
		Encoding: "json",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "timestamp",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			FunctionKey:    zapcore.OmitKey,
			MessageKey:     "message",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.LowercaseLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	return zapConfig.Build()
}

// newStore creates the configured collection store.
func newStore(cfg *config.Config) (store.Store, error) {
	st, err := store.New(cfg.StoreBackend, cfg.DataPath)
	if err != nil {
		return nil, fmt.Errorf("creating %s store: %w", cfg.StoreBackend, err)
	}
	return st, nil
}

// newLocker returns the lock that serializes catalog writes.
func newLocker(cfg *config.Config) catalog.Locker {
	if cfg.FileLockEnabled {
		return catalog.NewFileLocker(cfg.LockPath())
	}
	return catalog.NewMutexLocker()
}

// newResponseCache creates the configured response cache. It returns nil
// when caching is disabled. An unreachable Redis server is logged but not
// fatal: lookups are bypassed until it answers.
func newResponseCache(
	cfg *config.Config,
	version cache.VersionFunc,
	logger *zap.Logger,
) (*cache.ResponseCache, error) {
	var backend cache.Backend

	switch cfg.CacheBackend {
	case "none", "":
		logger.Info("response cache disabled")
		return nil, nil
	case "memory":
		logger.Info("response cache: in-memory")
		backend = cache.NewMemoryBackend()
	case "redis":
		logger.Info("response cache: redis", zap.String("addr", cfg.RedisAddr), zap.Int("db", cfg.RedisDB))
		backend = cache.NewRedisBackend(cache.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})

		ctx, cancel := context.WithTimeout(context.Background(), cachePingTimeout)
		defer cancel()
		if err := backend.Ping(ctx); err != nil {
			logger.Warn("redis not reachable, cached routes will compute responses", zap.Error(err))
		}
	default:
		return nil, fmt.Errorf("unknown cache backend: %s", cfg.CacheBackend)
	}

	return cache.NewResponseCache(backend, version, cfg.CacheTTL, logger), nil
}
