// Command groupjourney starts the HTTP/WebSocket API server: it wires
// together the store, cache, event bus, and outbound notification queue
// described across the service layer and exposes them through pkg/api.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/wayfarian/groupjourney/pkg/api"
	"github.com/wayfarian/groupjourney/pkg/cache"
	"github.com/wayfarian/groupjourney/pkg/config"
	"github.com/wayfarian/groupjourney/pkg/database"
	"github.com/wayfarian/groupjourney/pkg/events"
	"github.com/wayfarian/groupjourney/pkg/external"
	"github.com/wayfarian/groupjourney/pkg/queue"
	"github.com/wayfarian/groupjourney/pkg/services"
	"github.com/wayfarian/groupjourney/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func main() {
	configDir := getEnv("CONFIG_DIR", "./deploy/config")
	envPath := filepath.Join(configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("could not load .env file, continuing with existing environment", "path", envPath, "error", err)
	} else {
		slog.Info("loaded environment file", "path", envPath)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("starting "+version.AppName, "version", version.Full(), "environment", cfg.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := database.NewClient(ctx, cfg.Database)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			slog.Error("error closing database client", "error", err)
		}
	}()
	slog.Info("connected to database and applied migrations")

	appCache := buildCache(cfg)

	identity := external.NewJWTIdentityVerifier(cfg.JWTSecret, cfg.TokenMaxAge)

	publisher := events.NewPublisher(dbClient.DB())

	notifierCfg := queue.DefaultConfig()
	notifierCfg.Enabled = cfg.NotifierEnabled
	notifier := queue.NewNotifier(notifierCfg, external.LoggingPushSender{})
	notifier.Start(ctx)
	defer notifier.Stop()

	lifecycle := services.NewLifecycleCoordinator(
		dbClient.Client,
		appCache,
		publisher,
		notifier,
		external.NoopSoloJourneyGuard{},
		external.LoggingJourneyHistoryRecorder{},
		external.NoopAchievementEvaluator{},
	)
	rideEvents := services.NewRideEventService(dbClient.Client, publisher)
	pipeline := services.NewLocationPipeline(dbClient.Client, appCache, publisher)

	catchupQuerier := events.NewRideEventAdapter(rideEvents)
	connManager := events.NewConnectionManager(catchupQuerier, 10*time.Second)
	connManager.SetPostEventer(services.NewSocketPostEventAdapter(rideEvents))

	dsn := connStringFromConfig(cfg.Database)
	notifyListener := events.NewNotifyListener(dsn, connManager)
	if err := notifyListener.Start(ctx); err != nil {
		slog.Error("failed to start notify listener", "error", err)
		os.Exit(1)
	}
	defer notifyListener.Stop(context.Background())
	connManager.SetListener(notifyListener)

	server := api.NewServer(cfg, dbClient, identity, lifecycle, rideEvents, pipeline)
	server.SetConnectionManager(connManager)
	server.SetNotifier(notifier)

	if err := server.ValidateWiring(); err != nil {
		slog.Error("server wiring incomplete", "error", err)
		os.Exit(1)
	}

	addr := ":" + cfg.HTTPPort
	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", addr)
		if err := server.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			slog.Error("http server error", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("error during graceful shutdown", "error", err)
	}
}

// buildCache connects to Redis unless CACHE_DISABLE is set, degrading to the
// no-op Cache on any connection failure rather than failing startup: the
// cache is always an accelerator, never a dependency (spec §4.1).
func buildCache(cfg *config.Config) cache.Cache {
	if cfg.CacheDisable {
		slog.Info("cache disabled by configuration")
		return cache.Disabled{}
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		slog.Warn("invalid REDIS_URL, disabling cache", "error", err)
		return cache.Disabled{}
	}

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		slog.Warn("redis unreachable, disabling cache", "error", err)
		return cache.Disabled{}
	}

	slog.Info("connected to redis cache")
	return cache.NewRedisCache(client, cfg.Environment)
}

// connStringFromConfig builds the libpq-style connection string the
// dedicated LISTEN connection needs, in the same format database.NewClient
// uses for its pgx stdlib DSN.
func connStringFromConfig(dbCfg database.Config) string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		dbCfg.Host, dbCfg.Port, dbCfg.User, dbCfg.Password, dbCfg.Database, dbCfg.SSLMode,
	)
}
