// Botte relays messages to the owner's chat: over HTTP, by direct
// invocation, or through the task queue's change stream. It also answers
// the bot's webhook.
//
//	@title						Botte API
//	@version					1.0
//	@description				Relays messages to the owner's chat and answers bot commands.
//	@BasePath					/
//	@securityDefinitions.apikey	ApiKeyAuth
//	@in							header
//	@name						Authorization
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/botte/botte-service/config"
	_ "github.com/botte/botte-service/docs"
	"github.com/botte/botte-service/internal/bot"
	"github.com/botte/botte-service/internal/database"
	"github.com/botte/botte-service/internal/handlers"
	"github.com/botte/botte-service/internal/idempotency"
	"github.com/botte/botte-service/internal/logging"
	"github.com/botte/botte-service/internal/middleware"
	"github.com/botte/botte-service/internal/relay"
	"github.com/botte/botte-service/internal/stream"
	"github.com/botte/botte-service/internal/sweepers"
	"github.com/botte/botte-service/internal/taskqueue"
	"github.com/botte/botte-service/internal/telegram"
	"github.com/botte/botte-service/internal/telemetry"
	"github.com/botte/botte-service/internal/version"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Logging, os.Stdout, "botte-service")

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("Botte stopped")
	}
	logger.Info().Msg("Server exited")
}

func run(cfg *config.Config, logger *zerolog.Logger) error {
	logger.Info().Str("version", version.Version).Str("environment", string(cfg.Environment)).Msg("Starting Botte")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.ConfigFrom(cfg, version.Version))
	if err != nil {
		return fmt.Errorf("failed to init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Telemetry shutdown failed")
		}
	}()

	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL not set")
	}
	if err := database.Connect(ctx, cfg.Database); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()
	logger.Info().Msg("Database connected")

	if err := taskqueue.Migrate(ctx, database.Pool()); err != nil {
		return fmt.Errorf("failed to migrate task queue: %w", err)
	}
	queue := taskqueue.New(database.Pool())

	var guard relay.DeliveryGuard
	if cfg.Redis.Addr != "" {
		rdb, err := idempotency.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer rdb.Close()
		guard = idempotency.New(rdb, cfg.Redis.KeyPrefix)
		logger.Info().Str("addr", cfg.Redis.Addr).Msg("Delivery guard enabled")
	} else {
		logger.Warn().Msg("REDIS_ADDR not set, stream delivery is not de-duplicated")
	}

	bots := telegram.NewClient(cfg.Telegram, cfg.TelegramToken())
	var sender relay.Sender = bots
	if cfg.Telegram.BreakerFailures > 0 {
		sender = relay.NewBreakerSender(bots, cfg.Telegram.BreakerFailures, cfg.Telegram.BreakerResetTimeout, logger)
	}
	r := relay.New(sender, cfg.Telegram.ChatID, guard, logger)
	b, err := bot.New(bots, cfg.Telegram.ChatID, logger)
	if err != nil {
		return err
	}

	listener := stream.NewListener(database.Pool(), r, stream.Config{
		ConsumerName: cfg.Queue.ConsumerName,
		EventNames:   cfg.Queue.EventNames,
		BatchSize:    cfg.Queue.BatchSize,
		BatchWindow:  cfg.Queue.BatchWindow,
		PollInterval: cfg.Queue.PollInterval,
	}, logger)
	sweeper := sweepers.NewExpirationSweeper(queue, logger, cfg.Queue.SweepInterval, cfg.Queue.StreamRetention)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      newRouter(cfg, logger, r, b),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", srv.Addr).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return listener.Run(gctx)
	})
	g.Go(func() error {
		sweeper.Start(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Server forced to shutdown")
		}
		return nil
	})

	return g.Wait()
}

func newRouter(cfg *config.Config, logger *zerolog.Logger, r *relay.Relay, b *bot.Bot) *gin.Engine {
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.Base(logger)...)
	router.NoRoute(handlers.NotFound)

	h := &handlers.Handlers{
		Messages: r,
		Invoker:  r,
		Stream:   r,
		Updates:  b,
		Database: database.Status,
		Stats:    database.Stats,
		Logger:   logger,
	}
	h.Register(router, middleware.Protected(cfg.Auth, cfg.AuthToken(), middleware.RateLimiterConfig{
		RequestsPerSecond: cfg.Server.RequestsPerSecond,
		BurstSize:         cfg.Server.Burst,
	})...)
	return router
}
