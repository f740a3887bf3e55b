package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/tweet-triage/internal/api/http"
	"github.com/spec-kit/tweet-triage/internal/api/http/handlers"
	"github.com/spec-kit/tweet-triage/internal/auth"
	"github.com/spec-kit/tweet-triage/internal/config"
	"github.com/spec-kit/tweet-triage/internal/engine"
	"github.com/spec-kit/tweet-triage/internal/gateway"
	"github.com/spec-kit/tweet-triage/internal/journal"
	"github.com/spec-kit/tweet-triage/internal/observability"
	"github.com/spec-kit/tweet-triage/internal/persistence"
	"github.com/spec-kit/tweet-triage/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if pg.PoolHandle() != nil && cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	var eventJournal *journal.Journal
	if pool := pg.PoolHandle(); pool != nil {
		eventJournal = journal.New(pool, logger)
	}

	var dedup gateway.DedupCache
	if redis.Ping(ctx) == nil {
		dedup = gateway.NewRedisDedup(redis.Client, time.Duration(cfg.Redis.DedupTTLMin)*time.Minute, logger)
	}

	eng := engine.New(cfg, engine.Options{
		Logger:  logger,
		Dedup:   dedup,
		Journal: eventJournal,
	})
	if err := eng.Start(ctx); err != nil {
		logger.Fatal("failed to start engine", zap.Error(err))
	}
	defer eng.Close()

	agents, err := service.NewAgentService(cfg.Auth)
	if err != nil {
		logger.Fatal("failed to init agent service", zap.Error(err))
	}
	authMiddleware := auth.NewAuthMiddleware(agents.TokenManager(), agents)

	appMetrics := observability.NewMetrics()

	app := fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		DisableStartupMessage: cfg.App.Env == "production",
	})
	httptransport.RegisterMiddlewares(app, logger, appMetrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Messages:       handlers.NewMessagesHandler(eng.Gateway),
		Tickets:        handlers.NewTicketsHandler(eng.Store, eng.Classifier),
		Agents:         handlers.NewAgentsHandler(agents),
		Metrics:        handlers.NewMetricsHandler(eng.Metrics),
		Alerts:         handlers.NewAlertsHandler(eng.AlertLog),
		AuthMiddleware: authMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
	cancel()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
