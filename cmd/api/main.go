package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/hivelearn/relay/internal/config"
	eventsvc "github.com/hivelearn/relay/internal/events/service"
	jobs "github.com/hivelearn/relay/internal/jobs"
	jobrepo "github.com/hivelearn/relay/internal/jobs/repository"
	"github.com/hivelearn/relay/internal/logger"
	"github.com/hivelearn/relay/internal/platform/ratelimit"
	"github.com/hivelearn/relay/internal/platform/validation"
	quota "github.com/hivelearn/relay/internal/quota"
	qdomain "github.com/hivelearn/relay/internal/quota/domain"
	qrepo "github.com/hivelearn/relay/internal/quota/repository"
	"github.com/hivelearn/relay/internal/version"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logger.New(cfg.AppEnv)
	log.Info().Str("addr", cfg.AppAddr).Str("version", version.String()).Msg("starting api server")

	// Init Postgres (quota ledger)
	pgCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid DATABASE_URL")
	}
	pgPool, err := pgxpool.NewWithConfig(context.Background(), pgCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("unable to create pg pool")
	}
	defer pgPool.Close()

	// Init Redis (durable queue)
	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
		DB:   cfg.RedisDB,
	})
	defer redisClient.Close()

	store := jobrepo.NewRedis(redisClient, cfg.RetainCompleted, cfg.RetainFailed)
	ledger := qrepo.NewPostgres(pgPool, qdomain.Limits{Daily: cfg.DefaultDailyQuota, Monthly: cfg.DefaultMonthlyQuota})
	events := eventsvc.NewLogger(log)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middlewares
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger())
	e.Use(middleware.Secure())

	// Validator
	e.Validator = validation.New()

	// Register domain routes via factories
	jobs.Register(e, store, ledger, events, cfg, ratelimit.NewRedisStore(redisClient))
	quota.Register(e, ledger, cfg)

	// Health endpoint pings DB and Redis
	e.GET("/healthz", func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 500*time.Millisecond)
		defer cancel()

		dbStatus := "ok"
		if err := pgPool.Ping(ctx); err != nil {
			dbStatus = "down"
		}

		queueStatus := "ok"
		if _, err := redisClient.Ping(ctx).Result(); err != nil {
			queueStatus = "down"
		}

		return c.JSON(http.StatusOK, map[string]any{
			"status":  "ok",
			"version": version.String(),
			"time":    time.Now().UTC().Format(time.RFC3339),
			"db":      dbStatus,
			"queue":   queueStatus,
		})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Start server
	go func() {
		if err := e.Start(cfg.AppAddr); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}
	log.Info().Msg("server stopped")
}
