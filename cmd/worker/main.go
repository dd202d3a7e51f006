package main

import (
	"context"
	"os/signal"
	"sync"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/hivelearn/relay/internal/config"
	"github.com/hivelearn/relay/internal/delivery"
	emailsvc "github.com/hivelearn/relay/internal/email/service"
	eventsvc "github.com/hivelearn/relay/internal/events/service"
	"github.com/hivelearn/relay/internal/jobs/domain"
	jobrepo "github.com/hivelearn/relay/internal/jobs/repository"
	"github.com/hivelearn/relay/internal/jobs/worker"
	"github.com/hivelearn/relay/internal/logger"
	"github.com/hivelearn/relay/internal/notify"
	"github.com/hivelearn/relay/internal/version"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logger.New(cfg.AppEnv)
	log.Info().Str("version", version.String()).Int("concurrency", cfg.WorkerConcurrency).Msg("starting worker")

	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
		DB:   cfg.RedisDB,
	})
	defer redisClient.Close()

	store := jobrepo.NewRedis(redisClient, cfg.RetainCompleted, cfg.RetainFailed)
	events := eventsvc.NewLogger(log)

	mailPool := worker.New(store, delivery.NewMail(emailsvc.NewRouter(cfg)), events, worker.Config{
		Kind:         domain.KindMail,
		Concurrency:  cfg.WorkerConcurrency,
		PollInterval: cfg.WorkerPollInterval,
		Lease:        cfg.JobLeaseTTL,
		RetryBase:    cfg.MailRetryBase,
	}, log)

	notifyPool := worker.New(store, delivery.NewNotification(notify.NewWebhook(cfg.NotifyWebhookURL)), events, worker.Config{
		Kind:         domain.KindNotification,
		Concurrency:  cfg.WorkerConcurrency,
		PollInterval: cfg.WorkerPollInterval,
		Lease:        cfg.JobLeaseTTL,
		RetryBase:    cfg.NotifyRetryBase,
	}, log)

	sweeper := worker.NewSweeper(store, []domain.Kind{domain.KindMail, domain.KindNotification}, cfg.SweepInterval, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	wg.Add(3)
	go func() { defer wg.Done(); mailPool.Run(ctx) }()
	go func() { defer wg.Done(); notifyPool.Run(ctx) }()
	go func() { defer wg.Done(); sweeper.Run(ctx) }()
	wg.Wait()

	log.Info().Msg("worker stopped")
}
