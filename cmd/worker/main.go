package main

import (
	"affiliate-commission/internal/client"
	"affiliate-commission/internal/config"
	"affiliate-commission/internal/logger"
	"affiliate-commission/internal/notification"
	"affiliate-commission/internal/queue"
	"affiliate-commission/internal/repository"
	"affiliate-commission/internal/service"
	"affiliate-commission/internal/worker"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	db := client.InitDBClient(cfg.Database, log)
	rdb := client.InitRedisClient(cfg.Redis, log)
	defer rdb.Close()

	// the processing list is per host so a restarted worker recovers its own tasks
	consumer, err := os.Hostname()
	if err != nil {
		consumer = "worker"
	}
	payoutQueue := queue.NewRedisQueue(rdb, cfg.Redis.QueueKey, consumer)

	affiliateRepo := repository.NewAffiliateRepository(db)
	orderRepo := repository.NewOrderRepository(db)

	payoutService := service.NewPayoutService(
		affiliateRepo,
		orderRepo,
		payoutQueue,
		client.NewPaypalClient(&cfg.Paypal),
		service.PayoutOptions{
			MaxAttempts:     cfg.Payout.MaxAttempts,
			ProcessingLease: cfg.Payout.ProcessingLease,
		},
		log,
	)

	payoutWorker := worker.NewPayoutWorker(payoutQueue, payoutService, worker.PayoutWorkerOptions{
		Concurrency:   cfg.Payout.Workers,
		RatePerSecond: cfg.Payout.RatePerSecond,
		PollWait:      2 * time.Second,
		RetryDelay:    5 * time.Second,
	}, log)
	reaper := worker.NewReaper(payoutService, cfg.Payout.ReaperSchedule, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return payoutWorker.Run(ctx)
	})
	g.Go(func() error {
		return reaper.Run(ctx)
	})
	if len(cfg.Kafka.Brokers) > 0 {
		mailConsumer := notification.NewConsumer(cfg.Kafka, notification.NewSMTPMailer(cfg.SMTP), log)
		g.Go(func() error {
			return mailConsumer.Run(ctx)
		})
	}

	log.Info("worker process started", zap.String("consumer", consumer))
	if err := g.Wait(); err != nil {
		log.Error("worker process stopped with error", zap.Error(err))
		os.Exit(1)
	}
	log.Info("worker process stopped")
}
