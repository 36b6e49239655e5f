package main

import (
	"affiliate-commission/internal/client"
	"affiliate-commission/internal/config"
	"affiliate-commission/internal/logger"
	"affiliate-commission/internal/notification"
	"affiliate-commission/internal/queue"
	"affiliate-commission/internal/repository"
	"affiliate-commission/internal/server"
	"affiliate-commission/internal/service"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
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

	discountClient := client.NewDiscountClient(&cfg.DiscountAPI)
	paypalClient := client.NewPaypalClient(&cfg.Paypal)
	payoutQueue := queue.NewRedisQueue(rdb, cfg.Redis.QueueKey, "api")

	var publisher notification.Publisher
	if len(cfg.Kafka.Brokers) > 0 {
		writer := notification.NewKafkaWriter(cfg.Kafka, log)
		defer writer.Close()
		publisher = notification.NewKafkaPublisher(writer)
	} else {
		log.Warn("no kafka brokers configured, mailing affiliates directly")
		publisher = notification.NewDirectPublisher(notification.NewSMTPMailer(cfg.SMTP), log)
	}

	userRepo := repository.NewUserRepository(db)
	merchantRepo := repository.NewMerchantRepository(db)
	affiliateRepo := repository.NewAffiliateRepository(db)
	orderRepo := repository.NewOrderRepository(db)

	merchantService := service.NewMerchantService(db, userRepo, merchantRepo, log)
	affiliateService := service.NewAffiliateService(
		db,
		userRepo,
		affiliateRepo,
		discountClient,
		publisher,
		log,
	)
	orderService := service.NewOrderService(
		db,
		merchantRepo,
		userRepo,
		affiliateRepo,
		orderRepo,
		affiliateService,
		cfg.Commission.DefaultRate,
		log,
	)
	payoutService := service.NewPayoutService(
		affiliateRepo,
		orderRepo,
		payoutQueue,
		paypalClient,
		service.PayoutOptions{
			MaxAttempts:     cfg.Payout.MaxAttempts,
			ProcessingLease: cfg.Payout.ProcessingLease,
		},
		log,
	)

	serverAddr := cfg.HTTP.Host + ":" + cfg.HTTP.Port

	// Init HTTP server
	srv := server.NewServer(orderService, merchantService, affiliateService, payoutService, log)

	log.Info("starting HTTP server", zap.String("addr", serverAddr))
	go func() {
		if err := srv.Start(serverAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	<-sigChan
	log.Info("signal received, starting graceful shutdown")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}
}
