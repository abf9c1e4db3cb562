package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"mailtriage/internal/mqhandler"
	"mailtriage/internal/repository"
	"mailtriage/internal/service/notify"
	"mailtriage/pkg/config"
	"mailtriage/pkg/db"
	"mailtriage/pkg/logger"
	"mailtriage/pkg/mq"
	redisclient "mailtriage/pkg/redis"
	"mailtriage/pkg/util"
)

const urgentQueue = "email.classified.urgent.q"

func main() {
	log := logger.NewLogger()
	defer log.Sync()

	cfg, err := config.Load(config.GetConfigEnv(), config.GetEnv("CONFIG_DIR", "config"))
	if err != nil {
		log.Fatal("Failed to load config", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log.Info("Starting worker service...")

	// Init DB
	dbConn, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		log.Fatal("DB initialization failed", zap.Error(err))
	}
	defer dbConn.Close()

	// Init Redis
	rdb, err := redisclient.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		log.Fatal("Redis initialization failed", zap.Error(err))
	}
	defer rdb.Close()

	deduper := util.NewDeduper(rdb, 24*time.Hour, log)
	retryCounter := util.NewRetryCounter(rdb, time.Hour)

	// DLQ publisher
	publisher, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		log.Fatal("Failed to init MQ publisher", zap.Error(err))
	}
	defer publisher.Close()

	notificationRepo := repository.NewNotificationRepository(dbConn)
	dispatcher := notify.NewDispatcher(notificationRepo, notify.NewExpoNotifier(cfg.Notify, log), log).
		WithDailyCap(cfg.Notify.DailyCap).
		WithLocation(cfg.Notify.Location())

	urgentHandler := mqhandler.NewUrgentEmailHandler(dispatcher, deduper, retryCounter, publisher, log)

	log.Info("Initializing urgent email consumer", zap.String("queue", urgentQueue))
	consumer, err := mq.NewConsumer(cfg.MQ.URL, urgentQueue, mq.RoutingEmailClassified, log)
	if err != nil {
		log.Fatal("failed to init urgent email consumer", zap.Error(err))
	}
	defer consumer.Close()
	consumer.SetHandler(urgentHandler.HandleEmailClassified)

	go func() {
		if err := consumer.StartConsuming(ctx); err != nil {
			log.Error("urgent email consumer stopped", zap.Error(err))
			cancel()
		}
	}()

	log.Info("Worker is ready to process messages")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}

	log.Info("Shutting down worker service...")
	cancel()
}
