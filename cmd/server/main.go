package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"mailtriage/internal/classifier"
	"mailtriage/internal/handler"
	"mailtriage/internal/httpserver"
	"mailtriage/internal/mailsource"
	"mailtriage/internal/repository"
	"mailtriage/internal/scheduler"
	"mailtriage/internal/service/analysis"
	"mailtriage/internal/service/auth"
	"mailtriage/internal/service/brief"
	"mailtriage/internal/service/decision"
	"mailtriage/internal/service/email"
	"mailtriage/internal/service/ingest"
	"mailtriage/internal/service/notify"
	"mailtriage/internal/service/reminder"
	"mailtriage/internal/service/task"
	"mailtriage/migrations"
	"mailtriage/pkg/config"
	"mailtriage/pkg/db"
	"mailtriage/pkg/logger"
	"mailtriage/pkg/mq"
	"mailtriage/pkg/outbox"
	redisclient "mailtriage/pkg/redis"
	"mailtriage/pkg/util"
)

func main() {
	log := logger.NewLogger()
	defer log.Sync()

	cfg, err := config.Load(config.GetConfigEnv(), config.GetEnv("CONFIG_DIR", "config"))
	if err != nil {
		log.Fatal("Failed to load config", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log.Info("Starting mailtriage server...",
		zap.String("db_host", cfg.DB.Host),
		zap.String("port", cfg.Server.Port),
		zap.Bool("ai_enabled", cfg.AI.Enabled),
	)

	// DB
	dbConn, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		log.Fatal("DB initialization failed", zap.Error(err))
	}
	defer dbConn.Close()
	if err := db.Migrate(ctx, dbConn, migrations.FS, log); err != nil {
		log.Fatal("DB migration failed", zap.Error(err))
	}

	// Redis
	rdb, err := redisclient.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		log.Fatal("Redis initialization failed", zap.Error(err))
	}
	defer rdb.Close()

	// MQ Publisher (outbox 投递)
	publisher, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		log.Fatal("Failed to init MQ publisher", zap.Error(err))
	}
	defer publisher.Close()

	// Repositories
	outboxRepo := outbox.NewRepository(dbConn)
	userRepo := repository.NewUserRepository(dbConn)
	emailRepo := repository.NewEmailRepository(dbConn, outboxRepo, log)
	decisionRepo := repository.NewDecisionRepository(dbConn, outboxRepo, log)
	reminderRepo := repository.NewReminderRepository(dbConn, outboxRepo, log)
	taskRepo := repository.NewTaskRepository(dbConn, log)
	notificationRepo := repository.NewNotificationRepository(dbConn)
	briefCache := repository.NewBriefCache(rdb, cfg.Brief.CacheTTL)

	// Classifier
	var gen classifier.TextGenerator = classifier.DisabledGenerator{}
	if cfg.AI.Enabled {
		gen = classifier.NewOpenAIGenerator(cfg.AI, log)
	}
	adapter := classifier.NewAdapter(gen, log).
		WithRetry(cfg.AI.MaxAttempts, cfg.AI.InitialBackoff).
		WithModelVersion(cfg.AI.Model)
	analyzer := analysis.NewAnalyzer(adapter, cfg.AI.Enabled, log)

	// Services
	loc := cfg.Notify.Location()
	pipeline := ingest.NewPipeline(emailRepo, analyzer, log).WithDelay(cfg.Ingest.MessageDelay)
	syncLimiter := util.NewRetryCounter(rdb, cfg.RateLimit.SyncWindow)

	authService := auth.NewService(userRepo, cfg.JWT.Secret, log)
	decisionEngine := decision.NewEngine(decisionRepo, emailRepo, taskRepo, log).
		WithAutoCompleteBatch(cfg.Scheduler.AutoCompleteBatch)
	reminderService := reminder.NewService(reminderRepo, emailRepo, log)
	taskService := task.NewService(taskRepo, emailRepo, log)
	emailService := email.NewService(
		emailRepo,
		mailsource.NewIMAPSource(cfg.Mail, log),
		pipeline,
		syncLimiter,
		decisionEngine,
		adapter,
		reminderService,
		briefCache,
		log,
	).WithSyncLimit(cfg.RateLimit.SyncLimit).
		WithMaxResults(cfg.Ingest.DefaultMaxResults, cfg.Ingest.MaxResultsCap)

	generator := brief.NewGenerator(emailRepo, reminderRepo, log).WithLocation(loc)
	briefService := brief.NewService(generator, briefCache, adapter, emailRepo, taskRepo, log)
	statsService := brief.NewStatsService(
		emailRepo,
		brief.CounterFunc(taskRepo.CountOpen),
		brief.CounterFunc(decisionRepo.CountPending),
		brief.CounterFunc(reminderRepo.CountActive),
	)

	dispatcher := notify.NewDispatcher(notificationRepo, notify.NewExpoNotifier(cfg.Notify, log), log).
		WithDailyCap(cfg.Notify.DailyCap).
		WithLocation(loc)
	settingsService := notify.NewSettingsService(notificationRepo, log)

	// Scheduler
	sched := scheduler.New(log).
		Every(scheduler.JobReminder, cfg.Scheduler.ReminderInterval,
			scheduler.NewReminderJob(reminderService, emailRepo, dispatcher, cfg.Scheduler.ReminderBatch, log)).
		Every(scheduler.JobDecision, cfg.Scheduler.DecisionInterval,
			scheduler.NewDecisionJob(decisionEngine, dispatcher, cfg.Scheduler.DecisionBatch, log))
	sched.Start(ctx)

	// Outbox Dispatcher
	outboxDispatcher := outbox.NewDispatcher(outboxRepo, publisher, log)
	go outboxDispatcher.Start(ctx)

	// Handlers
	router := httpserver.NewRouter(httpserver.Handlers{
		Auth:         handler.NewAuthHandler(authService, log),
		Email:        handler.NewEmailHandler(emailService, log),
		Decision:     handler.NewDecisionHandler(decisionEngine, log),
		Reminder:     handler.NewReminderHandler(reminderService, log),
		Task:         handler.NewTaskHandler(taskService, log),
		Dashboard:    handler.NewDashboardHandler(briefService, statsService, log),
		Notification: handler.NewNotificationHandler(settingsService, log),
		Admin:        handler.NewAdminHandler(outbox.NewReplayService(outboxRepo, publisher, log), log),
	}, cfg.JWT.Secret, dbConn, log)

	srv := router.Server(":" + cfg.Server.Port)
	go func() {
		log.Info("HTTP server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down mailtriage server gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}

	// 停止定时任务与 outbox，等待进行中的 tick 完成
	cancel()
	sched.Wait()

	log.Info("mailtriage server shutdown complete")
}
