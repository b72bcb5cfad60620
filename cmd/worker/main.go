package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"communitydms/api/internal/config"
	"communitydms/api/internal/email"
	"communitydms/api/internal/store"
	"communitydms/api/internal/tasks"
	"communitydms/api/internal/util"
)

const workerConcurrency = 5

func main() {
	cfg, err := config.Load()
	if err != nil {
		util.NewLogger("production").Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := util.NewLogger(cfg.Server.Env)

	if cfg.Redis.URL == "" {
		logger.Error("worker requires REDIS_URL")
		os.Exit(1)
	}

	db, err := store.Open(context.Background(), cfg.Database.URL, store.PoolOptions{
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		logger.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	dataStore := store.NewPostgresStore(db)

	mailer := email.NewService(email.Config{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
		FromName: cfg.SMTP.FromName,
	})
	if !mailer.IsConfigured() {
		logger.Warn("smtp not configured, queued mail will be dropped")
	}

	server, err := tasks.NewServer(cfg.Redis.URL, workerConcurrency)
	if err != nil {
		logger.Error("job server setup failed", "error", err)
		os.Exit(1)
	}
	mux := asynq.NewServeMux()
	tasks.NewHandler(mailer, dataStore, cfg.Notifications.Retention(), logger).RegisterHandlers(mux)

	queue, err := tasks.NewQueue(cfg.Redis.URL)
	if err != nil {
		logger.Error("job queue setup failed", "error", err)
		os.Exit(1)
	}
	defer queue.Close()

	scheduler, err := tasks.NewScheduler(cfg.Notifications.CleanupSchedule, "notification-cleanup", queue.EnqueueCleanup, logger)
	if err != nil {
		logger.Error("invalid cleanup schedule", "error", err)
		os.Exit(1)
	}

	if err := server.Start(mux); err != nil {
		logger.Error("worker failed to start", "error", err)
		os.Exit(1)
	}
	scheduler.Start()
	logger.Info("worker started", "concurrency", workerConcurrency, "next_cleanup", scheduler.Next())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	scheduler.Stop()
	server.Shutdown()
	logger.Info("worker stopped")
}
