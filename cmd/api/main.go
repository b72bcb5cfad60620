package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"communitydms/api/internal/app"
	"communitydms/api/internal/auth"
	"communitydms/api/internal/authpw"
	"communitydms/api/internal/config"
	"communitydms/api/internal/email"
	"communitydms/api/internal/export"
	"communitydms/api/internal/gitrepo"
	"communitydms/api/internal/markdown"
	"communitydms/api/internal/search"
	"communitydms/api/internal/session"
	"communitydms/api/internal/store"
	"communitydms/api/internal/tasks"
	"communitydms/api/internal/util"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		util.NewLogger("production").Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := util.NewLogger(cfg.Server.Env)
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.Database.URL, store.PoolOptions{
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		logger.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := store.ApplyMigrations(cfg.Database.URL, logger); err != nil {
		logger.Error("migrations failed", "error", err)
		os.Exit(1)
	}
	dataStore := store.NewPostgresStore(db)

	deps := app.Deps{
		Store:     dataStore,
		Tokens:    auth.NewTokenService(cfg.JWT.Secret, cfg.JWT.Expiry),
		Passwords: authpw.NewService(dataStore),
		Markdown:  markdown.NewRenderer(),
		BaseURL:   cfg.Server.BaseURL,
		Logger:    logger,
	}

	var exportOpts []export.Option
	exportOpts = append(exportOpts, export.WithLogger(logger))

	if cfg.Redis.URL != "" {
		redisStore, err := session.NewRedisStore(cfg.Redis.URL)
		if err != nil {
			logger.Error("redis connection failed", "error", err)
			os.Exit(1)
		}
		defer redisStore.Close()
		deps.Revocations = redisStore
		exportOpts = append(exportOpts, export.WithCache(export.NewRedisCache(redisStore.Client(), cfg.PDF.CacheTTL)))

		queue, err := tasks.NewQueue(cfg.Redis.URL)
		if err != nil {
			logger.Error("job queue setup failed", "error", err)
			os.Exit(1)
		}
		defer queue.Close()
		deps.Mailer = queue
		logger.Info("using redis for token revocation, pdf cache and mail queue")
	} else {
		deps.Mailer = email.NewService(email.Config{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
			FromName: cfg.SMTP.FromName,
		})
		logger.Info("redis not configured, token revocation is per process and mail is sent inline")
	}

	if cfg.Storage.Endpoint != "" {
		archive, err := export.NewMinioArchive(ctx, cfg.Storage.Endpoint, cfg.Storage.AccessKey, cfg.Storage.SecretKey, cfg.Storage.Bucket, cfg.Storage.UseSSL)
		if err != nil {
			logger.Warn("pdf archive disabled", "error", err)
		} else {
			exportOpts = append(exportOpts, export.WithArchive(archive))
		}
	}

	var printer export.Printer
	chrome, err := export.NewChromePDFRenderer(cfg.PDF.Timeout)
	if err != nil {
		logger.Warn("pdf generation disabled", "error", err)
	} else {
		printer = chrome
	}
	deps.Export = export.NewService(deps.Markdown, printer, exportOpts...)

	if cfg.Git.MirrorPath != "" {
		if err := os.MkdirAll(cfg.Git.MirrorPath, 0o755); err != nil {
			logger.Error("failed to create git mirror dir", "error", err)
			os.Exit(1)
		}
		deps.Mirror = gitrepo.New(cfg.Git.MirrorPath)
	}

	var searchService *search.Service
	if cfg.Meili.URL != "" {
		meiliClient := search.NewMeili(cfg.Meili.URL, cfg.Meili.APIKey, logger)
		defer meiliClient.Close()
		searchService = search.NewService(meiliClient, search.NewPgFTS(dataStore), logger)
		if err := searchService.ReindexAll(ctx); err != nil {
			logger.Warn("initial reindex failed", "error", err)
		}
	} else {
		searchService = search.NewService(nil, search.NewPgFTS(dataStore), logger)
	}
	deps.Search = searchService

	service := app.New(deps)
	httpServer := app.NewHTTPServer(service, app.HTTPConfig{
		CORSOrigins: cfg.Server.CORSOrigins,
		Development: cfg.IsDevelopment(),
		Logger:      logger,
	})
	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("api listening", "addr", cfg.Server.Addr(), "env", cfg.Server.Env)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	service.Wait()
	searchService.Wait()
	logger.Info("api stopped")
}
