package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"clubdesk/internal/config"
	"clubdesk/internal/httpserver"
	"clubdesk/internal/logger"
	"clubdesk/internal/realtime"
	"clubdesk/internal/security"
	"clubdesk/internal/service"
	"clubdesk/internal/store"
	"clubdesk/internal/ws"
)

// @title           ClubDesk Messaging API
// @version         1.0
// @description     Member and staff messaging for the club back office.

// @host            localhost:8000
// @BasePath        /api

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	zlog, err := logger.New(cfg.IsProduction(), cfg.Debug)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer zlog.Sync()

	// Initialize database
	repos, err := store.Open(cfg)
	if err != nil {
		zlog.Fatal("failed to open store", zap.String("driver", cfg.DBDriver), zap.Error(err))
	}
	defer repos.DB.Close()

	// Security components
	tokenSvc := security.NewTokenService(cfg.JWTSecret, cfg.AccessTokenTTL())
	encryptor, err := security.NewEncryptor([]byte(cfg.EncryptKey))
	if err != nil {
		zlog.Fatal("failed to initialize encryptor", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Realtime fan-out: in-process, or across instances through Redis.
	hub := realtime.NewHub()
	var notifier realtime.Notifier = hub
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			zlog.Fatal("invalid REDIS_URL", zap.Error(err))
		}
		client := redis.NewClient(opts)
		defer client.Close()

		bridge := realtime.NewRedisBridge(client, hub, zlog.Named("realtime"))
		if err := bridge.Start(ctx); err != nil {
			zlog.Fatal("failed to start redis bridge", zap.Error(err))
		}
		notifier = bridge
	}

	// Services
	threads := service.NewThreadService(repos.Messages, repos.Recipients, encryptor, zlog.Named("threads"))
	svc := httpserver.Services{
		Members:      service.NewMemberService(repos.Members),
		Threads:      threads,
		Dispatch:     service.NewDispatchService(repos.Members, repos.Messages, repos.Recipients, encryptor, notifier, cfg.RecipientBatchSize, zlog.Named("dispatch")),
		Conversation: service.NewConversationService(repos.Members, repos.Messages, repos.Recipients, threads, encryptor, zlog.Named("conversations")),
		Reads:        service.NewReadService(repos.Recipients, notifier, zlog.Named("reads")),
		Reconcile:    service.NewReconcileService(repos.Messages, zlog.Named("reconcile")),
	}
	go svc.Reconcile.Run(ctx, cfg.ReconcileInterval, cfg.ReconcileGrace)

	// WebSocket sessions
	wsHub := ws.NewHub()

	// Build HTTP router
	router := httpserver.NewRouter(cfg, svc, wsHub, notifier, tokenSvc, zlog)

	srv := &http.Server{
		Addr:         cfg.HTTPAddr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	go func() {
		zlog.Info("starting clubdesk server", zap.String("addr", cfg.HTTPAddr()), zap.String("driver", cfg.DBDriver))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	<-ctx.Done()

	zlog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	wsHub.CloseAll()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Error("graceful shutdown failed", zap.Error(err))
	}
}
