// Package main runs the webinar realtime server: chat, presence and the REST surface.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/simulive/backend/config"
	"github.com/simulive/backend/internal/auth"
	"github.com/simulive/backend/internal/avatars"
	"github.com/simulive/backend/internal/chat"
	"github.com/simulive/backend/internal/middleware"
	"github.com/simulive/backend/internal/presence"
	"github.com/simulive/backend/internal/ratelimit"
	"github.com/simulive/backend/internal/realtime"
	"github.com/simulive/backend/internal/streams"
	"github.com/simulive/backend/internal/webinars"
	"github.com/simulive/backend/pkg/database"
	"github.com/simulive/backend/pkg/redis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("load config", zap.Error(err))
	}
	logger := newLogger(cfg.Production())
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), cfg.Database.MaxConns, logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool, logger); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()
	var limiterStore goredis.Cmdable
	if rdb != nil {
		limiterStore = rdb.Client
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	metrics := realtime.NewMetrics(prometheus.DefaultRegisterer)
	hub := realtime.NewHub(logger, metrics)

	// Stream sessions (peak viewers)
	streamRepo := streams.NewRepository(pool)
	tracker := streams.NewPeakTracker(streamRepo, logger)

	coordinator := presence.NewCoordinator(hub, logger,
		presence.WithSweepInterval(cfg.Presence.SweepInterval),
		presence.WithViewerObserver(tracker.Observe),
	)

	// Webinars
	webinarRepo := webinars.NewRepository(pool)
	webinarHandler := webinars.NewHandler(webinarRepo, coordinator)

	// Chat
	limiter := ratelimit.New(limiterStore, cfg.Chat.RateLimit, cfg.Chat.RateWindow, logger)
	fanout := chat.NewFanout(hub, logger)
	chatRepo := chat.NewRepository(pool)
	chatService := chat.NewService(chatRepo, webinarRepo, limiter, fanout, cfg.Chat.HistoryLimit, logger)
	chatHandler := chat.NewHandler(chatService, logger)

	// Avatar script
	avatarHandler := avatars.NewHandler(avatars.NewRepository(pool))

	policy := middleware.NewOriginPolicy(cfg.Production(), cfg.Server.CORSAllowedOrigins)
	socketServer := realtime.NewServer(hub, coordinator, chatService, realtime.Options{
		CheckOrigin:    policy.Allowed,
		PollWait:       cfg.Presence.PollWait,
		SessionTimeout: cfg.Presence.SessionTimeout,
	}, logger)

	router := newRouter(routerDeps{
		cfg:      cfg,
		logger:   logger,
		policy:   policy,
		jwt:      jwtService,
		socket:   socketServer,
		webinars: webinarHandler,
		chat:     chatHandler,
		avatars:  avatarHandler,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}
	if srv.WriteTimeout <= cfg.Presence.PollWait {
		// long-poll GETs are held for PollWait
		srv.WriteTimeout = cfg.Presence.PollWait + 5*time.Second
	}

	// Background loops
	bgCtx, bgCancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	for _, run := range []func(context.Context){coordinator.Run, tracker.Run, socketServer.Run} {
		wg.Add(1)
		go func(run func(context.Context)) {
			defer wg.Done()
			run(bgCtx)
		}(run)
	}

	go func() {
		logger.Info("server listening", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	bgCancel()
	wg.Wait()
	logger.Info("server stopped")
}

func newLogger(production bool) *zap.Logger {
	if !production {
		logger, err := zap.NewDevelopment()
		if err != nil {
			os.Exit(1)
		}
		return logger
	}
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, err := config.Build()
	if err != nil {
		os.Exit(1)
	}
	return logger
}
