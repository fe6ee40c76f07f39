package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"tabletalk-web/internal/config"
	"tabletalk-web/internal/database"
	"tabletalk-web/internal/handlers"
	"tabletalk-web/internal/logger"
	"tabletalk-web/internal/middleware"
	"tabletalk-web/internal/proxy"
	"tabletalk-web/internal/router"
	"tabletalk-web/internal/services"
	"tabletalk-web/internal/transcript"
	"tabletalk-web/internal/web"
	"tabletalk-web/internal/websocket"
	"tabletalk-web/internal/worker"
)

func main() {
	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("✗ Invalid configuration: %v", err)
	}

	// ──── Step 2: Initialize Logger ────
	logg, closeLog, err := logger.New(&logger.Config{
		Level:      cfg.LogLevel,
		Format:     cfg.LogFormat,
		LogDir:     cfg.LogDir,
		MaxSize:    cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAge:     cfg.LogMaxAgeDays,
	})
	if err != nil {
		log.Fatalf("✗ Logger initialization failed: %v", err)
	}
	defer closeLog()

	logg.Info("starting TableTalk web", "env", cfg.Env, "backend", cfg.BackendURL+cfg.BackendChatPath)

	// ──── Step 3: Initialize Redis Clients (optional) ────
	var pubsub *redis.Client
	storeType := transcript.StoreTypeMemory
	storeOpts := []transcript.StoreOption{
		transcript.WithTTL(cfg.TranscriptTTL),
		transcript.WithMaxMessages(cfg.TranscriptMaxMessages),
	}

	if cfg.RedisURL != "" {
		redisClients, err := database.NewRedisClients(context.Background(), cfg.RedisURL)
		if err != nil {
			logg.Error("redis connection failed", "error", err)
			os.Exit(1)
		}
		defer redisClients.Close()

		pubsub = redisClients.PubSub
		storeType = transcript.StoreTypeRedis
		storeOpts = append(storeOpts, transcript.WithRedisClient(redisClients.Transcript))
		logg.Info("redis connected")
	}

	// ──── Step 4: Initialize Transcript Store ────
	store, err := transcript.NewStore(storeType, storeOpts...)
	if err != nil {
		logg.Error("transcript store initialization failed", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	logg.Info("transcript store ready", "type", storeType)

	if sweepable, ok := store.(services.Sweepable); ok {
		sweeper := services.NewTranscriptSweeper(sweepable, services.DefaultSweepInterval, logg)
		sweeper.Start()
		defer sweeper.Stop()
	}

	// ──── Step 5: Start Transcript Worker Pool ────
	workerPool := worker.NewPool(store, cfg.TranscriptWorkers, worker.DefaultQueueSize, logg)
	workerPool.Start()

	// ──── Step 6: Initialize Proxy & Handlers ────
	forwarder := proxy.NewForwarder(proxy.Config{
		BackendURL:      cfg.BackendURL,
		ChatPath:        cfg.BackendChatPath,
		ResponseTimeout: cfg.ProxyTimeout,
		ReadTimeout:     cfg.StreamReadTimeout,
	}, logg)

	page, err := web.NewPage(web.DefaultPageData())
	if err != nil {
		logg.Error("page template failed to parse", "error", err)
		os.Exit(1)
	}

	pageHandler := handlers.NewPageHandler(page, logg)
	chatHandler := handlers.NewChatHandler(forwarder, workerPool, store, cfg.MaxBodyBytes, logg)
	chatLimiter := middleware.NewRateLimiter(cfg.RateLimitPerMinute, time.Minute)

	// ──── Step 7: Start WebSocket Hub ────
	wsHub := websocket.NewHub(forwarder, workerPool, pubsub, cfg.FrontendURL, logg)

	// ──── Step 8: Start HTTP Server ────
	r := router.New(
		pageHandler,
		chatHandler,
		wsHub,
		web.Static(),
		chatLimiter,
		logg,
		cfg.FrontendURL,
	)

	// WriteTimeout stays zero: chat responses stream for as long as the
	// backend keeps sending, bounded by STREAM_READ_TIMEOUT between chunks.
	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Graceful shutdown
	done := make(chan struct{})
	go func() {
		defer close(done)

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logg.Info("shutting down")
		wsHub.Shutdown()
		chatLimiter.Stop()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logg.Warn("http shutdown incomplete", "error", err)
		}
		if err := workerPool.Stop(ctx); err != nil {
			logg.Warn("transcript workers did not drain", "error", err)
		}
	}()

	logg.Info("TableTalk web ready",
		"url", fmt.Sprintf("http://localhost:%s", cfg.Port),
		"chat", "/api/chat",
		"ws", "/api/ws")

	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		logg.Error("server error", "error", err)
		os.Exit(1)
	}
	<-done
}
