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

	"github.com/bwmarrin/discordgo"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"dbot/internal/config"
	"dbot/internal/feed"
	"dbot/internal/logging"
	"dbot/internal/metrics"
	"dbot/internal/queue"
	"dbot/internal/store"
)

// Worker consumes clock-in events and posts them to the feed channel.
func main() {
	cfg := config.Load()
	logger := logging.New(cfg).Named("worker")
	defer func() { _ = logger.Sync() }()

	if cfg.QueueBackend == queue.BackendMemory {
		log.Fatalf("QUEUE_BACKEND=memory is consumed inside the bot process; use redis or amqp for the worker")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutdown signal received")
		cancel()
	}()

	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("worker failed", zap.Error(err))
	}
	logger.Info("worker stopped")
}

func run(ctx context.Context, cfg config.App, logger *zap.Logger) error {
	var redisClient *store.Redis
	opts := queue.Options{Backend: cfg.QueueBackend, Name: cfg.QueueName, AMQPURL: cfg.AMQPURL}
	if cfg.QueueBackend == queue.BackendRedis {
		redisClient = store.NewRedis(cfg.RedisAddr)
		defer redisClient.Close()
		if !redisClient.Healthy(ctx) {
			logger.Warn("redis not reachable yet, consumer will retry", zap.String("addr", cfg.RedisAddr))
		}
		opts.Redis = redisClient.Client
	}
	q, closeQueue, err := queue.Open(opts)
	if err != nil {
		return fmt.Errorf("queue: %w", err)
	}
	defer closeQueue()

	// Posting only needs the REST client, so the gateway is never opened.
	var poster feed.Poster
	if cfg.DiscordToken != "" {
		s, err := discordgo.New("Bot " + cfg.DiscordToken)
		if err != nil {
			return fmt.Errorf("create discord session: %w", err)
		}
		poster = s
	} else {
		logger.Warn("DISCORD_TOKEN not set, clock-ins are only logged")
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	srv := &http.Server{
		Addr:              cfg.WorkerAddr,
		Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics listener failed", zap.Error(err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("worker started, waiting for messages...", zap.String("backend", cfg.QueueBackend))
	return feed.NewAnnouncer(poster, cfg.FeedChannelID, m, logger).Run(ctx, q)
}
