package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"dbot/internal/api"
	"dbot/internal/attendance"
	"dbot/internal/bot"
	"dbot/internal/cloudinary"
	"dbot/internal/config"
	"dbot/internal/feed"
	"dbot/internal/httpmiddleware"
	"dbot/internal/logging"
	"dbot/internal/metrics"
	"dbot/internal/queue"
	"dbot/internal/store"
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	logger := logging.New(cfg)
	defer func() { _ = logger.Sync() }()

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := run(cfg, logger); err != nil {
		logger.Fatal("bot failed", zap.Error(err))
	}
}

func run(cfg config.App, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	checks := map[string]api.Check{}

	var st attendance.Store
	switch cfg.StoreBackend {
	case "memory":
		logger.Warn("using in-memory store, data is lost on restart")
		st = attendance.NewMemoryStore()
	default:
		db, err := store.NewDB(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		defer db.Close()
		checks["db"] = db.Healthy
		st = attendance.NewRepository(db.Client)
	}

	var redisClient *store.Redis
	if cfg.QueueBackend == queue.BackendRedis {
		redisClient = store.NewRedis(cfg.RedisAddr)
		defer redisClient.Close()
		checks["redis"] = redisClient.Healthy
	}
	q, closeQueue, err := openQueue(cfg, redisClient)
	if err != nil {
		return fmt.Errorf("queue: %w", err)
	}
	defer closeQueue()

	opts := []attendance.Option{attendance.WithLogger(logger)}
	if cfg.CloudinaryEnabled() {
		opts = append(opts, attendance.WithImageHost(
			cloudinary.New(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder),
		))
		logger.Info("cloudinary configured", zap.String("cloud", cfg.CloudinaryCloudName))
	} else {
		logger.Info("cloudinary not configured, keeping discord attachment urls")
	}
	registry := attendance.NewRegistry(st, opts...)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	session, err := bot.NewDiscordSession(cfg.DiscordToken, logger)
	if err != nil {
		return err
	}
	limiter := httpmiddleware.NewSimpleTokenBucket(cfg.CommandRateLimitPerMin, cfg.CommandRateLimitPerMin)
	b := bot.New(session, registry, q, limiter, m, logger, bot.Options{
		Prefix:         cfg.BotPrefix,
		Name:           cfg.BotName,
		Version:        cfg.BotVersion,
		CommandTimeout: cfg.CommandTimeout,
	})
	if err := b.Start(); err != nil {
		return err
	}
	defer func() {
		if err := b.Stop(); err != nil {
			logger.Warn("bot stop failed", zap.Error(err))
		}
	}()

	router := api.NewRouter(api.Deps{
		Registry:       registry,
		Checks:         checks,
		Gatherer:       reg,
		Limiter:        httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin),
		Logger:         logger.Named("api"),
		SigningKey:     cfg.JWTSigningKey,
		Issuer:         cfg.JWTIssuer,
		AllowedOrigins: cfg.AllowedOrigins,
		Production:     cfg.Production(),
	})
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	// The memory queue only exists in this process, so its consumer does too.
	if cfg.QueueBackend == queue.BackendMemory {
		announcer := feed.NewAnnouncer(session, cfg.FeedChannelID, m, logger)
		g.Go(func() error {
			if err := announcer.Run(gctx, q); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("feed: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		logger.Info("ops api listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("ops api: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("ops api forced shutdown", zap.Error(err))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("bot exited")
	return nil
}

func openQueue(cfg config.App, redisClient *store.Redis) (queue.Queue, func() error, error) {
	opts := queue.Options{Backend: cfg.QueueBackend, Name: cfg.QueueName, AMQPURL: cfg.AMQPURL}
	if redisClient != nil {
		opts.Redis = redisClient.Client
	}
	return queue.Open(opts)
}
