package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/plusserver-sms/internal/config"
	"github.com/kursadbilgin/plusserver-sms/internal/handler"
	"github.com/kursadbilgin/plusserver-sms/internal/infra/postgresql"
	"github.com/kursadbilgin/plusserver-sms/internal/infra/postgresql/migrations"
	infraredis "github.com/kursadbilgin/plusserver-sms/internal/infra/redis"
	"github.com/kursadbilgin/plusserver-sms/internal/observability"
	"github.com/kursadbilgin/plusserver-sms/internal/queue"
	"github.com/kursadbilgin/plusserver-sms/internal/repository"
	"github.com/kursadbilgin/plusserver-sms/internal/service"
	"github.com/kursadbilgin/plusserver-sms/internal/transport"
	"github.com/kursadbilgin/plusserver-sms/plusserver"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	if err := run(cfg, logger); err != nil {
		logger.Fatal("sms worker stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	trackEvery, err := cfg.TrackEvery()
	if err != nil {
		return err
	}
	settings, err := cfg.Provider.Settings()
	if err != nil {
		return err
	}

	db, err := postgresql.NewPostgres(cfg.DatabaseDSN, postgresql.PoolOptions{MaxOpenConns: cfg.WorkerConcurrency * 2})
	if err != nil {
		return fmt.Errorf("postgres initialization failed: %w", err)
	}
	if err := migrations.Migrate(db); err != nil {
		return fmt.Errorf("database migrations failed: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("postgres underlying db init failed: %w", err)
	}
	defer sqlDB.Close()

	rdb, err := infraredis.NewRedis(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("redis initialization failed: %w", err)
	}
	defer rdb.Close()

	limiter, err := infraredis.NewRedisRateLimiter(rdb, cfg.RateLimitPerSec)
	if err != nil {
		return fmt.Errorf("rate limiter initialization failed: %w", err)
	}

	rabbit, err := queue.NewRabbitMQ(cfg.RabbitMQURL)
	if err != nil {
		return fmt.Errorf("rabbitmq initialization failed: %w", err)
	}
	defer rabbit.Close()

	metrics := observability.NewMetrics()
	client := plusserver.NewClient(
		plusserver.NewConfig(settings...),
		plusserver.UseLogger(logger.Named("plusserver")),
		plusserver.UseLimiter(limiter),
		plusserver.UseRecorder(metrics),
	)

	dispatches := repository.NewGormDispatchRepo(db)
	attempts := repository.NewGormAttemptRepo(db)

	dispatcher, err := service.NewDispatchService(
		dispatches,
		attempts,
		queue.NewRabbitMQConsumer(rabbit, cfg.WorkerConcurrency, logger),
		client,
		cfg.WorkerConcurrency,
		cfg.MaxAttempts,
		logger,
	)
	if err != nil {
		return err
	}
	dispatcher.SetMetrics(metrics)

	retries, err := service.NewRetryScanner(dispatches, queue.NewRabbitMQPublisher(rabbit), 0, 0, logger)
	if err != nil {
		return err
	}

	tracker, err := service.NewDeliveryTracker(dispatches, client, trackEvery, 0, logger)
	if err != nil {
		return err
	}
	tracker.SetMetrics(metrics)

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          transport.ErrorHandler(logger),
	})
	app.Use(metrics.HTTPMiddleware())
	handler.RegisterHealthRoutes(app, map[string]handler.Check{
		"postgres": func(ctx context.Context) error { return postgresql.Ping(ctx, db) },
		"redis":    func(ctx context.Context) error { return infraredis.Ping(ctx, rdb) },
		"rabbitmq": rabbit.Ping,
	}, metrics.Handler())

	g, groupCtx := errgroup.WithContext(ctx)
	g.Go(func() error { return dispatcher.Start(groupCtx) })
	g.Go(func() error { return retries.Start(groupCtx) })
	g.Go(func() error { return tracker.Start(groupCtx) })
	g.Go(func() error {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		logger.Info("sms worker http server listening", zap.String("addr", addr))
		if err := app.Listen(addr); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-groupCtx.Done()
		return app.ShutdownWithTimeout(shutdownTimeout)
	})

	logger.Info("sms worker started",
		zap.Int("concurrency", cfg.WorkerConcurrency),
		zap.Int("maxAttempts", cfg.MaxAttempts),
		zap.Duration("trackInterval", trackEvery),
		zap.String("gateway", client.Config().Values().PutURL),
	)

	err = g.Wait()
	logger.Info("sms worker stopped")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
