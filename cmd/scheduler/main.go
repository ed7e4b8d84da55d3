package main

import (
	"context"
	"crypto/tls"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"leadflow_backend/internal/alerts"
	"leadflow_backend/internal/delivery"
	"leadflow_backend/internal/distribution"
	"leadflow_backend/internal/events"
	"leadflow_backend/internal/hours"
	"leadflow_backend/internal/scheduler"
	"leadflow_backend/platform/config"
	"leadflow_backend/platform/db"
	"leadflow_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()

	eventBus := events.NewInMemoryBus(log)

	alertsModule := alerts.NewModule(cfg, log)
	alertsModule.Register(eventBus)

	queueClient, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize work queue client", "error", err)
		panic("failed to initialize work queue client: " + err.Error())
	}
	defer func() { _ = queueClient.Close() }()

	hoursCache := newRedisClient(cfg, log)
	if hoursCache != nil {
		defer func() { _ = hoursCache.Close() }()
	}
	hoursService := hours.NewService(hoursCache, cfg.HoursCacheTTL, log)

	archive, err := delivery.NewMinioArchive(ctx, cfg)
	if err != nil {
		log.Error("failed to initialize delivery archive", "error", err)
		panic("failed to initialize delivery archive: " + err.Error())
	}
	var archivePort delivery.Archive
	if archive != nil {
		archivePort = archive
	}

	distributionModule := distribution.NewModule(pool, hoursService, queueClient, eventBus, log)
	deliveryModule, err := delivery.NewModule(pool, cfg, queueClient, archivePort, eventBus, log)
	if err != nil {
		log.Error("failed to initialize delivery module", "error", err)
		panic("failed to initialize delivery module: " + err.Error())
	}

	sweeper := scheduler.NewSweeper(pool, queueClient, eventBus, log, cfg, cfg)
	go sweeper.Run(ctx)

	worker, err := scheduler.NewWorker(cfg, distributionModule.Service(), deliveryModule.Service(), log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	worker.Run(ctx)
}

func newRedisClient(cfg *config.Config, log *logger.Logger) *redis.Client {
	if cfg.RedisURL == "" {
		log.Warn("REDIS_URL not configured; hours cache disabled")
		return nil
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Warn("invalid REDIS_URL; hours cache disabled", "error", err)
		return nil
	}
	if cfg.RedisTLSInsecure {
		if opt.TLSConfig != nil {
			opt.TLSConfig.InsecureSkipVerify = true
		} else {
			opt.TLSConfig = &tls.Config{InsecureSkipVerify: true}
		}
	}

	return redis.NewClient(opt)
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
