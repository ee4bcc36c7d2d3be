package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/storefront-backend/internal/cron"
	"github.com/angelmondragon/storefront-backend/internal/ledger"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/instance"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/migrate"
	"github.com/angelmondragon/storefront-backend/pkg/redis"
)

const serviceKind = "cron-worker"

func main() {
	once := flag.Bool("once", false, "run a single cycle and exit")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *once); err != nil {
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, once bool) error {
	bootLog := logger.New(logger.Options{ServiceName: serviceKind})
	if err := godotenv.Load(); err != nil {
		bootLog.Warn(ctx, ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		bootLog.Error(ctx, "failed to load config", err)
		return err
	}
	cfg.Service.Kind = serviceKind

	logg := logger.New(logger.Options{
		ServiceName: serviceKind,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.ID(),
	})

	service, cleanup, err := buildService(ctx, cfg, logg)
	defer cleanup()
	if err != nil {
		logg.Error(ctx, "failed to start cron worker", err)
		return err
	}

	if once {
		logg.Info(ctx, "running single cron cycle")
		if err := service.RunOnce(ctx); err != nil {
			logg.Error(ctx, "cron cycle failed", err)
			return err
		}
		return nil
	}

	logg.Info(ctx, "starting cron worker")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		return err
	}
	logg.Info(ctx, "cron worker shutting down gracefully")
	return nil
}

// buildService wires storage, the lease and the job set. cleanup is always
// safe to call and closes whatever was opened.
func buildService(ctx context.Context, cfg *config.Config, logg *logger.Logger) (*cron.Service, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return nil, cleanup, fmt.Errorf("bootstrap database: %w", err)
	}
	closers = append(closers, func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "error closing database", err)
		}
	})

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return nil, cleanup, fmt.Errorf("dev migrations: %w", err)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return nil, cleanup, fmt.Errorf("bootstrap redis: %w", err)
	}
	closers = append(closers, func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(ctx, "error closing redis", err)
		}
	})

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey("cron"), cfg.Cron.LockTTL)
	if err != nil {
		return nil, cleanup, err
	}

	ledgerService, err := ledger.NewService(ledger.NewRepository(dbClient.DB()))
	if err != nil {
		return nil, cleanup, err
	}
	staleJob, err := cron.NewStalePaymentJob(cron.StalePaymentJobParams{
		Logger:     logg,
		DB:         dbClient,
		Ledger:     ledgerService,
		Orders:     orders.NewRepository(dbClient.DB()),
		Metrics:    metrics.NewPaymentMetrics(prometheus.DefaultRegisterer),
		StaleAfter: cfg.Payments.StalePendingAfter,
		BatchSize:  cfg.Payments.StaleBatchSize,
	})
	if err != nil {
		return nil, cleanup, err
	}

	registry, err := cron.NewRegistry(staleJob)
	if err != nil {
		return nil, cleanup, err
	}
	service, err := cron.NewService(cron.ServiceParams{
		Logger:     logg,
		Registry:   registry,
		Lock:       lock,
		Metrics:    metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval:   cfg.Cron.Interval,
		JobTimeout: cfg.Cron.JobTimeout,
	})
	return service, cleanup, err
}
