package main

import (
	"context"
	"errors"
	"os"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/budget"
	"fintrack/internal/cli"
	"fintrack/internal/events"
	"fintrack/internal/log"
	"fintrack/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig(cli.SetupLogger("info"))
	logger := cli.SetupLogger(cfg.LogLevel)

	if err := cfg.RequireAMQP(); err != nil {
		logger.Error("fintrack-worker needs a broker", log.FieldError, err)
		os.Exit(1)
	}

	logger.Info("Starting fintrack-worker", "queue", cfg.AMQPQueue, "warm_interval", cfg.WarmInterval)

	repo := cli.InitSQLite(context.Background(), logger, cfg.SQLiteDBPath, cfg.MigrationRetries)
	defer repo.Close()

	// The worker only reads through the cache; its own bus has no subscribers.
	cache := budget.NewCache(repo, logger)
	budgets := budget.NewService(repo, cache, events.NewBus(logger), logger)
	warmer := worker.NewWarmWorker(cache, budgets, logger)

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger,
		string(events.KindBudgetProgressInvalidated))
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		os.Exit(1)
	}
	defer client.Close()

	ctx, done := cli.GracefulShutdown(logger, cfg.ShutdownTimeout, nil)

	logger.Info("Performing startup cache warm...")
	if _, err := warmer.WarmAll(ctx); err != nil {
		logger.Error("Startup cache warm failed", log.FieldError, err)
	}

	go consume(ctx, logger, client, warmer)

	ticker := time.NewTicker(cfg.WarmInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			cli.WaitForShutdown(ctx, done)
			logger.Info("Worker shutdown complete", "warmed", warmer.Warmed())
			return
		case <-ticker.C:
			if _, err := warmer.WarmAll(ctx); err != nil {
				logger.Error("Periodic cache warm failed", log.FieldError, err)
			}
		}
	}
}

// consume keeps a consumer attached, backing off between reconnects.
func consume(ctx context.Context, logger *log.Logger, client *amqp.Client, warmer *worker.WarmWorker) {
	for attempt := 0; ; attempt++ {
		started := time.Now()
		err := client.Consume(ctx, warmer.HandleMessage)
		if ctx.Err() != nil {
			return
		}
		if time.Since(started) > time.Minute {
			attempt = 0
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			delay := amqp.ExponentialBackoff(attempt)
			logger.Warn("Message consumption stopped, reconnecting",
				log.FieldError, err,
				"attempt", attempt+1,
				"retry_in", delay)

			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
		}
	}
}
