package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"golang.org/x/sync/errgroup"

	"fintrack/internal/amqp"
	"fintrack/internal/budget"
	"fintrack/internal/cli"
	"fintrack/internal/events"
	apphttp "fintrack/internal/http"
	"fintrack/internal/ledger"
	"fintrack/internal/log"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig(cli.SetupLogger("info"))
	logger := cli.SetupLogger(cfg.LogLevel)

	mode, err := ledger.ParseInvalidationMode(cfg.InvalidationMode)
	if err != nil {
		logger.Error("Invalid invalidation mode", log.FieldError, err)
		os.Exit(1)
	}

	logger.Info("Starting fintrackd",
		"port", cfg.Port,
		"event_forwarding", cfg.AMQPURL != "")

	repo := cli.InitSQLite(context.Background(), logger, cfg.SQLiteDBPath, cfg.MigrationRetries)
	defer repo.Close()

	bus := events.NewBus(logger)
	cache := budget.NewCache(repo, logger)
	budgets := budget.NewService(repo, cache, bus, logger)
	journal := ledger.NewJournal(repo, budget.NewPlanner(), cache, bus, logger, ledger.WithInvalidationMode(mode))
	logger.Info("Journal ready", "invalidation_mode", journal.Mode())

	var forwarder *amqp.Forwarder
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, "", logger)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", log.FieldError, err)
			os.Exit(1)
		}
		defer client.Close()

		forwarder = amqp.NewForwarder(client, cfg.EventBufferSize, logger)
		forwarder.Attach(bus)
	} else {
		logger.Info("Event forwarding disabled - no AMQP_URL provided")
	}

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Services{
		Transactions: journal,
		Accounts:     ledger.NewAccounts(repo, logger),
		Budgets:      budgets,
		Balances:     ledger.NewReconciler(repo, bus, logger),
		Ready:        repo.Ping,
	}, logger)

	ctx, done := cli.GracefulShutdown(logger, cfg.ShutdownTimeout, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("HTTP server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	if forwarder != nil {
		g.Go(func() error {
			return forwarder.Run(gctx)
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error("fintrackd stopped with error", log.FieldError, err)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	if forwarder != nil && forwarder.Dropped() > 0 {
		logger.Warn("Events dropped during run", "dropped", forwarder.Dropped())
	}
	m := srv.TraceMetrics()
	logger.Info("Server stopped gracefully",
		"requests", m.TotalRequests,
		"avg_response_us", m.AverageResponseTime)
}
