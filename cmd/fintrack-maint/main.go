package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"fintrack/internal/budget"
	"fintrack/internal/cli"
	"fintrack/internal/config"
	"fintrack/internal/events"
	"fintrack/internal/ledger"
	"fintrack/internal/log"
	"fintrack/internal/storage"
)

const retryAttempts = 5

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig(cli.SetupLogger("info"))
	logger := cli.SetupLogger(cfg.LogLevel).WithComponent(log.ComponentMaint)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch os.Args[1] {
	case "reconcile":
		err = runReconcile(ctx, logger, cfg, os.Args[2:])
	case "rebuild-cache":
		err = runRebuildCache(ctx, logger, cfg, os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		logger.Error("Command failed", "command", os.Args[1], log.FieldError, err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("fintrack maintenance")
	fmt.Println("\nUsage:")
	fmt.Println("  fintrack-maint <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  reconcile       Compare stored account balances with the journal")
	fmt.Println("  rebuild-cache   Drop every budget progress row; they recompute on read")
	fmt.Println("  help            Show this help message")
	fmt.Println("\nRun 'fintrack-maint <command> -h' for more information on a command.")
}

func runReconcile(ctx context.Context, logger *log.Logger, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("reconcile", flag.ExitOnError)
	repair := fs.Bool("repair", false, "overwrite drifted balances with the recomputed value")
	account := fs.String("account", "", "check a single account ID")
	fs.Parse(args)

	repo, err := cli.OpenSQLite(ctx, cfg.SQLiteDBPath, cfg.MigrationRetries)
	if err != nil {
		return err
	}
	defer repo.Close()

	r := ledger.NewReconciler(repo, events.NewBus(logger), logger)

	var drifts []ledger.Drift
	if *account != "" {
		d, err := r.Check(ctx, *account)
		if err != nil {
			return err
		}
		drifts = []ledger.Drift{d}
	} else if drifts, err = r.CheckAll(ctx); err != nil {
		return err
	}

	drifted := 0
	for _, d := range drifts {
		if d.InSync() {
			continue
		}
		drifted++
		fmt.Printf("%s  stored=%s  computed=%s  delta=%s\n", d.AccountID, d.Stored, d.Computed, d.Delta())

		if *repair {
			err := storage.Retry(ctx, "repair "+d.AccountID, retryAttempts, func() error {
				_, err := r.Repair(ctx, d.AccountID)
				return err
			})
			if err != nil {
				return err
			}
		}
	}

	logger.Info("Reconciliation finished",
		log.FieldOperation, log.OpReconcile,
		"accounts", len(drifts),
		"drifted", drifted,
		"repaired", *repair && drifted > 0)
	if drifted > 0 && !*repair {
		return fmt.Errorf("%d of %d accounts drifted; rerun with -repair to fix", drifted, len(drifts))
	}
	return nil
}

func runRebuildCache(ctx context.Context, logger *log.Logger, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("rebuild-cache", flag.ExitOnError)
	warm := fs.Bool("warm", false, "recompute every active budget after clearing")
	fs.Parse(args)

	repo, err := cli.OpenSQLite(ctx, cfg.SQLiteDBPath, cfg.MigrationRetries)
	if err != nil {
		return err
	}
	defer repo.Close()

	cache := budget.NewCache(repo, logger)
	var dropped int64
	err = storage.Retry(ctx, "rebuild budget cache", retryAttempts, func() error {
		var err error
		dropped, err = cache.Rebuild(ctx)
		return err
	})
	if err != nil {
		return err
	}
	fmt.Printf("dropped %d cached budget periods\n", dropped)

	if *warm {
		progress, err := budget.NewService(repo, cache, events.NewBus(logger), logger).ProgressAll(ctx)
		if err != nil {
			return fmt.Errorf("warm budget cache: %w", err)
		}
		for _, p := range progress {
			fmt.Printf("%s  %-24s spent=%s of %s (%s%%)\n", p.Budget.ID, p.Budget.Name, p.Spent, p.Budget.Amount, p.Percentage.StringFixed(2))
		}
	}
	return nil
}
