package worker

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
	"fintrack/internal/events"
	"fintrack/internal/log"
)

const defaultConcurrency = 4

// ProgressCache is implemented by budget.Cache.
type ProgressCache interface {
	Get(ctx context.Context, budgetID string, start, end core.Date) (core.Money, error)
}

// BudgetLister is implemented by budget.Service.
type BudgetLister interface {
	List(ctx context.Context, activeOnly bool) ([]core.Budget, error)
}

// WarmWorker refills budget progress rows after they are invalidated so the
// next dashboard read hits the cache.
type WarmWorker struct {
	cache       ProgressCache
	budgets     BudgetLister
	logger      *log.Logger
	concurrency int

	warmed atomic.Int64
}

func NewWarmWorker(cache ProgressCache, budgets BudgetLister, logger *log.Logger) *WarmWorker {
	if logger == nil {
		logger = log.Discard()
	}
	return &WarmWorker{
		cache:       cache,
		budgets:     budgets,
		logger:      logger.WithComponent(log.ComponentWorker),
		concurrency: defaultConcurrency,
	}
}

// HandleMessage processes one ledger event from AMQP. Only budget
// invalidations carry work; other kinds are acknowledged and ignored.
func (w *WarmWorker) HandleMessage(ctx context.Context, msg *amqp.EventMessage) error {
	e, err := msg.Event()
	if err != nil {
		// Unknown kinds come from newer producers, not from a broken queue.
		w.logger.DebugContext(ctx, "Skipping event", log.FieldEventKind, msg.Kind, log.FieldError, err)
		return nil
	}

	inv, ok := e.(events.BudgetProgressInvalidated)
	if !ok {
		return nil
	}

	w.logger.InfoContext(ctx, "Processing budget invalidation",
		"reason", inv.Reason,
		log.FieldKeys, len(inv.Keys),
		log.FieldOperation, log.OpConsume)

	for _, key := range inv.Keys {
		if err := w.warm(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

// WarmAll fills the cache for every active budget. It is the periodic
// backup for messages lost while the worker was down.
func (w *WarmWorker) WarmAll(ctx context.Context) (int, error) {
	budgets, err := w.budgets.List(ctx, true)
	if err != nil {
		return 0, fmt.Errorf("list budgets: %w", err)
	}
	if len(budgets) == 0 {
		return 0, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.concurrency)
	for _, b := range budgets {
		key := b.Key()
		g.Go(func() error {
			return w.warm(gctx, key)
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	w.logger.InfoContext(ctx, "Budget cache warmed", "budgets", len(budgets))
	return len(budgets), nil
}

// Warmed reports how many keys were filled since start.
func (w *WarmWorker) Warmed() int64 {
	return w.warmed.Load()
}

func (w *WarmWorker) warm(ctx context.Context, key core.BudgetPeriodKey) error {
	if _, err := w.cache.Get(ctx, key.BudgetID, key.PeriodStart, key.PeriodEnd); err != nil {
		if core.IsNotFound(err) {
			// Budget deleted after the event was published.
			w.logger.DebugContext(ctx, "Skipping deleted budget", log.FieldBudgetID, key.BudgetID)
			return nil
		}
		return fmt.Errorf("warm %s: %w", key, err)
	}
	w.warmed.Add(1)
	return nil
}
