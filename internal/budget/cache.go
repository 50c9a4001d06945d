package budget

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/storage"
)

// Store is the part of storage.SQLiteRepository the budget package needs.
type Store interface {
	Queries() *storage.Queries
	WithTx(ctx context.Context, fn func(q *storage.Queries) error) error
}

// Cache is the budget progress cache: the spent total per (budget, period),
// kept in the budget_progress_cache table and recomputed on miss.
type Cache struct {
	store  Store
	group  singleflight.Group
	logger *log.Logger
	now    func() time.Time

	recomputes atomic.Int64
}

func NewCache(store Store, logger *log.Logger) *Cache {
	if logger == nil {
		logger = log.Discard()
	}
	return &Cache{
		store:  store,
		logger: logger.WithComponent(log.ComponentBudget),
		now:    time.Now,
	}
}

// Get returns the spent total of the budget over [start, end]. On a miss the
// total is summed from the journal and stored. Concurrent misses on the same
// key share one recomputation.
func (c *Cache) Get(ctx context.Context, budgetID string, start, end core.Date) (core.Money, error) {
	key := core.BudgetPeriodKey{BudgetID: budgetID, PeriodStart: start, PeriodEnd: end}

	spent, ok, err := c.store.Queries().GetCachedSpent(ctx, key)
	if err != nil {
		return core.Money{}, fmt.Errorf("read budget cache: %w", err)
	}
	if ok {
		return core.Money{Cents: spent}, nil
	}

	// The fill is shared by every waiter on key, so it must not die with
	// the caller that happened to start it.
	v, err, _ := c.group.Do(key.String(), func() (any, error) {
		return c.fill(context.WithoutCancel(ctx), key)
	})
	if err != nil {
		return core.Money{}, err
	}
	return core.Money{Cents: v.(int64)}, nil
}

// fill recomputes key under the write lock so the sum and the upsert cannot
// interleave with a journal write.
func (c *Cache) fill(ctx context.Context, key core.BudgetPeriodKey) (int64, error) {
	var spent int64
	err := c.store.WithTx(ctx, func(q *storage.Queries) error {
		cached, ok, err := q.GetCachedSpent(ctx, key)
		if err != nil {
			return err
		}
		if ok {
			spent = cached
			return nil
		}

		b, err := q.GetBudget(ctx, key.BudgetID)
		if err != nil {
			return err
		}
		if spent, err = q.SumSpent(ctx, b.CategoryID, key.PeriodStart, key.PeriodEnd); err != nil {
			return err
		}
		c.recomputes.Add(1)
		return q.UpsertCachedSpent(ctx, key, spent, c.now().UTC())
	})
	if err != nil {
		return 0, fmt.Errorf("recompute budget progress %s: %w", key, err)
	}

	c.logger.DebugContext(ctx, "Budget progress recomputed",
		log.NewFields().
			WithBudgetPeriod(key.BudgetID, key.PeriodStart.String(), key.PeriodEnd.String()).
			WithOperation(log.OpRecompute).
			ToSlice()...)
	return spent, nil
}

// Seed stores a known spent total so the first read does not miss.
func (c *Cache) Seed(ctx context.Context, budgetID string, start, end core.Date, spent core.Money) error {
	key := core.BudgetPeriodKey{BudgetID: budgetID, PeriodStart: start, PeriodEnd: end}
	return c.store.WithTx(ctx, func(q *storage.Queries) error {
		return c.SeedKey(ctx, q, key, spent)
	})
}

// SeedKey is Seed using q, which may be bound to the caller's transaction.
func (c *Cache) SeedKey(ctx context.Context, q *storage.Queries, key core.BudgetPeriodKey, spent core.Money) error {
	if err := q.UpsertCachedSpent(ctx, key, spent.Cents, c.now().UTC()); err != nil {
		return fmt.Errorf("seed %s: %w", key, err)
	}
	return nil
}

// Invalidate drops every cached period of the budget.
func (c *Cache) Invalidate(ctx context.Context, budgetID string) error {
	return c.store.WithTx(ctx, func(q *storage.Queries) error {
		_, err := q.DeleteCachedSpentForBudget(ctx, budgetID)
		return err
	})
}

// InvalidatePeriod drops one cached period. Dropping an absent row is a no-op.
func (c *Cache) InvalidatePeriod(ctx context.Context, budgetID string, start, end core.Date) error {
	return c.store.WithTx(ctx, func(q *storage.Queries) error {
		return c.InvalidateKeys(ctx, q, []core.BudgetPeriodKey{
			{BudgetID: budgetID, PeriodStart: start, PeriodEnd: end},
		})
	})
}

// InvalidateKeys drops exactly the given rows using q, which may be bound to
// the caller's transaction.
func (c *Cache) InvalidateKeys(ctx context.Context, q *storage.Queries, keys []core.BudgetPeriodKey) error {
	for _, key := range keys {
		if _, err := q.DeleteCachedSpent(ctx, key); err != nil {
			return fmt.Errorf("invalidate %s: %w", key, err)
		}
	}
	return nil
}

// DropAll removes the budget's rows ahead of the budget's own deletion.
func (c *Cache) DropAll(ctx context.Context, budgetID string) error {
	return c.Invalidate(ctx, budgetID)
}

// Rebuild clears the whole cache table. Every budget recomputes on its next
// read.
func (c *Cache) Rebuild(ctx context.Context) (int64, error) {
	var dropped int64
	err := c.store.WithTx(ctx, func(q *storage.Queries) error {
		var err error
		dropped, err = q.DeleteAllCachedSpent(ctx)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("rebuild budget cache: %w", err)
	}
	c.logger.InfoContext(ctx, "Budget progress cache cleared",
		log.FieldOperation, log.OpRebuild,
		"rows", dropped)
	return dropped, nil
}
