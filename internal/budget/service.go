package budget

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"fintrack/internal/core"
	"fintrack/internal/events"
	"fintrack/internal/log"
	"fintrack/internal/storage"
)

// NewBudget is the input of Service.Create. Nil pointers take defaults:
// DefaultAlertPercentage and active.
type NewBudget struct {
	Name            string
	CategoryID      string
	Amount          core.Money
	PeriodStart     core.Date
	PeriodEnd       core.Date
	AlertPercentage *int
	IsActive        *bool
}

// Service manages budgets and keeps their cache rows in step with budget
// edits.
type Service struct {
	store  Store
	cache  *Cache
	bus    *events.Bus
	logger *log.Logger
	now    func() time.Time
}

func NewService(store Store, cache *Cache, bus *events.Bus, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Discard()
	}
	return &Service{
		store:  store,
		cache:  cache,
		bus:    bus,
		logger: logger.WithComponent(log.ComponentBudget),
		now:    time.Now,
	}
}

// Create inserts the budget and seeds its cache row with the current spent
// total in the same transaction.
func (s *Service) Create(ctx context.Context, in NewBudget) (core.Budget, error) {
	now := s.now().UTC()
	b := core.Budget{
		ID:              uuid.NewString(),
		Name:            strings.TrimSpace(in.Name),
		CategoryID:      in.CategoryID,
		Amount:          in.Amount,
		PeriodStart:     in.PeriodStart,
		PeriodEnd:       in.PeriodEnd,
		AlertPercentage: core.DefaultAlertPercentage,
		IsActive:        true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if in.AlertPercentage != nil {
		b.AlertPercentage = *in.AlertPercentage
	}
	if in.IsActive != nil {
		b.IsActive = *in.IsActive
	}
	if err := b.Validate(); err != nil {
		return core.Budget{}, err
	}

	err := s.store.WithTx(ctx, func(q *storage.Queries) error {
		if err := q.InsertBudget(ctx, b); err != nil {
			return err
		}
		spent, err := q.SumSpent(ctx, b.CategoryID, b.PeriodStart, b.PeriodEnd)
		if err != nil {
			return err
		}
		return s.cache.SeedKey(ctx, q, b.Key(), core.Money{Cents: spent})
	})
	if err != nil {
		return core.Budget{}, fmt.Errorf("create budget: %w", err)
	}

	s.logger.InfoContext(ctx, "Budget created",
		log.NewFields().
			WithBudgetPeriod(b.ID, b.PeriodStart.String(), b.PeriodEnd.String()).
			WithOperation(log.OpCreate).
			ToSlice()...)
	return b, nil
}

func (s *Service) Get(ctx context.Context, id string) (core.Budget, error) {
	return s.store.Queries().GetBudget(ctx, id)
}

func (s *Service) List(ctx context.Context, activeOnly bool) ([]core.Budget, error) {
	return s.store.Queries().ListBudgets(ctx, activeOnly)
}

// Update applies patch and drops every cached period of the budget, since
// its amount, category or period may no longer match the rows.
func (s *Service) Update(ctx context.Context, id string, patch core.BudgetPatch) (core.Budget, error) {
	var prev, next core.Budget
	err := s.store.WithTx(ctx, func(q *storage.Queries) error {
		var err error
		if prev, err = q.GetBudget(ctx, id); err != nil {
			return err
		}
		next = patch.Apply(prev)
		next.UpdatedAt = s.now().UTC()
		if err := next.Validate(); err != nil {
			return err
		}
		if _, err := q.UpdateBudget(ctx, next); err != nil {
			return err
		}
		_, err = q.DeleteCachedSpentForBudget(ctx, id)
		return err
	})
	if err != nil {
		return core.Budget{}, fmt.Errorf("update budget %s: %w", id, err)
	}

	// Rows of the old period were dropped above; only the current period is
	// worth refilling.
	s.bus.Publish(ctx, events.BudgetProgressInvalidated{Reason: "budget.update", Keys: []core.BudgetPeriodKey{next.Key()}})

	s.logger.InfoContext(ctx, "Budget updated",
		log.FieldBudgetID, id,
		log.FieldOperation, log.OpUpdate,
		"period_changed", next.Key().String() != prev.Key().String())
	return next, nil
}

// Delete drops the budget's cache rows and then the budget.
func (s *Service) Delete(ctx context.Context, id string) error {
	var b core.Budget
	err := s.store.WithTx(ctx, func(q *storage.Queries) error {
		var err error
		if b, err = q.GetBudget(ctx, id); err != nil {
			return err
		}
		if _, err := q.DeleteCachedSpentForBudget(ctx, id); err != nil {
			return err
		}
		_, err = q.DeleteBudget(ctx, id)
		return err
	})
	if err != nil {
		return fmt.Errorf("delete budget %s: %w", id, err)
	}

	s.bus.Publish(ctx, events.BudgetProgressInvalidated{Reason: "budget.delete", Keys: []core.BudgetPeriodKey{b.Key()}})
	s.logger.InfoContext(ctx, "Budget deleted",
		log.FieldBudgetID, id,
		log.FieldOperation, log.OpDelete)
	return nil
}

// Progress reads the budget's spent total through the cache.
func (s *Service) Progress(ctx context.Context, id string) (Progress, error) {
	b, err := s.store.Queries().GetBudget(ctx, id)
	if err != nil {
		return Progress{}, err
	}
	return s.progress(ctx, b)
}

// ProgressAll returns the progress of every active budget.
func (s *Service) ProgressAll(ctx context.Context) ([]Progress, error) {
	budgets, err := s.store.Queries().ListBudgets(ctx, true)
	if err != nil {
		return nil, err
	}
	out := make([]Progress, 0, len(budgets))
	for _, b := range budgets {
		p, err := s.progress(ctx, b)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *Service) progress(ctx context.Context, b core.Budget) (Progress, error) {
	spent, err := s.cache.Get(ctx, b.ID, b.PeriodStart, b.PeriodEnd)
	if err != nil {
		return Progress{}, err
	}
	return NewProgress(b, spent), nil
}
