package budget

import (
	"context"
	"fmt"
	"sort"

	"fintrack/internal/core"
	"fintrack/internal/storage"
)

// Planner decides which cache rows a single transaction change may have made
// stale. Only the day and the category of an expense can change which
// budgets it counts towards, so those are the only inputs.
type Planner struct{}

func NewPlanner() *Planner {
	return &Planner{}
}

type observation struct {
	day      core.Date
	category string
}

// Plan returns the keys of active budgets affected by the transition from
// prev to next. Either side may be nil (create, delete). Pending expenses
// still contribute, so a pending flip invalidates its budgets. The result is
// sorted and free of duplicates.
func (p *Planner) Plan(ctx context.Context, q *storage.Queries, prev, next *core.Transaction) ([]core.BudgetPeriodKey, error) {
	var obs []observation
	seen := make(map[string]bool)
	for _, t := range []*core.Transaction{prev, next} {
		if t == nil || t.Type != core.Expense {
			continue
		}
		id := t.OccurredAt.String() + "|" + t.CategoryID
		if seen[id] {
			continue
		}
		seen[id] = true
		obs = append(obs, observation{day: t.OccurredAt, category: t.CategoryID})
	}
	if len(obs) == 0 {
		return nil, nil
	}

	keys := make(map[string]core.BudgetPeriodKey)
	for _, o := range obs {
		found, err := q.ListCoveringBudgetKeys(ctx, o.day, o.category)
		if err != nil {
			return nil, fmt.Errorf("plan invalidation: %w", err)
		}
		for _, k := range found {
			keys[k.String()] = k
		}
	}

	out := make([]core.BudgetPeriodKey, 0, len(keys))
	for _, k := range keys {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out, nil
}
