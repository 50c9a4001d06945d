package budget

import (
	"context"
	"testing"

	"fintrack/internal/core"
	"fintrack/internal/events"
)

func TestService_CreateSeedsCurrentSpent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.expense(t, "food", 3000, jan15, false)

	b := f.budget(t, "Food", "food", 50000, jan1, jan31)
	if b.AlertPercentage != core.DefaultAlertPercentage || !b.IsActive {
		t.Errorf("defaults not applied: alert=%d active=%v", b.AlertPercentage, b.IsActive)
	}

	spent, ok, err := f.repo.Queries().GetCachedSpent(ctx, b.Key())
	if err != nil || !ok {
		t.Fatalf("seed row missing: ok=%v err=%v", ok, err)
	}
	if spent != 3000 {
		t.Errorf("seeded spent = %d, want 3000", spent)
	}
}

func TestService_CreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		in   NewBudget
	}{
		{"empty name", NewBudget{Amount: core.Money{Cents: 1}, PeriodStart: jan1, PeriodEnd: jan31}},
		{"zero amount", NewBudget{Name: "x", PeriodStart: jan1, PeriodEnd: jan31}},
		{"inverted period", NewBudget{Name: "x", Amount: core.Money{Cents: 1}, PeriodStart: jan31, PeriodEnd: jan1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.service.Create(ctx, tt.in); !core.IsValidation(err) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
		})
	}

	_, err := f.service.Create(ctx, NewBudget{
		Name: "ghost", CategoryID: "missing", Amount: core.Money{Cents: 1}, PeriodStart: jan1, PeriodEnd: jan31,
	})
	if !core.IsIntegrity(err) {
		t.Fatalf("unknown category: expected IntegrityError, got %v", err)
	}
	if n, _ := f.repo.Queries().CountCachedSpent(ctx); n != 0 {
		t.Errorf("cache rows after failed create = %d, want 0", n)
	}
}

func TestService_UpdateInvalidatesOwnRows(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.budget(t, "Food", "food", 50000, jan1, jan31)
	other := f.budget(t, "Fun", "fun", 50000, jan1, jan31)
	f.expense(t, "fun", 800, jan15, false)

	var got []events.BudgetProgressInvalidated
	events.Subscribe(f.bus, func(_ context.Context, e events.BudgetProgressInvalidated) { got = append(got, e) })

	category := ""
	updated, err := f.service.Update(ctx, b.ID, core.BudgetPatch{CategoryID: &category})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.CategoryID != "" {
		t.Errorf("category = %q, want general", updated.CategoryID)
	}

	if _, ok, _ := f.repo.Queries().GetCachedSpent(ctx, b.Key()); ok {
		t.Error("updated budget's cache row survived")
	}
	if _, ok, _ := f.repo.Queries().GetCachedSpent(ctx, other.Key()); !ok {
		t.Error("unrelated budget's cache row was dropped")
	}
	if len(got) != 1 || got[0].Reason != "budget.update" || got[0].Keys[0].BudgetID != b.ID {
		t.Errorf("events = %+v", got)
	}

	p, err := f.service.Progress(ctx, b.ID)
	if err != nil {
		t.Fatalf("progress: %v", err)
	}
	if p.Spent.Cents != 800 {
		t.Errorf("spent after widening to all categories = %d, want 800", p.Spent.Cents)
	}
}

func TestService_UpdateRejectsInvalidPatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.budget(t, "Food", "food", 50000, jan1, jan31)

	zero := core.Money{}
	if _, err := f.service.Update(ctx, b.ID, core.BudgetPatch{Amount: &zero}); !core.IsValidation(err) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if _, ok, _ := f.repo.Queries().GetCachedSpent(ctx, b.Key()); !ok {
		t.Error("cache row dropped by a rejected update")
	}
	if _, err := f.service.Update(ctx, "missing", core.BudgetPatch{}); !core.IsNotFound(err) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestService_Delete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.budget(t, "Food", "food", 50000, jan1, jan31)
	if _, err := f.cache.Get(ctx, b.ID, jan1, jan15); err != nil {
		t.Fatalf("fill sub-period: %v", err)
	}

	if err := f.service.Delete(ctx, b.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if n, _ := f.repo.Queries().CountCachedSpent(ctx); n != 0 {
		t.Errorf("cache rows left = %d", n)
	}
	if _, err := f.service.Get(ctx, b.ID); !core.IsNotFound(err) {
		t.Errorf("budget still readable: %v", err)
	}
	if err := f.service.Delete(ctx, b.ID); !core.IsNotFound(err) {
		t.Errorf("second delete: expected NotFoundError, got %v", err)
	}
}

func TestService_ProgressAll(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.budget(t, "General", "", 10000, jan1, jan31)
	f.budget(t, "Food", "food", 5000, jan1, jan31)
	f.expense(t, "food", 4500, jan15, false)
	if _, err := f.cache.Rebuild(ctx); err != nil {
		t.Fatalf("rebuild: %v", err)
	}

	all, err := f.service.ProgressAll(ctx)
	if err != nil {
		t.Fatalf("progress all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("got %d progress entries, want 2", len(all))
	}
	for _, p := range all {
		if p.Spent.Cents != 4500 {
			t.Errorf("%s spent = %d, want 4500", p.Budget.Name, p.Spent.Cents)
		}
		if p.Budget.Name == "Food" && (!p.IsAlert || p.Percentage.String() != "90") {
			t.Errorf("food progress = %s%% alert=%v", p.Percentage, p.IsAlert)
		}
	}
}

func TestService_UpdatePeriodPublishesOnlyCurrentKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.budget(t, "Food", "food", 50000, jan1, jan31)

	var got []events.BudgetProgressInvalidated
	events.Subscribe(f.bus, func(_ context.Context, e events.BudgetProgressInvalidated) { got = append(got, e) })

	start, end := feb1, feb29
	updated, err := f.service.Update(ctx, b.ID, core.BudgetPatch{PeriodStart: &start, PeriodEnd: &end})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	if len(got) != 1 || len(got[0].Keys) != 1 {
		t.Fatalf("events = %+v, want one key", got)
	}
	if got[0].Keys[0].String() != updated.Key().String() {
		t.Errorf("published %s, want %s", got[0].Keys[0], updated.Key())
	}
	if _, ok, _ := f.repo.Queries().GetCachedSpent(ctx, b.Key()); ok {
		t.Error("old period row survived the update")
	}
}
