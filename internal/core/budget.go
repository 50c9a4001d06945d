package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultAlertPercentage is used when a budget is created without a threshold.
const DefaultAlertPercentage = 80

type (
	// Budget caps expense spending over an inclusive date range. An empty
	// CategoryID matches every expense category.
	Budget struct {
		ID              string
		Name            string
		CategoryID      string
		Amount          Money
		PeriodStart     Date
		PeriodEnd       Date
		AlertPercentage int
		IsActive        bool
		CreatedAt       time.Time
		UpdatedAt       time.Time
	}

	BudgetPatch struct {
		Name            *string
		CategoryID      *string
		Amount          *Money
		PeriodStart     *Date
		PeriodEnd       *Date
		AlertPercentage *int
		IsActive        *bool
	}

	// BudgetPeriodKey identifies one row of the budget progress cache.
	BudgetPeriodKey struct {
		BudgetID    string `json:"budget_id"`
		PeriodStart Date   `json:"period_start"`
		PeriodEnd   Date   `json:"period_end"`
	}
)

var ErrInvalidPeriod = errors.New("period end must not precede period start")

func (b Budget) Validate() error {
	if strings.TrimSpace(b.Name) == "" {
		return &ValidationError{Field: "name", Err: ErrEmptyName}
	}
	if err := b.Amount.Validate(); err != nil {
		return &ValidationError{Field: "amount", Err: err}
	}
	if err := b.PeriodStart.Validate(); err != nil {
		return &ValidationError{Field: "period_start", Err: err}
	}
	if err := b.PeriodEnd.Validate(); err != nil {
		return &ValidationError{Field: "period_end", Err: err}
	}
	if b.PeriodEnd.String() < b.PeriodStart.String() {
		return &ValidationError{Field: "period_end", Err: ErrInvalidPeriod}
	}
	if b.AlertPercentage < 0 || b.AlertPercentage > 100 {
		return &ValidationError{Field: "alert_percentage", Err: errors.New("must be between 0 and 100")}
	}
	return nil
}

// Key returns the cache key of the budget's own period.
func (b Budget) Key() BudgetPeriodKey {
	return BudgetPeriodKey{BudgetID: b.ID, PeriodStart: b.PeriodStart, PeriodEnd: b.PeriodEnd}
}

// Covers reports whether t counts towards the budget's spent total.
func (b Budget) Covers(t Transaction) bool {
	if t.Type != Expense || t.IsPending {
		return false
	}
	if !t.OccurredAt.Within(b.PeriodStart, b.PeriodEnd) {
		return false
	}
	return b.CategoryID == "" || b.CategoryID == t.CategoryID
}

func (p BudgetPatch) Apply(b Budget) Budget {
	out := b
	if p.Name != nil {
		out.Name = strings.TrimSpace(*p.Name)
	}
	if p.CategoryID != nil {
		out.CategoryID = *p.CategoryID
	}
	if p.Amount != nil {
		out.Amount = *p.Amount
	}
	if p.PeriodStart != nil {
		out.PeriodStart = *p.PeriodStart
	}
	if p.PeriodEnd != nil {
		out.PeriodEnd = *p.PeriodEnd
	}
	if p.AlertPercentage != nil {
		out.AlertPercentage = *p.AlertPercentage
	}
	if p.IsActive != nil {
		out.IsActive = *p.IsActive
	}
	return out
}

func (k BudgetPeriodKey) String() string {
	return fmt.Sprintf("%s[%s..%s]", k.BudgetID, k.PeriodStart, k.PeriodEnd)
}
