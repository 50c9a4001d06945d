package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"fintrack/internal/core"
)

const budgetColumns = `id, name, category_id, amount_cents, period_start, period_end,
	alert_percentage, is_active, created_at, updated_at`

func scanBudget(row rowScanner) (core.Budget, error) {
	var (
		b                    core.Budget
		category             sql.NullString
		start, end           string
		active               int64
		createdAt, updatedAt string
	)
	if err := row.Scan(&b.ID, &b.Name, &category, &b.Amount.Cents, &start, &end,
		&b.AlertPercentage, &active, &createdAt, &updatedAt); err != nil {
		return core.Budget{}, err
	}
	var err error
	if b.PeriodStart, err = parseDate(start); err != nil {
		return core.Budget{}, err
	}
	if b.PeriodEnd, err = parseDate(end); err != nil {
		return core.Budget{}, err
	}
	b.CategoryID = category.String
	b.IsActive = active != 0
	b.CreatedAt = parseTime(createdAt)
	b.UpdatedAt = parseTime(updatedAt)
	return b, nil
}

func (q *Queries) InsertBudget(ctx context.Context, b core.Budget) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO budgets (`+budgetColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.Name, nullString(b.CategoryID), b.Amount.Cents, b.PeriodStart.String(), b.PeriodEnd.String(),
		b.AlertPercentage, boolInt(b.IsActive), formatTime(b.CreatedAt), formatTime(b.UpdatedAt))
	return mapError("insert budget", err)
}

func (q *Queries) GetBudget(ctx context.Context, id string) (core.Budget, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+budgetColumns+` FROM budgets WHERE id = ?`, id)
	b, err := scanBudget(row)
	if err != nil {
		return core.Budget{}, notFound("budget", id, err)
	}
	return b, nil
}

func (q *Queries) UpdateBudget(ctx context.Context, b core.Budget) (int64, error) {
	res, err := q.db.ExecContext(ctx, `
		UPDATE budgets SET
			name = ?, category_id = ?, amount_cents = ?, period_start = ?, period_end = ?,
			alert_percentage = ?, is_active = ?, updated_at = ?
		WHERE id = ?`,
		b.Name, nullString(b.CategoryID), b.Amount.Cents, b.PeriodStart.String(), b.PeriodEnd.String(),
		b.AlertPercentage, boolInt(b.IsActive), formatTime(b.UpdatedAt), b.ID)
	if err != nil {
		return 0, mapError("update budget", err)
	}
	return res.RowsAffected()
}

func (q *Queries) DeleteBudget(ctx context.Context, id string) (int64, error) {
	res, err := q.db.ExecContext(ctx, `DELETE FROM budgets WHERE id = ?`, id)
	if err != nil {
		return 0, mapError("delete budget", err)
	}
	return res.RowsAffected()
}

func (q *Queries) ListBudgets(ctx context.Context, activeOnly bool) ([]core.Budget, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+budgetColumns+` FROM budgets
		WHERE is_active = 1 OR ? = 0
		ORDER BY period_start, name`, boolInt(activeOnly))
	if err != nil {
		return nil, mapError("list budgets", err)
	}
	defer rows.Close()

	var out []core.Budget
	for rows.Next() {
		b, err := scanBudget(rows)
		if err != nil {
			return nil, mapError("scan budget", err)
		}
		out = append(out, b)
	}
	return out, mapError("list budgets", rows.Err())
}

// ListCoveringBudgetKeys returns the cache keys of active budgets whose period
// contains day and whose category is NULL or equal to categoryID. An empty
// categoryID only matches NULL-category budgets.
func (q *Queries) ListCoveringBudgetKeys(ctx context.Context, day core.Date, categoryID string) ([]core.BudgetPeriodKey, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, period_start, period_end
		FROM budgets
		WHERE is_active = 1
		  AND period_start <= ?
		  AND period_end >= ?
		  AND (category_id IS NULL OR category_id = ?)`,
		day.String(), day.String(), nullString(categoryID))
	if err != nil {
		return nil, mapError("list covering budgets", err)
	}
	defer rows.Close()

	var out []core.BudgetPeriodKey
	for rows.Next() {
		var (
			k          core.BudgetPeriodKey
			start, end string
		)
		if err := rows.Scan(&k.BudgetID, &start, &end); err != nil {
			return nil, mapError("scan covering budget", err)
		}
		if k.PeriodStart, err = parseDate(start); err != nil {
			return nil, err
		}
		if k.PeriodEnd, err = parseDate(end); err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, mapError("list covering budgets", rows.Err())
}

// GetCachedSpent returns the cached spent total for key, if present.
func (q *Queries) GetCachedSpent(ctx context.Context, key core.BudgetPeriodKey) (int64, bool, error) {
	var spent int64
	err := q.db.QueryRowContext(ctx, `
		SELECT spent_cents FROM budget_progress_cache
		WHERE budget_id = ? AND period_start = ? AND period_end = ?`,
		key.BudgetID, key.PeriodStart.String(), key.PeriodEnd.String()).Scan(&spent)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, mapError("get cached spent", err)
	}
	return spent, true, nil
}

func (q *Queries) UpsertCachedSpent(ctx context.Context, key core.BudgetPeriodKey, spent int64, now time.Time) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO budget_progress_cache (budget_id, period_start, period_end, spent_cents, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (budget_id, period_start, period_end)
		DO UPDATE SET spent_cents = excluded.spent_cents, updated_at = excluded.updated_at`,
		key.BudgetID, key.PeriodStart.String(), key.PeriodEnd.String(), spent, formatTime(now))
	return mapError("upsert cached spent", err)
}

func (q *Queries) DeleteCachedSpent(ctx context.Context, key core.BudgetPeriodKey) (int64, error) {
	res, err := q.db.ExecContext(ctx, `
		DELETE FROM budget_progress_cache
		WHERE budget_id = ? AND period_start = ? AND period_end = ?`,
		key.BudgetID, key.PeriodStart.String(), key.PeriodEnd.String())
	if err != nil {
		return 0, mapError("delete cached spent", err)
	}
	return res.RowsAffected()
}

func (q *Queries) DeleteCachedSpentForBudget(ctx context.Context, budgetID string) (int64, error) {
	res, err := q.db.ExecContext(ctx, `DELETE FROM budget_progress_cache WHERE budget_id = ?`, budgetID)
	if err != nil {
		return 0, mapError("delete budget cache", err)
	}
	return res.RowsAffected()
}

func (q *Queries) DeleteAllCachedSpent(ctx context.Context) (int64, error) {
	res, err := q.db.ExecContext(ctx, `DELETE FROM budget_progress_cache`)
	if err != nil {
		return 0, mapError("clear budget cache", err)
	}
	return res.RowsAffected()
}

func (q *Queries) CountCachedSpent(ctx context.Context) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM budget_progress_cache`).Scan(&n)
	return n, mapError("count budget cache", err)
}
