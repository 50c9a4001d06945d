package storage

import (
	"context"
	"time"

	"fintrack/internal/core"
)

const accountColumns = `id, name, type, initial_balance_cents, current_balance_cents, archived, created_at, updated_at`

func scanAccount(row rowScanner) (core.Account, error) {
	var (
		a                    core.Account
		typ                  string
		archived             int64
		createdAt, updatedAt string
	)
	if err := row.Scan(&a.ID, &a.Name, &typ, &a.InitialBalance.Cents, &a.CurrentBalance.Cents, &archived, &createdAt, &updatedAt); err != nil {
		return core.Account{}, err
	}
	a.Type = core.AccountType(typ)
	a.Archived = archived != 0
	a.CreatedAt = parseTime(createdAt)
	a.UpdatedAt = parseTime(updatedAt)
	return a, nil
}

func (q *Queries) InsertAccount(ctx context.Context, a core.Account) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Name, string(a.Type), a.InitialBalance.Cents, a.CurrentBalance.Cents,
		boolInt(a.Archived), formatTime(a.CreatedAt), formatTime(a.UpdatedAt))
	return mapError("insert account", err)
}

func (q *Queries) GetAccount(ctx context.Context, id string) (core.Account, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id)
	a, err := scanAccount(row)
	if err != nil {
		return core.Account{}, notFound("account", id, err)
	}
	return a, nil
}

func (q *Queries) ListAccounts(ctx context.Context, includeArchived bool) ([]core.Account, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+accountColumns+` FROM accounts
		WHERE archived = 0 OR ?
		ORDER BY name, id`, boolInt(includeArchived))
	if err != nil {
		return nil, mapError("list accounts", err)
	}
	defer rows.Close()

	var out []core.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, mapError("scan account", err)
		}
		out = append(out, a)
	}
	return out, mapError("list accounts", rows.Err())
}

func (q *Queries) SetAccountArchived(ctx context.Context, id string, archived bool, now time.Time) (int64, error) {
	res, err := q.db.ExecContext(ctx, `
		UPDATE accounts SET archived = ?, updated_at = ? WHERE id = ?`,
		boolInt(archived), formatTime(now), id)
	if err != nil {
		return 0, mapError("archive account", err)
	}
	return res.RowsAffected()
}

// AdjustAccountBalance adds delta cents to the current balance.
func (q *Queries) AdjustAccountBalance(ctx context.Context, id string, delta int64, now time.Time) (int64, error) {
	res, err := q.db.ExecContext(ctx, `
		UPDATE accounts
		SET current_balance_cents = current_balance_cents + ?, updated_at = ?
		WHERE id = ?`,
		delta, formatTime(now), id)
	if err != nil {
		return 0, mapError("adjust account balance", err)
	}
	return res.RowsAffected()
}

func (q *Queries) SetAccountBalance(ctx context.Context, id string, cents int64, now time.Time) (int64, error) {
	res, err := q.db.ExecContext(ctx, `
		UPDATE accounts SET current_balance_cents = ?, updated_at = ? WHERE id = ?`,
		cents, formatTime(now), id)
	if err != nil {
		return 0, mapError("set account balance", err)
	}
	return res.RowsAffected()
}

func (q *Queries) DeleteAccount(ctx context.Context, id string) (int64, error) {
	res, err := q.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, id)
	if err != nil {
		return 0, mapError("delete account", err)
	}
	return res.RowsAffected()
}

// ComputeAccountBalance recomputes the balance from the journal: the initial
// balance plus the signed effect of every non-pending transaction.
func (q *Queries) ComputeAccountBalance(ctx context.Context, id string) (int64, error) {
	var balance int64
	err := q.db.QueryRowContext(ctx, `
		SELECT a.initial_balance_cents + COALESCE((
			SELECT SUM(CASE
				WHEN t.type = 'income'   AND t.account_id = a.id THEN t.amount_cents
				WHEN t.type = 'expense'  AND t.account_id = a.id THEN -t.amount_cents
				WHEN t.type = 'transfer' AND t.account_id = a.id THEN -t.amount_cents
				WHEN t.type = 'transfer' AND t.destination_account_id = a.id THEN t.amount_cents
				ELSE 0 END)
			FROM transactions t
			WHERE t.is_pending = 0 AND (t.account_id = a.id OR t.destination_account_id = a.id)
		), 0)
		FROM accounts a WHERE a.id = ?`, id).Scan(&balance)
	if err != nil {
		return 0, notFound("account", id, err)
	}
	return balance, nil
}

func (q *Queries) InsertCategory(ctx context.Context, c core.Category, now time.Time) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO categories (id, name, type, created_at) VALUES (?, ?, ?, ?)`,
		c.ID, c.Name, string(c.Type), formatTime(now))
	return mapError("insert category", err)
}

func (q *Queries) GetCategory(ctx context.Context, id string) (core.Category, error) {
	var (
		c   core.Category
		typ string
	)
	err := q.db.QueryRowContext(ctx, `SELECT id, name, type FROM categories WHERE id = ?`, id).Scan(&c.ID, &c.Name, &typ)
	if err != nil {
		return core.Category{}, notFound("category", id, err)
	}
	c.Type = core.CategoryType(typ)
	return c, nil
}

func (q *Queries) ListCategories(ctx context.Context) ([]core.Category, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT id, name, type FROM categories ORDER BY type, name`)
	if err != nil {
		return nil, mapError("list categories", err)
	}
	defer rows.Close()

	var out []core.Category
	for rows.Next() {
		var (
			c   core.Category
			typ string
		)
		if err := rows.Scan(&c.ID, &c.Name, &typ); err != nil {
			return nil, mapError("scan category", err)
		}
		c.Type = core.CategoryType(typ)
		out = append(out, c)
	}
	return out, mapError("list categories", rows.Err())
}
