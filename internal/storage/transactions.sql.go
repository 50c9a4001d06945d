package storage

import (
	"context"
	"database/sql"
	"strings"

	"fintrack/internal/core"
)

const transactionColumns = `id, type, account_id, destination_account_id, category_id, amount_cents,
	description, occurred_at, is_pending, tags, created_at, updated_at`

// TransactionFilter narrows ListTransactions. Zero values are ignored.
type TransactionFilter struct {
	AccountID string
	From      core.Date
	To        core.Date
	Limit     int
}

func scanTransaction(row rowScanner) (core.Transaction, error) {
	var (
		t                    core.Transaction
		typ, occurredAt      string
		dest, category       sql.NullString
		pending              int64
		tags                 string
		createdAt, updatedAt string
	)
	if err := row.Scan(&t.ID, &typ, &t.AccountID, &dest, &category, &t.Amount.Cents,
		&t.Description, &occurredAt, &pending, &tags, &createdAt, &updatedAt); err != nil {
		return core.Transaction{}, err
	}
	date, err := parseDate(occurredAt)
	if err != nil {
		return core.Transaction{}, err
	}
	if t.Tags, err = decodeTags(tags); err != nil {
		return core.Transaction{}, err
	}
	t.Type = core.TransactionType(typ)
	t.DestinationAccountID = dest.String
	t.CategoryID = category.String
	t.OccurredAt = date
	t.IsPending = pending != 0
	t.CreatedAt = parseTime(createdAt)
	t.UpdatedAt = parseTime(updatedAt)
	return t, nil
}

func (q *Queries) InsertTransaction(ctx context.Context, t core.Transaction) error {
	tags, err := encodeTags(t.Tags)
	if err != nil {
		return err
	}
	_, err = q.db.ExecContext(ctx, `
		INSERT INTO transactions (`+transactionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, string(t.Type), t.AccountID, nullString(t.DestinationAccountID), nullString(t.CategoryID),
		t.Amount.Cents, t.Description, t.OccurredAt.String(), boolInt(t.IsPending), tags,
		formatTime(t.CreatedAt), formatTime(t.UpdatedAt))
	return mapError("insert transaction", err)
}

func (q *Queries) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)
	t, err := scanTransaction(row)
	if err != nil {
		return core.Transaction{}, notFound("transaction", id, err)
	}
	return t, nil
}

func (q *Queries) UpdateTransaction(ctx context.Context, t core.Transaction) (int64, error) {
	tags, err := encodeTags(t.Tags)
	if err != nil {
		return 0, err
	}
	res, err := q.db.ExecContext(ctx, `
		UPDATE transactions SET
			type = ?, account_id = ?, destination_account_id = ?, category_id = ?,
			amount_cents = ?, description = ?, occurred_at = ?, is_pending = ?, tags = ?, updated_at = ?
		WHERE id = ?`,
		string(t.Type), t.AccountID, nullString(t.DestinationAccountID), nullString(t.CategoryID),
		t.Amount.Cents, t.Description, t.OccurredAt.String(), boolInt(t.IsPending), tags,
		formatTime(t.UpdatedAt), t.ID)
	if err != nil {
		return 0, mapError("update transaction", err)
	}
	return res.RowsAffected()
}

func (q *Queries) DeleteTransaction(ctx context.Context, id string) (int64, error) {
	res, err := q.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id)
	if err != nil {
		return 0, mapError("delete transaction", err)
	}
	return res.RowsAffected()
}

func (q *Queries) ListTransactions(ctx context.Context, f TransactionFilter) ([]core.Transaction, error) {
	var (
		where []string
		args  []any
	)
	if f.AccountID != "" {
		where = append(where, "(account_id = ? OR destination_account_id = ?)")
		args = append(args, f.AccountID, f.AccountID)
	}
	if !f.From.IsZero() {
		where = append(where, "occurred_at >= ?")
		args = append(args, f.From.String())
	}
	if !f.To.IsZero() {
		where = append(where, "occurred_at <= ?")
		args = append(args, f.To.String())
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY occurred_at DESC, created_at DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError("list transactions", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, mapError("scan transaction", err)
		}
		out = append(out, t)
	}
	return out, mapError("list transactions", rows.Err())
}

// SumSpent totals non-pending expenses in [start, end]. An empty categoryID
// matches every category.
func (q *Queries) SumSpent(ctx context.Context, categoryID string, start, end core.Date) (int64, error) {
	var spent int64
	cat := nullString(categoryID)
	err := q.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount_cents), 0)
		FROM transactions
		WHERE type = 'expense'
		  AND is_pending = 0
		  AND occurred_at BETWEEN ? AND ?
		  AND (? IS NULL OR category_id = ?)`,
		start.String(), end.String(), cat, cat).Scan(&spent)
	if err != nil {
		return 0, mapError("sum spent", err)
	}
	return spent, nil
}
