package ledger

import (
	"context"
	"errors"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/storage"
)

// ErrPendingTransaction is returned when a pending transaction is posted to
// or reversed from account balances. Pending transactions have no balance
// effect; callers must check HasBalanceEffect first.
var ErrPendingTransaction = errors.New("pending transaction has no balance effect")

// BalanceMaintainer is the only writer of accounts.current_balance_cents
// outside reconciliation.
type BalanceMaintainer struct {
	logger *log.Logger
	now    func() time.Time
}

func NewBalanceMaintainer(logger *log.Logger) *BalanceMaintainer {
	if logger == nil {
		logger = log.Discard()
	}
	return &BalanceMaintainer{
		logger: logger.WithComponent(log.ComponentLedger),
		now:    time.Now,
	}
}

// Apply posts the transaction's effect: income credits the origin, expense
// debits it, a transfer moves the amount from origin to destination.
func (m *BalanceMaintainer) Apply(ctx context.Context, q *storage.Queries, t core.Transaction) error {
	return m.post(ctx, q, t, 1)
}

// Reverse posts the exact negation of Apply.
func (m *BalanceMaintainer) Reverse(ctx context.Context, q *storage.Queries, t core.Transaction) error {
	return m.post(ctx, q, t, -1)
}

func (m *BalanceMaintainer) post(ctx context.Context, q *storage.Queries, t core.Transaction, sign int64) error {
	if t.IsPending {
		return ErrPendingTransaction
	}
	amount := sign * t.Amount.Cents

	switch t.Type {
	case core.Income:
		return m.adjustOrigin(ctx, q, t.AccountID, amount)
	case core.Expense:
		return m.adjustOrigin(ctx, q, t.AccountID, -amount)
	case core.Transfer:
		if err := m.adjustOrigin(ctx, q, t.AccountID, -amount); err != nil {
			return err
		}
		rows, err := q.AdjustAccountBalance(ctx, t.DestinationAccountID, amount, m.now().UTC())
		if err != nil {
			return err
		}
		if rows == 0 {
			m.logger.WarnContext(ctx, "Transfer destination account missing, skipping credit",
				log.FieldTransactionID, t.ID,
				log.FieldAccountID, t.DestinationAccountID)
		}
		return nil
	default:
		return &core.ValidationError{Field: "type", Err: core.ErrUnknownType}
	}
}

func (m *BalanceMaintainer) adjustOrigin(ctx context.Context, q *storage.Queries, accountID string, delta int64) error {
	rows, err := q.AdjustAccountBalance(ctx, accountID, delta, m.now().UTC())
	if err != nil {
		return err
	}
	if rows == 0 {
		return &core.NotFoundError{Entity: "account", ID: accountID}
	}
	return nil
}

// affectedAccounts lists the accounts whose balance moved between prev and
// next, in first-seen order.
func affectedAccounts(txs ...*core.Transaction) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	for _, t := range txs {
		if t == nil || !t.HasBalanceEffect() {
			continue
		}
		add(t.AccountID)
		if t.Type == core.Transfer {
			add(t.DestinationAccountID)
		}
	}
	return out
}
