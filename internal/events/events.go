// Package events is the in-process notification bus of the ledger. Events
// are published after the database transaction that caused them commits;
// delivery is synchronous and best effort.
package events

import (
	"fintrack/internal/core"
)

// Kind names an event type. It doubles as the AMQP routing key.
type Kind string

const (
	KindTransactionsChanged       Kind = "transactions.changed"
	KindAccountBalancesChanged    Kind = "accounts.balances_changed"
	KindBudgetProgressInvalidated Kind = "budgets.progress_invalidated"
)

// Action describes what happened to a transaction.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Event is implemented by every payload type.
type Event interface {
	Kind() Kind
}

type TransactionsChanged struct {
	Action Action `json:"action"`
	ID     string `json:"id"`
}

type AccountBalancesChanged struct {
	AccountIDs []string `json:"account_ids"`
}

// BudgetProgressInvalidated lists the cache keys dropped by a write. Reason is
// a transaction action or a budget operation such as "budget.update".
type BudgetProgressInvalidated struct {
	Reason string                 `json:"reason"`
	Keys   []core.BudgetPeriodKey `json:"keys"`
}

func (TransactionsChanged) Kind() Kind       { return KindTransactionsChanged }
func (AccountBalancesChanged) Kind() Kind    { return KindAccountBalancesChanged }
func (BudgetProgressInvalidated) Kind() Kind { return KindBudgetProgressInvalidated }
