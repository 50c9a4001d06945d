package ledger

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

// InvalidationMode controls when budget cache rows are dropped.
type InvalidationMode string

const (
	// ModeAtomic drops cache rows inside the journal transaction. A failure
	// rolls back the whole write.
	ModeAtomic InvalidationMode = "atomic"
	// ModeBestEffort drops cache rows after commit. A failure is logged as a
	// CacheInconsistencyWarning and the write still succeeds.
	ModeBestEffort InvalidationMode = "best_effort"
)

func ParseInvalidationMode(s string) (InvalidationMode, error) {
	switch m := InvalidationMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "", ModeAtomic:
		return ModeAtomic, nil
	case ModeBestEffort:
		return ModeBestEffort, nil
	default:
		return "", fmt.Errorf("unknown invalidation mode %q", s)
	}
}

// Store is the part of storage.SQLiteRepository the ledger needs.
type Store interface {
	Queries() *storage.Queries
	WithTx(ctx context.Context, fn func(q *storage.Queries) error) error
}

var _ Store = (*storage.SQLiteRepository)(nil)

// Planner computes the cache keys a transaction change may have made stale.
type Planner interface {
	Plan(ctx context.Context, q *storage.Queries, prev, next *core.Transaction) ([]core.BudgetPeriodKey, error)
}

// Invalidator drops cache rows using q.
type Invalidator interface {
	InvalidateKeys(ctx context.Context, q *storage.Queries, keys []core.BudgetPeriodKey) error
}

// NewTransaction is the input of Journal.Create.
type NewTransaction struct {
	Type                 core.TransactionType
	AccountID            string
	DestinationAccountID string
	CategoryID           string
	Amount               core.Money
	OccurredAt           core.Date
	IsPending            bool
	Description          string
	Tags                 []string
}

// Journal is the entry point for every transaction write. Each call is one
// database transaction covering the row, the account balances and, in
// atomic mode, the budget cache rows. Events are published after commit.
type Journal struct {
	store       Store
	balances    *BalanceMaintainer
	planner     Planner
	invalidator Invalidator
	bus         *events.Bus
	mode        InvalidationMode
	logger      *log.Logger
	now         func() time.Time
}

type Option func(*Journal)

func WithInvalidationMode(mode InvalidationMode) Option {
	return func(j *Journal) { j.mode = mode }
}

func WithClock(now func() time.Time) Option {
	return func(j *Journal) { j.now = now }
}

func NewJournal(store Store, planner Planner, invalidator Invalidator, bus *events.Bus, logger *log.Logger, opts ...Option) *Journal {
	if logger == nil {
		logger = log.Discard()
	}
	j := &Journal{
		store:       store,
		balances:    NewBalanceMaintainer(logger),
		planner:     planner,
		invalidator: invalidator,
		bus:         bus,
		mode:        ModeAtomic,
		logger:      logger.WithComponent(log.ComponentLedger),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(j)
	}
	j.balances.now = j.now
	return j
}

// Mode reports the configured invalidation mode.
func (j *Journal) Mode() InvalidationMode {
	return j.mode
}

// Create validates and records a transaction and returns its ID.
func (j *Journal) Create(ctx context.Context, in NewTransaction) (string, error) {
	now := j.now().UTC()
	t := core.Transaction{
		ID:                   uuid.NewString(),
		Type:                 in.Type,
		AccountID:            in.AccountID,
		DestinationAccountID: in.DestinationAccountID,
		CategoryID:           in.CategoryID,
		Amount:               in.Amount,
		OccurredAt:           in.OccurredAt,
		IsPending:            in.IsPending,
		Description:          in.Description,
		Tags:                 append([]string(nil), in.Tags...),
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	t.Normalize()
	if err := t.Validate(); err != nil {
		return "", err
	}

	var keys []core.BudgetPeriodKey
	err := j.store.WithTx(ctx, func(q *storage.Queries) error {
		if err := q.InsertTransaction(ctx, t); err != nil {
			return err
		}
		if t.HasBalanceEffect() {
			if err := j.balances.Apply(ctx, q, t); err != nil {
				return err
			}
		}
		var err error
		keys, err = j.invalidateInTx(ctx, q, nil, &t)
		return err
	})
	if err != nil {
		j.logger.Failure(ctx, "Transaction create rolled back", log.OpCreate, err,
			log.FieldAccountID, t.AccountID)
		return "", fmt.Errorf("create transaction: %w", err)
	}

	keys = j.invalidateAfterCommit(ctx, t.ID, nil, &t, keys)
	j.logCommitted(ctx, log.OpCreate, t, keys)
	j.notify(ctx, events.ActionCreate, t.ID, affectedAccounts(&t), keys)
	return t.ID, nil
}

// Update applies patch to the stored transaction. The old balance effect is
// reversed and the new one applied within the same database transaction.
func (j *Journal) Update(ctx context.Context, id string, patch core.TransactionPatch) error {
	var (
		prev, next core.Transaction
		keys       []core.BudgetPeriodKey
	)
	err := j.store.WithTx(ctx, func(q *storage.Queries) error {
		var err error
		if prev, err = q.GetTransaction(ctx, id); err != nil {
			return err
		}
		if prev.HasBalanceEffect() {
			if err := j.balances.Reverse(ctx, q, prev); err != nil {
				return err
			}
		}

		next = patch.Apply(prev)
		next.UpdatedAt = j.now().UTC()
		if err := next.Validate(); err != nil {
			return err
		}
		rows, err := q.UpdateTransaction(ctx, next)
		if err != nil {
			return err
		}
		if rows == 0 {
			return &core.NotFoundError{Entity: "transaction", ID: id}
		}

		if next.HasBalanceEffect() {
			if err := j.balances.Apply(ctx, q, next); err != nil {
				return err
			}
		}
		keys, err = j.invalidateInTx(ctx, q, &prev, &next)
		return err
	})
	if err != nil {
		j.logger.Failure(ctx, "Transaction update rolled back", log.OpUpdate, err,
			log.FieldTransactionID, id)
		return fmt.Errorf("update transaction %s: %w", id, err)
	}

	keys = j.invalidateAfterCommit(ctx, id, &prev, &next, keys)
	j.logCommitted(ctx, log.OpUpdate, next, keys)
	j.notify(ctx, events.ActionUpdate, id, affectedAccounts(&prev, &next), keys)
	return nil
}

// Delete removes the transaction and reverses its balance effect.
func (j *Journal) Delete(ctx context.Context, id string) error {
	var (
		prev core.Transaction
		keys []core.BudgetPeriodKey
	)
	err := j.store.WithTx(ctx, func(q *storage.Queries) error {
		var err error
		if prev, err = q.GetTransaction(ctx, id); err != nil {
			return err
		}
		if prev.HasBalanceEffect() {
			if err := j.balances.Reverse(ctx, q, prev); err != nil {
				return err
			}
		}
		if _, err := q.DeleteTransaction(ctx, id); err != nil {
			return err
		}
		keys, err = j.invalidateInTx(ctx, q, &prev, nil)
		return err
	})
	if err != nil {
		j.logger.Failure(ctx, "Transaction delete rolled back", log.OpDelete, err,
			log.FieldTransactionID, id)
		return fmt.Errorf("delete transaction %s: %w", id, err)
	}

	keys = j.invalidateAfterCommit(ctx, id, &prev, nil, keys)
	j.logCommitted(ctx, log.OpDelete, prev, keys)
	j.notify(ctx, events.ActionDelete, id, affectedAccounts(&prev), keys)
	return nil
}

func (j *Journal) Get(ctx context.Context, id string) (core.Transaction, error) {
	return j.store.Queries().GetTransaction(ctx, id)
}

func (j *Journal) List(ctx context.Context, filter storage.TransactionFilter) ([]core.Transaction, error) {
	return j.store.Queries().ListTransactions(ctx, filter)
}

func (j *Journal) invalidateInTx(ctx context.Context, q *storage.Queries, prev, next *core.Transaction) ([]core.BudgetPeriodKey, error) {
	if j.mode != ModeAtomic {
		return nil, nil
	}
	return j.invalidate(ctx, q, prev, next)
}

func (j *Journal) invalidate(ctx context.Context, q *storage.Queries, prev, next *core.Transaction) ([]core.BudgetPeriodKey, error) {
	keys, err := j.planner.Plan(ctx, q, prev, next)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, nil
	}
	if err := j.invalidator.InvalidateKeys(ctx, q, keys); err != nil {
		return nil, err
	}
	return keys, nil
}

// invalidateAfterCommit runs the best effort path. In atomic mode it returns
// the keys already dropped inside the transaction.
func (j *Journal) invalidateAfterCommit(ctx context.Context, id string, prev, next *core.Transaction, keys []core.BudgetPeriodKey) []core.BudgetPeriodKey {
	if j.mode != ModeBestEffort {
		return keys
	}
	err := j.store.WithTx(ctx, func(q *storage.Queries) error {
		var err error
		keys, err = j.invalidate(ctx, q, prev, next)
		return err
	})
	if err != nil {
		warning := &core.CacheInconsistencyWarning{TransactionID: id, Err: err}
		j.logger.WarnContext(ctx, "Budget cache may be stale",
			log.FieldTransactionID, id,
			log.FieldError, warning.Error())
		return nil
	}
	return keys
}

func (j *Journal) notify(ctx context.Context, action events.Action, id string, accounts []string, keys []core.BudgetPeriodKey) {
	j.bus.Publish(ctx, events.TransactionsChanged{Action: action, ID: id})
	if len(accounts) > 0 {
		j.bus.Publish(ctx, events.AccountBalancesChanged{AccountIDs: accounts})
	}
	if len(keys) > 0 {
		j.bus.Publish(ctx, events.BudgetProgressInvalidated{Reason: string(action), Keys: keys})
	}
}

func (j *Journal) logCommitted(ctx context.Context, op string, t core.Transaction, keys []core.BudgetPeriodKey) {
	j.logger.InfoContext(ctx, "Transaction committed",
		append(log.NewFields().
			WithTransaction(t.ID, string(t.Type), t.AccountID, t.Amount.Cents).
			WithOperation(op).
			ToSlice(),
			log.FieldKeys, len(keys))...)
}
