package ledger

import (
	"context"
	"fmt"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/events"
	"fintrack/internal/log"
	"fintrack/internal/storage"
)

// Drift compares an account's stored balance with the balance recomputed
// from the journal.
type Drift struct {
	AccountID string
	Stored    core.Money
	Computed  core.Money
}

func (d Drift) InSync() bool {
	return d.Stored == d.Computed
}

// Delta is what must be added to the stored balance to fix it.
func (d Drift) Delta() core.Money {
	return d.Computed.Sub(d.Stored)
}

// Reconciler checks and repairs the balance invariant. It is a maintenance
// tool; the journal never needs it.
type Reconciler struct {
	store  Store
	bus    *events.Bus
	logger *log.Logger
	now    func() time.Time
}

func NewReconciler(store Store, bus *events.Bus, logger *log.Logger) *Reconciler {
	if logger == nil {
		logger = log.Discard()
	}
	return &Reconciler{
		store:  store,
		bus:    bus,
		logger: logger.WithComponent(log.ComponentLedger),
		now:    time.Now,
	}
}

func (r *Reconciler) Check(ctx context.Context, accountID string) (Drift, error) {
	return r.check(ctx, r.store.Queries(), accountID)
}

// CheckAll returns one Drift per account, archived ones included.
func (r *Reconciler) CheckAll(ctx context.Context) ([]Drift, error) {
	accounts, err := r.store.Queries().ListAccounts(ctx, true)
	if err != nil {
		return nil, err
	}
	out := make([]Drift, 0, len(accounts))
	for _, a := range accounts {
		d, err := r.Check(ctx, a.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// Repair overwrites the stored balance with the recomputed one. The check
// and the write share one transaction.
func (r *Reconciler) Repair(ctx context.Context, accountID string) (Drift, error) {
	var d Drift
	err := r.store.WithTx(ctx, func(q *storage.Queries) error {
		var err error
		if d, err = r.check(ctx, q, accountID); err != nil {
			return err
		}
		if d.InSync() {
			return nil
		}
		_, err = q.SetAccountBalance(ctx, accountID, d.Computed.Cents, r.now().UTC())
		return err
	})
	if err != nil {
		return Drift{}, fmt.Errorf("repair account %s: %w", accountID, err)
	}

	if !d.InSync() {
		r.logger.WarnContext(ctx, "Account balance repaired",
			log.FieldAccountID, accountID,
			log.FieldOperation, log.OpRepair,
			"stored_cents", d.Stored.Cents,
			"computed_cents", d.Computed.Cents)
		r.bus.Publish(ctx, events.AccountBalancesChanged{AccountIDs: []string{accountID}})
	}
	return d, nil
}

func (r *Reconciler) check(ctx context.Context, q *storage.Queries, accountID string) (Drift, error) {
	a, err := q.GetAccount(ctx, accountID)
	if err != nil {
		return Drift{}, err
	}
	computed, err := q.ComputeAccountBalance(ctx, accountID)
	if err != nil {
		return Drift{}, err
	}
	return Drift{
		AccountID: accountID,
		Stored:    a.CurrentBalance,
		Computed:  core.Money{Cents: computed},
	}, nil
}
