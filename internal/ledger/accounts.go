package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"fintrack/internal/core"
	"fintrack/internal/log"
)

// NewAccount is the input of Accounts.CreateAccount.
type NewAccount struct {
	Name           string
	Type           core.AccountType
	InitialBalance core.Money
}

// Accounts manages accounts and categories. Balances are never written here
// except at creation, where the current balance starts at the initial one.
type Accounts struct {
	store  Store
	logger *log.Logger
	now    func() time.Time
}

func NewAccounts(store Store, logger *log.Logger) *Accounts {
	if logger == nil {
		logger = log.Discard()
	}
	return &Accounts{
		store:  store,
		logger: logger.WithComponent(log.ComponentLedger),
		now:    time.Now,
	}
}

func (s *Accounts) CreateAccount(ctx context.Context, in NewAccount) (core.Account, error) {
	now := s.now().UTC()
	a := core.Account{
		ID:             uuid.NewString(),
		Name:           strings.TrimSpace(in.Name),
		Type:           in.Type,
		InitialBalance: in.InitialBalance,
		CurrentBalance: in.InitialBalance,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := a.Validate(); err != nil {
		return core.Account{}, err
	}
	if err := s.store.Queries().InsertAccount(ctx, a); err != nil {
		return core.Account{}, fmt.Errorf("create account: %w", err)
	}

	s.logger.InfoContext(ctx, "Account created",
		log.FieldAccountID, a.ID,
		log.FieldOperation, log.OpCreate,
		log.FieldAmountCents, a.InitialBalance.Cents)
	return a, nil
}

func (s *Accounts) GetAccount(ctx context.Context, id string) (core.Account, error) {
	return s.store.Queries().GetAccount(ctx, id)
}

func (s *Accounts) ListAccounts(ctx context.Context, includeArchived bool) ([]core.Account, error) {
	return s.store.Queries().ListAccounts(ctx, includeArchived)
}

// SetArchived hides or restores an account. Archived accounts keep their
// transactions and balance.
func (s *Accounts) SetArchived(ctx context.Context, id string, archived bool) error {
	rows, err := s.store.Queries().SetAccountArchived(ctx, id, archived, s.now().UTC())
	if err != nil {
		return fmt.Errorf("archive account %s: %w", id, err)
	}
	if rows == 0 {
		return &core.NotFoundError{Entity: "account", ID: id}
	}
	return nil
}

// DeleteAccount fails with an IntegrityError while transactions reference
// the account.
func (s *Accounts) DeleteAccount(ctx context.Context, id string) error {
	rows, err := s.store.Queries().DeleteAccount(ctx, id)
	if err != nil {
		return fmt.Errorf("delete account %s: %w", id, err)
	}
	if rows == 0 {
		return &core.NotFoundError{Entity: "account", ID: id}
	}
	s.logger.InfoContext(ctx, "Account deleted",
		log.FieldAccountID, id,
		log.FieldOperation, log.OpDelete)
	return nil
}

func (s *Accounts) CreateCategory(ctx context.Context, name string, typ core.CategoryType) (core.Category, error) {
	c := core.Category{ID: uuid.NewString(), Name: strings.TrimSpace(name), Type: typ}
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}
	if err := s.store.Queries().InsertCategory(ctx, c, s.now().UTC()); err != nil {
		return core.Category{}, fmt.Errorf("create category: %w", err)
	}
	return c, nil
}

func (s *Accounts) GetCategory(ctx context.Context, id string) (core.Category, error) {
	return s.store.Queries().GetCategory(ctx, id)
}

func (s *Accounts) ListCategories(ctx context.Context) ([]core.Category, error) {
	return s.store.Queries().ListCategories(ctx)
}
