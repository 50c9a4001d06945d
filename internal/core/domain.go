package core

import (
	"errors"
	"strings"
	"time"
)

// DateLayout is the storage and wire representation of a calendar day.
const DateLayout = "2006-01-02"

const (
	Checking   AccountType = "checking"
	Savings    AccountType = "savings"
	Credit     AccountType = "credit"
	Cash       AccountType = "cash"
	Investment AccountType = "investment"
	Other      AccountType = "other"
)

const (
	Income   TransactionType = "income"
	Expense  TransactionType = "expense"
	Transfer TransactionType = "transfer"
)

type (
	AccountType     string
	TransactionType string
	CategoryType    string

	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	Account struct {
		ID             string
		Name           string
		Type           AccountType
		InitialBalance Money
		CurrentBalance Money // derived, maintained by the ledger
		Archived       bool
		CreatedAt      time.Time
		UpdatedAt      time.Time
	}

	Category struct {
		ID   string
		Name string
		Type CategoryType
	}

	Transaction struct {
		ID                   string
		Type                 TransactionType
		AccountID            string
		DestinationAccountID string // transfers only
		CategoryID           string // income/expense only, empty when uncategorized
		Amount               Money
		OccurredAt           Date
		IsPending            bool
		Description          string
		Tags                 []string
		CreatedAt            time.Time
		UpdatedAt            time.Time
	}

	// TransactionPatch carries the fields of an update; nil means unchanged.
	// An empty string clears DestinationAccountID or CategoryID.
	TransactionPatch struct {
		Type                 *TransactionType
		AccountID            *string
		DestinationAccountID *string
		CategoryID           *string
		Amount               *Money
		OccurredAt           *Date
		IsPending            *bool
		Description          *string
		Tags                 *[]string
	}
)

const (
	IncomeCategory  CategoryType = "income"
	ExpenseCategory CategoryType = "expense"
)

var (
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrEmptyName          = errors.New("empty name")
	ErrZeroDate           = errors.New("date cannot be zero")
	ErrUnknownType        = errors.New("unknown type")
	ErrMissingDestination = errors.New("transfer requires a destination account")
	ErrSameAccount        = errors.New("transfer destination equals origin")
	ErrMissingAccount     = errors.New("account is required")
)

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrZeroDate
	}
	return nil
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

// SameDay reports whether both dates fall on the same calendar day.
func (d Date) SameDay(o Date) bool {
	return d.String() == o.String()
}

// Within reports whether d lies in the inclusive range [start, end].
func (d Date) Within(start, end Date) bool {
	s := d.String()
	return s >= start.String() && s <= end.String()
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD string into a Date.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, err
	}
	return Date{Time: t}, nil
}

// DateOf truncates a timestamp to its calendar day in UTC.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, int(m), d)
}

func (m Money) Validate() error {
	if m.Cents <= 0 || m.Cents > MaxCents {
		return ErrInvalidAmount
	}
	return nil
}

func (t AccountType) IsValid() bool {
	switch t {
	case Checking, Savings, Credit, Cash, Investment, Other:
		return true
	}
	return false
}

func (t TransactionType) IsValid() bool {
	switch t {
	case Income, Expense, Transfer:
		return true
	}
	return false
}

func (t CategoryType) IsValid() bool {
	return t == IncomeCategory || t == ExpenseCategory
}

func (a Account) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return &ValidationError{Field: "name", Err: ErrEmptyName}
	}
	if len(a.Name) > 100 {
		return &ValidationError{Field: "name", Err: errors.New("name too long (max 100 characters)")}
	}
	if !a.Type.IsValid() {
		return &ValidationError{Field: "type", Err: ErrUnknownType}
	}
	if a.InitialBalance.Cents > MaxCents || a.InitialBalance.Cents < -MaxCents {
		return &ValidationError{Field: "initial_balance", Err: ErrInvalidAmount}
	}
	return nil
}

func (c Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return &ValidationError{Field: "name", Err: ErrEmptyName}
	}
	if !c.Type.IsValid() {
		return &ValidationError{Field: "type", Err: ErrUnknownType}
	}
	return nil
}

// Normalize drops fields that do not apply to the transaction's type: transfers
// carry no category and income/expense carry no destination.
func (t *Transaction) Normalize() {
	t.Description = strings.TrimSpace(t.Description)
	if t.Type == Transfer {
		t.CategoryID = ""
	} else {
		t.DestinationAccountID = ""
	}
	if t.Tags == nil {
		t.Tags = []string{}
	}
}

func (t Transaction) Validate() error {
	if !t.Type.IsValid() {
		return &ValidationError{Field: "type", Err: ErrUnknownType}
	}
	if err := t.Amount.Validate(); err != nil {
		return &ValidationError{Field: "amount", Err: err}
	}
	if strings.TrimSpace(t.AccountID) == "" {
		return &ValidationError{Field: "account_id", Err: ErrMissingAccount}
	}
	if err := t.OccurredAt.Validate(); err != nil {
		return &ValidationError{Field: "occurred_at", Err: err}
	}
	if len(t.Description) > 200 {
		return &ValidationError{Field: "description", Err: errors.New("description too long (max 200 characters)")}
	}
	if t.Type == Transfer {
		if strings.TrimSpace(t.DestinationAccountID) == "" {
			return &ValidationError{Field: "destination_account_id", Err: ErrMissingDestination}
		}
		if t.DestinationAccountID == t.AccountID {
			return &ValidationError{Field: "destination_account_id", Err: ErrSameAccount}
		}
	}
	return nil
}

// HasBalanceEffect reports whether the transaction moves any account balance.
func (t Transaction) HasBalanceEffect() bool {
	return !t.IsPending
}

// Apply returns a copy of t with the patch applied and normalized.
func (p TransactionPatch) Apply(t Transaction) Transaction {
	out := t
	if p.Type != nil {
		out.Type = *p.Type
	}
	if p.AccountID != nil {
		out.AccountID = *p.AccountID
	}
	if p.DestinationAccountID != nil {
		out.DestinationAccountID = *p.DestinationAccountID
	}
	if p.CategoryID != nil {
		out.CategoryID = *p.CategoryID
	}
	if p.Amount != nil {
		out.Amount = *p.Amount
	}
	if p.OccurredAt != nil {
		out.OccurredAt = *p.OccurredAt
	}
	if p.IsPending != nil {
		out.IsPending = *p.IsPending
	}
	if p.Description != nil {
		out.Description = *p.Description
	}
	if p.Tags != nil {
		out.Tags = append([]string(nil), (*p.Tags)...)
	} else {
		out.Tags = append([]string(nil), t.Tags...)
	}
	out.Normalize()
	return out
}
