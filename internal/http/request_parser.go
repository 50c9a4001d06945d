// Package http exposes the ledger and budgets as a JSON API.
//
// This file decodes request bodies and query strings into service inputs.
// Amounts travel as decimal strings or numbers in major units ("12.34").

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"fintrack/internal/budget"
	"fintrack/internal/core"
	"fintrack/internal/ledger"
	"fintrack/internal/storage"
)

const (
	maxBodyBytes     = 1 << 20
	defaultListLimit = 100
	maxListLimit     = 1000
)

// validate checks request shape: lengths, counts and required fields.
// Domain rules live in core; this only rejects what no handler should see.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateRequest reports the first failing field as a ValidationError keyed
// by its JSON name.
func validateRequest(dst any) error {
	err := validate.Struct(dst)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return &core.ValidationError{Field: "body", Err: err}
	}
	fe := fieldErrs[0]
	return &core.ValidationError{Field: jsonFieldPath(fe.Namespace()), Err: describeFieldError(fe)}
}

// jsonFieldPath drops the struct name from a validator namespace:
// "transactionRequest.tags[3]" becomes "tags[3]".
func jsonFieldPath(ns string) string {
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

func describeFieldError(fe validator.FieldError) error {
	switch fe.Tag() {
	case "required":
		return errors.New("is required")
	case "max":
		if fe.Kind() == reflect.Slice {
			return fmt.Errorf("at most %s items allowed", fe.Param())
		}
		return fmt.Errorf("too long (max %s characters)", fe.Param())
	case "min":
		return fmt.Errorf("must be at least %s", fe.Param())
	default:
		return fmt.Errorf("failed %q check", fe.Tag())
	}
}

// decodeJSON reads exactly one JSON object from the body. Unknown fields are
// rejected so typos do not silently become no-op patches.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			err = errors.New("empty request body")
		}
		return &core.ValidationError{Field: "body", Err: err}
	}
	if dec.More() {
		return &core.ValidationError{Field: "body", Err: errors.New("unexpected data after JSON object")}
	}
	return validateRequest(dst)
}

// sanitizeInput removes control characters except tab, newline and carriage
// return, and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

func sanitizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		if tag = sanitizeInput(tag); tag != "" {
			out = append(out, tag)
		}
	}
	return out
}

// positiveAmount converts a major-unit decimal into strictly positive cents.
func positiveAmount(field string, d decimal.Decimal) (core.Money, error) {
	cents, err := core.ParseDecimalToCents(d.String())
	if err != nil {
		return core.Money{}, &core.ValidationError{Field: field, Err: err}
	}
	return core.Money{Cents: cents}, nil
}

// signedAmount allows zero and negative values, as opening balances do.
func signedAmount(field string, d decimal.Decimal) (core.Money, error) {
	cents := d.Shift(2).Round(0)
	if cents.Abs().GreaterThan(decimal.NewFromInt(core.MaxCents)) {
		return core.Money{}, &core.ValidationError{Field: field, Err: core.ErrInvalidAmount}
	}
	return core.Money{Cents: cents.IntPart()}, nil
}

type accountRequest struct {
	Name           string          `json:"name" validate:"required,max=100"`
	Type           string          `json:"type" validate:"required,max=20"`
	InitialBalance decimal.Decimal `json:"initial_balance"`
}

func (req accountRequest) toNewAccount() (ledger.NewAccount, error) {
	balance, err := signedAmount("initial_balance", req.InitialBalance)
	if err != nil {
		return ledger.NewAccount{}, err
	}
	return ledger.NewAccount{
		Name:           sanitizeInput(req.Name),
		Type:           core.AccountType(strings.ToLower(strings.TrimSpace(req.Type))),
		InitialBalance: balance,
	}, nil
}

type categoryRequest struct {
	Name string `json:"name" validate:"required,max=100"`
	Type string `json:"type" validate:"required,max=20"`
}

type transactionRequest struct {
	Type                 string          `json:"type" validate:"required,max=20"`
	AccountID            string          `json:"account_id" validate:"required,max=64"`
	DestinationAccountID string          `json:"destination_account_id" validate:"max=64"`
	CategoryID           string          `json:"category_id" validate:"max=64"`
	Amount               decimal.Decimal `json:"amount"`
	OccurredAt           core.Date       `json:"occurred_at"`
	IsPending            bool            `json:"is_pending"`
	Description          string          `json:"description" validate:"max=200"`
	Tags                 []string        `json:"tags" validate:"max=20,dive,max=50"`
}

// toNewTransaction defaults a missing occurred_at to today.
func (req transactionRequest) toNewTransaction(now time.Time) (ledger.NewTransaction, error) {
	amount, err := positiveAmount("amount", req.Amount)
	if err != nil {
		return ledger.NewTransaction{}, err
	}
	occurred := req.OccurredAt
	if occurred.IsZero() {
		occurred = core.DateOf(now)
	}
	return ledger.NewTransaction{
		Type:                 core.TransactionType(strings.ToLower(strings.TrimSpace(req.Type))),
		AccountID:            strings.TrimSpace(req.AccountID),
		DestinationAccountID: strings.TrimSpace(req.DestinationAccountID),
		CategoryID:           strings.TrimSpace(req.CategoryID),
		Amount:               amount,
		OccurredAt:           occurred,
		IsPending:            req.IsPending,
		Description:          sanitizeInput(req.Description),
		Tags:                 sanitizeTags(req.Tags),
	}, nil
}

type transactionPatchRequest struct {
	Type                 *string          `json:"type" validate:"omitempty,max=20"`
	AccountID            *string          `json:"account_id" validate:"omitempty,max=64"`
	DestinationAccountID *string          `json:"destination_account_id" validate:"omitempty,max=64"`
	CategoryID           *string          `json:"category_id" validate:"omitempty,max=64"`
	Amount               *decimal.Decimal `json:"amount"`
	OccurredAt           *core.Date       `json:"occurred_at"`
	IsPending            *bool            `json:"is_pending"`
	Description          *string          `json:"description" validate:"omitempty,max=200"`
	Tags                 *[]string        `json:"tags" validate:"omitempty,max=20,dive,max=50"`
}

func (req transactionPatchRequest) toPatch() (core.TransactionPatch, error) {
	var p core.TransactionPatch
	if req.Type != nil {
		typ := core.TransactionType(strings.ToLower(strings.TrimSpace(*req.Type)))
		p.Type = &typ
	}
	p.AccountID = trimmed(req.AccountID)
	p.DestinationAccountID = trimmed(req.DestinationAccountID)
	p.CategoryID = trimmed(req.CategoryID)
	if req.Amount != nil {
		amount, err := positiveAmount("amount", *req.Amount)
		if err != nil {
			return core.TransactionPatch{}, err
		}
		p.Amount = &amount
	}
	if req.OccurredAt != nil {
		if req.OccurredAt.IsZero() {
			return core.TransactionPatch{}, &core.ValidationError{Field: "occurred_at", Err: core.ErrZeroDate}
		}
		p.OccurredAt = req.OccurredAt
	}
	p.IsPending = req.IsPending
	if req.Description != nil {
		desc := sanitizeInput(*req.Description)
		p.Description = &desc
	}
	if req.Tags != nil {
		tags := sanitizeTags(*req.Tags)
		p.Tags = &tags
	}
	return p, nil
}

type budgetRequest struct {
	Name            string          `json:"name" validate:"required,max=100"`
	CategoryID      string          `json:"category_id" validate:"max=64"`
	Amount          decimal.Decimal `json:"amount"`
	PeriodStart     core.Date       `json:"period_start"`
	PeriodEnd       core.Date       `json:"period_end"`
	AlertPercentage *int            `json:"alert_percentage"`
	IsActive        *bool           `json:"is_active"`
}

func (req budgetRequest) toNewBudget() (budget.NewBudget, error) {
	amount, err := positiveAmount("amount", req.Amount)
	if err != nil {
		return budget.NewBudget{}, err
	}
	return budget.NewBudget{
		Name:            sanitizeInput(req.Name),
		CategoryID:      strings.TrimSpace(req.CategoryID),
		Amount:          amount,
		PeriodStart:     req.PeriodStart,
		PeriodEnd:       req.PeriodEnd,
		AlertPercentage: req.AlertPercentage,
		IsActive:        req.IsActive,
	}, nil
}

type budgetPatchRequest struct {
	Name            *string          `json:"name" validate:"omitempty,max=100"`
	CategoryID      *string          `json:"category_id" validate:"omitempty,max=64"`
	Amount          *decimal.Decimal `json:"amount"`
	PeriodStart     *core.Date       `json:"period_start"`
	PeriodEnd       *core.Date       `json:"period_end"`
	AlertPercentage *int             `json:"alert_percentage"`
	IsActive        *bool            `json:"is_active"`
}

func (req budgetPatchRequest) toPatch() (core.BudgetPatch, error) {
	p := core.BudgetPatch{
		CategoryID:      trimmed(req.CategoryID),
		PeriodStart:     req.PeriodStart,
		PeriodEnd:       req.PeriodEnd,
		AlertPercentage: req.AlertPercentage,
		IsActive:        req.IsActive,
	}
	if req.Name != nil {
		name := sanitizeInput(*req.Name)
		p.Name = &name
	}
	if req.Amount != nil {
		amount, err := positiveAmount("amount", *req.Amount)
		if err != nil {
			return core.BudgetPatch{}, err
		}
		p.Amount = &amount
	}
	return p, nil
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}

// ParseTransactionFilter reads account_id, from, to and limit from the query.
func ParseTransactionFilter(query url.Values) (storage.TransactionFilter, error) {
	f := storage.TransactionFilter{
		AccountID: strings.TrimSpace(query.Get("account_id")),
		Limit:     defaultListLimit,
	}

	var err error
	if f.From, err = parseDateParam(query, "from"); err != nil {
		return f, err
	}
	if f.To, err = parseDateParam(query, "to"); err != nil {
		return f, err
	}
	if !f.From.IsZero() && !f.To.IsZero() && f.To.Before(f.From.Time) {
		return f, &core.ValidationError{Field: "to", Err: core.ErrInvalidPeriod}
	}

	if v := strings.TrimSpace(query.Get("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return f, &core.ValidationError{Field: "limit", Err: fmt.Errorf("must be a positive integer, got %q", v)}
		}
		f.Limit = min(n, maxListLimit)
	}
	return f, nil
}

func parseDateParam(query url.Values, name string) (core.Date, error) {
	v := strings.TrimSpace(query.Get(name))
	if v == "" {
		return core.Date{}, nil
	}
	d, err := core.ParseDate(v)
	if err != nil {
		return core.Date{}, &core.ValidationError{Field: name, Err: fmt.Errorf("expected YYYY-MM-DD, got %q", v)}
	}
	return d, nil
}

// parseBoolParam returns def when the parameter is absent.
func parseBoolParam(query url.Values, name string, def bool) (bool, error) {
	v := strings.TrimSpace(query.Get(name))
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def, &core.ValidationError{Field: name, Err: fmt.Errorf("expected a boolean, got %q", v)}
	}
	return b, nil
}
