// Package http provides HTTP server and handler implementations.
//
// This file implements the Builder Pattern for JSON responses and the wire
// shapes of the API resources. Money is rendered as a two-decimal string.

package http

import (
	"encoding/json"
	"net/http"
	"time"

	"fintrack/internal/budget"
	"fintrack/internal/core"
	"fintrack/internal/ledger"
)

// JSONResponseBuilder provides a fluent API for building JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	headers    map[string]string
	body       any
}

// NewJSONResponse creates a new response builder with default 200 status.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

// Status sets the HTTP status code for the response.
func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

// Header sets a custom header on the response.
func (b *JSONResponseBuilder) Header(key, value string) *JSONResponseBuilder {
	b.headers[key] = value
	return b
}

// Body sets the value encoded as the response body. A nil body writes no
// content.
func (b *JSONResponseBuilder) Body(v any) *JSONResponseBuilder {
	b.body = v
	return b
}

// Write sends the response. Encoding errors after the header is written
// cannot be reported to the client and are returned to the caller.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) error {
	for k, v := range b.headers {
		w.Header().Set(k, v)
	}
	if b.body == nil {
		w.WriteHeader(b.statusCode)
		return nil
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	return json.NewEncoder(w).Encode(b.body)
}

type errorResponse struct {
	Error     string `json:"error"`
	Field     string `json:"field,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

type listResponse[T any] struct {
	Items []T `json:"items"`
	Count int `json:"count"`
}

func newList[S any, T any](items []S, conv func(S) T) listResponse[T] {
	out := make([]T, 0, len(items))
	for _, it := range items {
		out = append(out, conv(it))
	}
	return listResponse[T]{Items: out, Count: len(out)}
}

type accountResponse struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Type           string    `json:"type"`
	InitialBalance string    `json:"initial_balance"`
	CurrentBalance string    `json:"current_balance"`
	Archived       bool      `json:"archived"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func newAccountResponse(a core.Account) accountResponse {
	return accountResponse{
		ID:             a.ID,
		Name:           a.Name,
		Type:           string(a.Type),
		InitialBalance: a.InitialBalance.String(),
		CurrentBalance: a.CurrentBalance.String(),
		Archived:       a.Archived,
		CreatedAt:      a.CreatedAt,
		UpdatedAt:      a.UpdatedAt,
	}
}

type categoryResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

func newCategoryResponse(c core.Category) categoryResponse {
	return categoryResponse{ID: c.ID, Name: c.Name, Type: string(c.Type)}
}

type transactionResponse struct {
	ID                   string    `json:"id"`
	Type                 string    `json:"type"`
	AccountID            string    `json:"account_id"`
	DestinationAccountID string    `json:"destination_account_id,omitempty"`
	CategoryID           string    `json:"category_id,omitempty"`
	Amount               string    `json:"amount"`
	OccurredAt           core.Date `json:"occurred_at"`
	IsPending            bool      `json:"is_pending"`
	Description          string    `json:"description"`
	Tags                 []string  `json:"tags"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

func newTransactionResponse(t core.Transaction) transactionResponse {
	tags := t.Tags
	if tags == nil {
		tags = []string{}
	}
	return transactionResponse{
		ID:                   t.ID,
		Type:                 string(t.Type),
		AccountID:            t.AccountID,
		DestinationAccountID: t.DestinationAccountID,
		CategoryID:           t.CategoryID,
		Amount:               t.Amount.String(),
		OccurredAt:           t.OccurredAt,
		IsPending:            t.IsPending,
		Description:          t.Description,
		Tags:                 tags,
		CreatedAt:            t.CreatedAt,
		UpdatedAt:            t.UpdatedAt,
	}
}

type budgetResponse struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	CategoryID      string    `json:"category_id,omitempty"`
	Amount          string    `json:"amount"`
	PeriodStart     core.Date `json:"period_start"`
	PeriodEnd       core.Date `json:"period_end"`
	AlertPercentage int       `json:"alert_percentage"`
	IsActive        bool      `json:"is_active"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func newBudgetResponse(b core.Budget) budgetResponse {
	return budgetResponse{
		ID:              b.ID,
		Name:            b.Name,
		CategoryID:      b.CategoryID,
		Amount:          b.Amount.String(),
		PeriodStart:     b.PeriodStart,
		PeriodEnd:       b.PeriodEnd,
		AlertPercentage: b.AlertPercentage,
		IsActive:        b.IsActive,
		CreatedAt:       b.CreatedAt,
		UpdatedAt:       b.UpdatedAt,
	}
}

type progressResponse struct {
	Budget     budgetResponse `json:"budget"`
	Spent      string         `json:"spent"`
	Remaining  string         `json:"remaining"`
	Percentage string         `json:"percentage"`
	IsExceeded bool           `json:"is_exceeded"`
	IsAlert    bool           `json:"is_alert"`
}

func newProgressResponse(p budget.Progress) progressResponse {
	return progressResponse{
		Budget:     newBudgetResponse(p.Budget),
		Spent:      p.Spent.String(),
		Remaining:  p.Remaining.String(),
		Percentage: p.Percentage.StringFixed(2),
		IsExceeded: p.IsExceeded,
		IsAlert:    p.IsAlert,
	}
}

type driftResponse struct {
	AccountID string `json:"account_id"`
	Stored    string `json:"stored"`
	Computed  string `json:"computed"`
	Delta     string `json:"delta"`
	InSync    bool   `json:"in_sync"`
}

func newDriftResponse(d ledger.Drift) driftResponse {
	return driftResponse{
		AccountID: d.AccountID,
		Stored:    d.Stored.String(),
		Computed:  d.Computed.String(),
		Delta:     d.Delta().String(),
		InSync:    d.InSync(),
	}
}
