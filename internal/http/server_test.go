package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"fintrack/internal/budget"
	"fintrack/internal/events"
	"fintrack/internal/ledger"
	"fintrack/internal/storage"
)

type apiFixture struct {
	t      *testing.T
	server *Server
	repo   *storage.SQLiteRepository
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	ctx := context.Background()
	repo, err := storage.NewSQLiteRepository(ctx, filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	bus := events.NewBus(nil)
	cache := budget.NewCache(repo, nil)
	srv := NewServer(":0", Services{
		Transactions: ledger.NewJournal(repo, budget.NewPlanner(), cache, bus, nil),
		Accounts:     ledger.NewAccounts(repo, nil),
		Budgets:      budget.NewService(repo, cache, bus, nil),
		Balances:     ledger.NewReconciler(repo, bus, nil),
		Ready:        repo.Ping,
	}, nil)
	t.Cleanup(func() { srv.Shutdown(context.Background()) })

	return &apiFixture{t: t, server: srv, repo: repo}
}

// do sends body as JSON and decodes the response into out when non-nil.
func (f *apiFixture) do(method, path string, body any, out any) *httptest.ResponseRecorder {
	f.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			f.t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	f.server.Handler.ServeHTTP(rr, req)

	if out != nil && rr.Body.Len() > 0 {
		if err := json.Unmarshal(rr.Body.Bytes(), out); err != nil {
			f.t.Fatalf("%s %s: decode %q: %v", method, path, rr.Body.String(), err)
		}
	}
	return rr
}

func (f *apiFixture) mustStatus(rr *httptest.ResponseRecorder, want int) {
	f.t.Helper()
	if rr.Code != want {
		f.t.Fatalf("status = %d, want %d; body %s", rr.Code, want, rr.Body.String())
	}
}

func (f *apiFixture) account(name string, balance string) accountResponse {
	f.t.Helper()
	var a accountResponse
	rr := f.do(http.MethodPost, "/api/v1/accounts", map[string]any{"name": name, "type": "checking", "initial_balance": balance}, &a)
	f.mustStatus(rr, http.StatusCreated)
	return a
}

func (f *apiFixture) category(name string) categoryResponse {
	f.t.Helper()
	var c categoryResponse
	rr := f.do(http.MethodPost, "/api/v1/categories", map[string]any{"name": name, "type": "expense"}, &c)
	f.mustStatus(rr, http.StatusCreated)
	return c
}

func (f *apiFixture) balance(id string) string {
	f.t.Helper()
	var a accountResponse
	f.mustStatus(f.do(http.MethodGet, "/api/v1/accounts/"+id, nil, &a), http.StatusOK)
	return a.CurrentBalance
}

func TestHealthAndReady(t *testing.T) {
	f := newAPIFixture(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		rr := f.do(http.MethodGet, path, nil, nil)
		f.mustStatus(rr, http.StatusOK)
		if rr.Header().Get("X-Request-ID") == "" {
			t.Errorf("%s: missing X-Request-ID", path)
		}
		if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
			t.Errorf("%s: missing security headers", path)
		}
	}
	if n := f.server.TraceMetrics().TotalRequests; n != 2 {
		t.Errorf("traced requests = %d, want 2", n)
	}
}

func TestReadyReportsStoreFailure(t *testing.T) {
	srv := NewServer(":0", Services{Ready: func(context.Context) error { return errors.New("closed") }}, nil)
	defer srv.Shutdown(context.Background())

	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rr.Code)
	}
}

func TestTransactionLifecycle(t *testing.T) {
	f := newAPIFixture(t)
	checking := f.account("Checking", "100.00")
	savings := f.account("Savings", "0")
	food := f.category("Food")

	var tx transactionResponse
	rr := f.do(http.MethodPost, "/api/v1/transactions", map[string]any{
		"type": "expense", "account_id": checking.ID, "category_id": food.ID,
		"amount": "30.00", "occurred_at": "2024-01-10", "description": "Groceries",
	}, &tx)
	f.mustStatus(rr, http.StatusCreated)
	if rr.Header().Get("Location") != "/api/v1/transactions/"+tx.ID {
		t.Errorf("Location = %q", rr.Header().Get("Location"))
	}
	if got := f.balance(checking.ID); got != "70.00" {
		t.Fatalf("balance after expense = %s, want 70.00", got)
	}

	// Turning the expense into a transfer moves the money to savings.
	f.mustStatus(f.do(http.MethodPatch, "/api/v1/transactions/"+tx.ID, map[string]any{
		"type": "transfer", "destination_account_id": savings.ID,
	}, &tx), http.StatusOK)
	if tx.CategoryID != "" || tx.DestinationAccountID != savings.ID {
		t.Errorf("patched transfer = %+v", tx)
	}
	if got := f.balance(savings.ID); got != "30.00" {
		t.Errorf("savings after transfer = %s, want 30.00", got)
	}

	var list listResponse[transactionResponse]
	f.mustStatus(f.do(http.MethodGet, "/api/v1/transactions?account_id="+checking.ID, nil, &list), http.StatusOK)
	if list.Count != 1 {
		t.Errorf("list count = %d, want 1", list.Count)
	}

	f.mustStatus(f.do(http.MethodDelete, "/api/v1/transactions/"+tx.ID, nil, nil), http.StatusNoContent)
	if got := f.balance(checking.ID); got != "100.00" {
		t.Errorf("checking after delete = %s, want 100.00", got)
	}
	if got := f.balance(savings.ID); got != "0.00" {
		t.Errorf("savings after delete = %s, want 0.00", got)
	}
	f.mustStatus(f.do(http.MethodGet, "/api/v1/transactions/"+tx.ID, nil, nil), http.StatusNotFound)

	var drift driftResponse
	f.mustStatus(f.do(http.MethodGet, "/api/v1/accounts/"+checking.ID+"/balance-check", nil, &drift), http.StatusOK)
	if !drift.InSync {
		t.Errorf("drift = %+v, want in sync", drift)
	}
}

func TestTransactionErrors(t *testing.T) {
	f := newAPIFixture(t)
	checking := f.account("Checking", "10")

	tests := []struct {
		name      string
		body      map[string]any
		want      int
		wantField string
	}{
		{
			name: "missing destination",
			body: map[string]any{"type": "transfer", "account_id": checking.ID, "amount": "1"},
			want: http.StatusBadRequest, wantField: "destination_account_id",
		},
		{
			name: "zero amount",
			body: map[string]any{"type": "expense", "account_id": checking.ID, "amount": "0"},
			want: http.StatusBadRequest, wantField: "amount",
		},
		{
			name: "unknown account",
			body: map[string]any{"type": "expense", "account_id": "nope", "amount": "1"},
			want: http.StatusConflict,
		},
		{
			name: "unknown field",
			body: map[string]any{"type": "expense", "account_id": checking.ID, "amount": "1", "colour": "red"},
			want: http.StatusBadRequest, wantField: "body",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body errorResponse
			rr := f.do(http.MethodPost, "/api/v1/transactions", tt.body, &body)
			f.mustStatus(rr, tt.want)
			if body.Field != tt.wantField {
				t.Errorf("field = %q, want %q", body.Field, tt.wantField)
			}
			if body.RequestID == "" {
				t.Error("error response without request_id")
			}
		})
	}

	if got := f.balance(checking.ID); got != "10.00" {
		t.Errorf("balance changed by rejected writes: %s", got)
	}
	f.mustStatus(f.do(http.MethodPatch, "/api/v1/transactions/missing", map[string]any{"amount": "2"}, nil), http.StatusNotFound)
}

func TestBudgetProgressFollowsTransactions(t *testing.T) {
	f := newAPIFixture(t)
	checking := f.account("Checking", "1000")
	food := f.category("Food")

	var b budgetResponse
	f.mustStatus(f.do(http.MethodPost, "/api/v1/budgets", map[string]any{
		"name": "Food January", "category_id": food.ID, "amount": "500",
		"period_start": "2024-01-01", "period_end": "2024-01-31",
	}, &b), http.StatusCreated)
	if b.AlertPercentage != 80 || !b.IsActive {
		t.Errorf("budget defaults = %+v", b)
	}

	var tx transactionResponse
	f.mustStatus(f.do(http.MethodPost, "/api/v1/transactions", map[string]any{
		"type": "expense", "account_id": checking.ID, "category_id": food.ID,
		"amount": "150", "occurred_at": "2024-01-15",
	}, &tx), http.StatusCreated)

	var p progressResponse
	f.mustStatus(f.do(http.MethodGet, "/api/v1/budgets/"+b.ID+"/progress", nil, &p), http.StatusOK)
	if p.Spent != "150.00" || p.Percentage != "30.00" || p.IsAlert {
		t.Fatalf("progress after first expense = %+v", p)
	}

	f.mustStatus(f.do(http.MethodPatch, "/api/v1/transactions/"+tx.ID, map[string]any{"amount": "450"}, nil), http.StatusOK)
	f.mustStatus(f.do(http.MethodGet, "/api/v1/budgets/"+b.ID+"/progress", nil, &p), http.StatusOK)
	if p.Spent != "450.00" || !p.IsAlert || p.IsExceeded {
		t.Errorf("progress after update = %+v", p)
	}

	var all listResponse[progressResponse]
	f.mustStatus(f.do(http.MethodGet, "/api/v1/budgets/progress", nil, &all), http.StatusOK)
	if all.Count != 1 {
		t.Errorf("progress list count = %d, want 1", all.Count)
	}

	f.mustStatus(f.do(http.MethodPatch, "/api/v1/budgets/"+b.ID, map[string]any{"period_end": "2023-12-01"}, nil), http.StatusBadRequest)
	f.mustStatus(f.do(http.MethodDelete, "/api/v1/budgets/"+b.ID, nil, nil), http.StatusNoContent)
	f.mustStatus(f.do(http.MethodGet, "/api/v1/budgets/"+b.ID+"/progress", nil, nil), http.StatusNotFound)
}

func TestAccountArchiveAndDelete(t *testing.T) {
	f := newAPIFixture(t)
	a := f.account("Old", "5")

	var got accountResponse
	f.mustStatus(f.do(http.MethodPut, "/api/v1/accounts/"+a.ID+"/archive", nil, &got), http.StatusOK)
	if !got.Archived {
		t.Error("account not archived")
	}

	var list listResponse[accountResponse]
	f.mustStatus(f.do(http.MethodGet, "/api/v1/accounts", nil, &list), http.StatusOK)
	if list.Count != 0 {
		t.Errorf("active accounts = %d, want 0", list.Count)
	}
	f.mustStatus(f.do(http.MethodGet, "/api/v1/accounts?include_archived=true", nil, &list), http.StatusOK)
	if list.Count != 1 {
		t.Errorf("all accounts = %d, want 1", list.Count)
	}

	f.mustStatus(f.do(http.MethodDelete, "/api/v1/accounts/"+a.ID+"/archive", nil, &got), http.StatusOK)
	if got.Archived {
		t.Error("account still archived")
	}
	f.mustStatus(f.do(http.MethodDelete, "/api/v1/accounts/"+a.ID, nil, nil), http.StatusNoContent)
	f.mustStatus(f.do(http.MethodDelete, "/api/v1/accounts/"+a.ID, nil, nil), http.StatusNotFound)
}

func TestWritesAreRateLimited(t *testing.T) {
	f := newAPIFixture(t)

	limited := false
	for i := 0; i < 70 && !limited; i++ {
		rr := f.do(http.MethodPost, "/api/v1/categories", map[string]any{"name": "c" + string(rune('A'+i)), "type": "expense"}, nil)
		limited = rr.Code == http.StatusTooManyRequests
	}
	if !limited {
		t.Fatal("70 writes in a minute were never limited")
	}
	f.mustStatus(f.do(http.MethodGet, "/api/v1/categories", nil, nil), http.StatusOK)
}

func TestIdempotentTransactionCreate(t *testing.T) {
	f := newAPIFixture(t)
	checking := f.account("Checking", "100")

	post := func(key string, amount string) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		json.NewEncoder(&buf).Encode(map[string]any{"type": "expense", "account_id": checking.ID, "amount": amount})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/transactions", &buf)
		req.Header.Set(HeaderIdempotencyKey, key)
		rr := httptest.NewRecorder()
		f.server.Handler.ServeHTTP(rr, req)
		return rr
	}

	first := post("order-42", "10")
	f.mustStatus(first, http.StatusCreated)

	again := post("order-42", "10")
	f.mustStatus(again, http.StatusCreated)
	if again.Header().Get(HeaderReplayed) != "true" {
		t.Error("second request was not marked as replayed")
	}
	if again.Body.String() != first.Body.String() {
		t.Errorf("replayed body = %s, want %s", again.Body.String(), first.Body.String())
	}
	if again.Header().Get("Location") != first.Header().Get("Location") {
		t.Error("replayed Location differs")
	}
	if got := f.balance(checking.ID); got != "90.00" {
		t.Errorf("balance = %s, want 90.00 after a replayed create", got)
	}

	f.mustStatus(post("order-42", "11"), http.StatusUnprocessableEntity)
	f.mustStatus(post("bad key", "1"), http.StatusBadRequest)

	// A rejected attempt does not claim the key.
	f.mustStatus(post("order-43", "0"), http.StatusBadRequest)
	f.mustStatus(post("order-43", "5"), http.StatusCreated)
	if got := f.balance(checking.ID); got != "85.00" {
		t.Errorf("balance = %s, want 85.00", got)
	}
}
