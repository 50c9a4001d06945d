package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
)

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{name: "valid", body: `{"name":"Food","type":"expense"}`},
		{name: "empty body", body: ``, wantErr: true},
		{name: "unknown field", body: `{"name":"Food","colour":"red"}`, wantErr: true},
		{name: "trailing object", body: `{"name":"a"}{"name":"b"}`, wantErr: true},
		{name: "malformed", body: `{"name":`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var dst categoryRequest
			err := decodeJSON(httptest.NewRecorder(), req, &dst)
			if (err != nil) != tt.wantErr {
				t.Fatalf("decodeJSON() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !core.IsValidation(err) {
				t.Errorf("decodeJSON() error %T is not a ValidationError", err)
			}
		})
	}
}

func TestSanitizeInput(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"  Groceries  ", "Groceries"},
		{"a\x00b\x07c", "abc"},
		{"line\none", "line\none"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := sanitizeInput(tt.input); got != tt.want {
			t.Errorf("sanitizeInput(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestTransactionRequest_ToNewTransaction(t *testing.T) {
	now := time.Date(2024, 3, 15, 22, 0, 0, 0, time.UTC)

	t.Run("converts and normalizes", func(t *testing.T) {
		req := transactionRequest{
			Type:        " Expense ",
			AccountID:   " acc ",
			CategoryID:  "food",
			Amount:      decimal.RequireFromString("12.345"),
			OccurredAt:  core.NewDate(2024, 1, 10),
			Description: " Lunch\x00 ",
			Tags:        []string{"work", " ", "team"},
		}
		in, err := req.toNewTransaction(now)
		if err != nil {
			t.Fatalf("toNewTransaction() error = %v", err)
		}
		if in.Type != core.Expense || in.AccountID != "acc" {
			t.Errorf("type/account = %q/%q", in.Type, in.AccountID)
		}
		if in.Amount.Cents != 1235 {
			t.Errorf("Amount = %d, want 1235", in.Amount.Cents)
		}
		if in.Description != "Lunch" {
			t.Errorf("Description = %q", in.Description)
		}
		if len(in.Tags) != 2 {
			t.Errorf("Tags = %v, want 2 entries", in.Tags)
		}
	})

	t.Run("defaults date to today", func(t *testing.T) {
		req := transactionRequest{Type: "income", AccountID: "acc", Amount: decimal.NewFromInt(5)}
		in, err := req.toNewTransaction(now)
		if err != nil {
			t.Fatalf("toNewTransaction() error = %v", err)
		}
		if !in.OccurredAt.SameDay(core.NewDate(2024, 3, 15)) {
			t.Errorf("OccurredAt = %s, want 2024-03-15", in.OccurredAt)
		}
	})

	for _, amount := range []string{"0", "-3", "0.001"} {
		t.Run("rejects amount "+amount, func(t *testing.T) {
			req := transactionRequest{Type: "expense", AccountID: "acc", Amount: decimal.RequireFromString(amount)}
			_, err := req.toNewTransaction(now)
			if !errors.Is(err, core.ErrInvalidAmount) {
				t.Errorf("toNewTransaction() error = %v, want ErrInvalidAmount", err)
			}
		})
	}
}

func TestTransactionPatchRequest_ToPatch(t *testing.T) {
	amount := decimal.RequireFromString("7.5")
	typ := "TRANSFER"
	dest := " savings "
	pending := false
	req := transactionPatchRequest{Type: &typ, DestinationAccountID: &dest, Amount: &amount, IsPending: &pending}

	p, err := req.toPatch()
	if err != nil {
		t.Fatalf("toPatch() error = %v", err)
	}
	if p.Type == nil || *p.Type != core.Transfer {
		t.Errorf("Type = %v", p.Type)
	}
	if p.DestinationAccountID == nil || *p.DestinationAccountID != "savings" {
		t.Errorf("DestinationAccountID = %v", p.DestinationAccountID)
	}
	if p.Amount == nil || p.Amount.Cents != 750 {
		t.Errorf("Amount = %v", p.Amount)
	}
	if p.AccountID != nil || p.CategoryID != nil || p.OccurredAt != nil || p.Tags != nil {
		t.Error("absent fields should stay nil")
	}

	zero := core.Date{}
	if _, err := (transactionPatchRequest{OccurredAt: &zero}).toPatch(); !errors.Is(err, core.ErrZeroDate) {
		t.Errorf("explicit empty date error = %v, want ErrZeroDate", err)
	}
}

func TestAccountRequest_AllowsSignedBalance(t *testing.T) {
	tests := []struct {
		balance string
		want    int64
	}{
		{"0", 0},
		{"-250.5", -25050},
		{"100", 10000},
	}
	for _, tt := range tests {
		in, err := accountRequest{Name: "Card", Type: "CREDIT", InitialBalance: decimal.RequireFromString(tt.balance)}.toNewAccount()
		if err != nil {
			t.Fatalf("toNewAccount(%s) error = %v", tt.balance, err)
		}
		if in.InitialBalance.Cents != tt.want || in.Type != core.Credit {
			t.Errorf("toNewAccount(%s) = %d %s, want %d credit", tt.balance, in.InitialBalance.Cents, in.Type, tt.want)
		}
	}
}

func TestParseTransactionFilter(t *testing.T) {
	tests := []struct {
		name      string
		query     string
		wantLimit int
		wantErr   string
	}{
		{name: "defaults", query: "", wantLimit: defaultListLimit},
		{name: "full", query: "account_id=acc&from=2024-01-01&to=2024-01-31&limit=5", wantLimit: 5},
		{name: "limit capped", query: "limit=99999", wantLimit: maxListLimit},
		{name: "bad limit", query: "limit=-1", wantErr: "limit"},
		{name: "bad date", query: "from=01/02/2024", wantErr: "from"},
		{name: "inverted range", query: "from=2024-02-01&to=2024-01-01", wantErr: "to"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, _ := url.ParseQuery(tt.query)
			f, err := ParseTransactionFilter(q)
			if tt.wantErr != "" {
				var verr *core.ValidationError
				if !errors.As(err, &verr) || verr.Field != tt.wantErr {
					t.Fatalf("ParseTransactionFilter() error = %v, want validation on %s", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseTransactionFilter() error = %v", err)
			}
			if f.Limit != tt.wantLimit {
				t.Errorf("Limit = %d, want %d", f.Limit, tt.wantLimit)
			}
		})
	}
}

func TestParseBoolParam(t *testing.T) {
	q := url.Values{"yes": {"true"}, "no": {"0"}, "bad": {"maybe"}}
	if v, err := parseBoolParam(q, "yes", false); !v || err != nil {
		t.Errorf("yes = %v, %v", v, err)
	}
	if v, err := parseBoolParam(q, "no", true); v || err != nil {
		t.Errorf("no = %v, %v", v, err)
	}
	if v, err := parseBoolParam(q, "missing", true); !v || err != nil {
		t.Errorf("missing = %v, %v", v, err)
	}
	if _, err := parseBoolParam(q, "bad", false); !core.IsValidation(err) {
		t.Errorf("bad error = %v, want ValidationError", err)
	}
}

func TestValidateRequest(t *testing.T) {
	manyTags := make([]string, 21)
	for i := range manyTags {
		manyTags[i] = "t"
	}
	longTag := strings.Repeat("x", 51)
	longID := strings.Repeat("a", 65)

	tests := []struct {
		name      string
		req       any
		wantField string
	}{
		{
			name: "valid transaction",
			req:  &transactionRequest{Type: "expense", AccountID: "acc", Tags: []string{"food"}},
		},
		{
			name:      "missing account",
			req:       &transactionRequest{Type: "expense"},
			wantField: "account_id",
		},
		{
			name:      "too many tags",
			req:       &transactionRequest{Type: "expense", AccountID: "acc", Tags: manyTags},
			wantField: "tags",
		},
		{
			name:      "tag too long",
			req:       &transactionRequest{Type: "expense", AccountID: "acc", Tags: []string{"ok", longTag}},
			wantField: "tags[1]",
		},
		{
			name: "empty patch",
			req:  &transactionPatchRequest{},
		},
		{
			name:      "patch with oversized account id",
			req:       &transactionPatchRequest{AccountID: &longID},
			wantField: "account_id",
		},
		{
			name: "budget for every category",
			req:  &budgetRequest{Name: "Everything"},
		},
		{
			name:      "budget without name",
			req:       &budgetRequest{CategoryID: "cat"},
			wantField: "name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateRequest(tt.req)
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("validateRequest() error = %v", err)
				}
				return
			}
			var verr *core.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("validateRequest() error = %v, want ValidationError", err)
			}
			if verr.Field != tt.wantField {
				t.Errorf("field = %q, want %q", verr.Field, tt.wantField)
			}
		})
	}
}
