package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/splvrdge/savr/internal/middleware/auth"
	"github.com/splvrdge/savr/internal/middleware/ratelimit"
	"github.com/splvrdge/savr/internal/services"
	"github.com/splvrdge/savr/internal/storage"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type apiTest struct {
	t      *testing.T
	srv    *Server
	tokens *auth.Authenticator
}

type serverOption func(*Options)

func newAPITest(t *testing.T, opts ...serverOption) *apiTest {
	t.Helper()
	repo, err := storage.Open(context.Background(), storage.Options{
		Dialect:    storage.SQLite,
		SQLitePath: filepath.Join(t.TempDir(), "savr.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	tokens := auth.NewAuthenticator(testSecret, "savr")
	o := Options{
		Addr:          ":0",
		Ledger:        services.NewLedgerService(repo, nil),
		Reporting:     services.NewReportingService(repo, 0),
		Pinger:        repo,
		Authenticator: tokens,
		Limiter:       ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: 1000}),
	}
	for _, opt := range opts {
		opt(&o)
	}
	srv := NewServer(o)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	return &apiTest{t: t, srv: srv, tokens: tokens}
}

type apiResponse struct {
	Code    int         `json:"-"`
	Header  http.Header `json:"-"`
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
}

func (a *apiTest) do(user, method, path string, body any) apiResponse {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(a.t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		token, err := a.tokens.IssueToken(user, time.Hour)
		require.NoError(a.t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rr := httptest.NewRecorder()
	a.srv.Handler.ServeHTTP(rr, req)

	resp := apiResponse{Code: rr.Code, Header: rr.Header()}
	require.NoError(a.t, json.Unmarshal(rr.Body.Bytes(), &resp), "body: %s", rr.Body.String())
	return resp
}

func decodeData[T any](t *testing.T, resp apiResponse) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(resp.Data, &v))
	return v
}

type entryJSON struct {
	ID          int64  `json:"id"`
	UserID      string `json:"user_id"`
	Amount      string `json:"amount"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Timestamp   string `json:"timestamp"`
}

func TestHealthEndpoints(t *testing.T) {
	api := newAPITest(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		resp := api.do("", http.MethodGet, path, nil)
		assert.Equal(t, http.StatusOK, resp.Code, path)
		assert.True(t, resp.Success, path)
		assert.NotEmpty(t, resp.Header.Get("X-Request-ID"), path)
		assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"), path)
	}
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("connection refused") }

func TestReadyz_Unavailable(t *testing.T) {
	api := newAPITest(t, func(o *Options) { o.Pinger = failingPinger{} })

	resp := api.do("", http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
	assert.False(t, resp.Success)
	assert.Equal(t, "connection refused", resp.Error)
}

func TestAuthRequired(t *testing.T) {
	api := newAPITest(t)

	resp := api.do("", http.MethodGet, "/api/users/u1/summary", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Header.Get("WWW-Authenticate"), "Bearer")

	other := auth.NewAuthenticator("another-secret-another-secret-xx", "savr")
	token, err := other.IssueToken("u1", time.Hour)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/api/users/u1/summary", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	api.srv.Handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestIncomeLifecycle(t *testing.T) {
	api := newAPITest(t)

	resp := api.do("u1", http.MethodPost, "/api/users/u1/incomes", map[string]any{
		"amount": "1500.50", "description": "June salary", "category": "Salary",
	})
	require.Equal(t, http.StatusCreated, resp.Code, resp.Error)
	assert.True(t, resp.Success)
	assert.Equal(t, "Income added successfully", resp.Message)
	created := decodeData[entryJSON](t, resp)
	assert.Equal(t, "1500.50", created.Amount)
	assert.Equal(t, "u1", created.UserID)
	assert.Regexp(t, `^\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}$`, created.Timestamp)

	// Numeric amounts are accepted too.
	resp = api.do("u1", http.MethodPost, "/api/users/u1/incomes", `{"amount": 99.5}`)
	require.Equal(t, http.StatusCreated, resp.Code, resp.Error)
	numeric := decodeData[entryJSON](t, resp)
	assert.Equal(t, "99.50", numeric.Amount)
	assert.Equal(t, "Other", numeric.Category)

	resp = api.do("u1", http.MethodGet, "/api/users/u1/incomes", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Len(t, decodeData[[]entryJSON](t, resp), 2)

	path := "/api/incomes/" + strconv.FormatInt(created.ID, 10)
	resp = api.do("u1", http.MethodPut, path, map[string]any{"amount": "1600", "category": "Salary"})
	require.Equal(t, http.StatusOK, resp.Code, resp.Error)
	assert.Equal(t, "1600.00", decodeData[entryJSON](t, resp).Amount)

	resp = api.do("u1", http.MethodGet, "/api/users/u1/summary", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	summary := decodeData[map[string]any](t, resp)
	assert.Equal(t, "1699.50", summary["total_income"])
	assert.Equal(t, "1699.50", summary["current_balance"])

	resp = api.do("u1", http.MethodDelete, path, nil)
	require.Equal(t, http.StatusOK, resp.Code, resp.Error)
	assert.Equal(t, "Income deleted successfully", resp.Message)

	resp = api.do("u1", http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)
	assert.False(t, resp.Success)
}

func TestIncomeRejections(t *testing.T) {
	api := newAPITest(t)

	resp := api.do("u1", http.MethodPost, "/api/users/u1/incomes", map[string]any{"amount": "10"})
	require.Equal(t, http.StatusCreated, resp.Code)
	id := decodeData[entryJSON](t, resp).ID
	path := "/api/incomes/" + strconv.FormatInt(id, 10)

	tests := []struct {
		name   string
		user   string
		method string
		path   string
		body   any
		want   int
	}{
		{"foreign user add", "u2", http.MethodPost, "/api/users/u1/incomes", map[string]any{"amount": "1"}, http.StatusForbidden},
		{"foreign user list", "u2", http.MethodGet, "/api/users/u1/incomes", nil, http.StatusForbidden},
		{"foreign user update", "u2", http.MethodPut, path, map[string]any{"amount": "1"}, http.StatusForbidden},
		{"foreign user delete", "u2", http.MethodDelete, path, nil, http.StatusForbidden},
		{"negative amount", "u1", http.MethodPost, "/api/users/u1/incomes", map[string]any{"amount": "-5"}, http.StatusBadRequest},
		{"missing amount", "u1", http.MethodPost, "/api/users/u1/incomes", map[string]any{"description": "x"}, http.StatusBadRequest},
		{"malformed body", "u1", http.MethodPost, "/api/users/u1/incomes", `{"amount":`, http.StatusBadRequest},
		{"unknown field", "u1", http.MethodPost, "/api/users/u1/incomes", `{"amount":"1","date":"x"}`, http.StatusBadRequest},
		{"bad id", "u1", http.MethodPut, "/api/incomes/abc", map[string]any{"amount": "1"}, http.StatusBadRequest},
		{"unknown income", "u1", http.MethodPut, "/api/incomes/999", map[string]any{"amount": "1"}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := api.do(tt.user, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, resp.Code, resp.Error)
			assert.False(t, resp.Success)
			assert.NotEmpty(t, resp.Message)
		})
	}

	resp = api.do("u1", http.MethodGet, "/api/users/u1/summary", nil)
	assert.Equal(t, "10.00", decodeData[map[string]any](t, resp)["total_income"])
}

func TestAddForeignUserIsForbiddenForAnyBody(t *testing.T) {
	api := newAPITest(t)

	bodies := []any{
		map[string]any{"amount": "-5"},
		map[string]any{"description": "x"},
		`{"amount":"1","bogus":1}`,
		`not json`,
		map[string]any{"amount": "10"},
	}
	for _, path := range []string{"/api/users/u1/incomes", "/api/users/u1/expenses"} {
		for _, body := range bodies {
			resp := api.do("u2", http.MethodPost, path, body)
			assert.Equal(t, http.StatusForbidden, resp.Code, "%s %v: %s", path, body, resp.Error)
			assert.Equal(t, "Access denied", resp.Message)
		}
	}

	resp := api.do("u1", http.MethodGet, "/api/users/u1/transactions", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, 0, decodeData[struct {
		Total int `json:"total"`
	}](t, resp).Total)
}

func TestExpensesAndHistory(t *testing.T) {
	api := newAPITest(t)

	for _, body := range []map[string]any{
		{"amount": "100", "category": "Salary"},
	} {
		resp := api.do("u1", http.MethodPost, "/api/users/u1/incomes", body)
		require.Equal(t, http.StatusCreated, resp.Code, resp.Error)
	}
	for _, body := range []map[string]any{
		{"amount": "20", "category": "Food"},
		{"amount": "30", "category": "Savings"},
	} {
		resp := api.do("u1", http.MethodPost, "/api/users/u1/expenses", body)
		require.Equal(t, http.StatusCreated, resp.Code, resp.Error)
	}

	resp := api.do("u1", http.MethodGet, "/api/users/u1/expenses", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	expenses := decodeData[[]entryJSON](t, resp)
	require.Len(t, expenses, 2)

	resp = api.do("u1", http.MethodGet, "/api/users/u1/summary", nil)
	summary := decodeData[map[string]any](t, resp)
	assert.Equal(t, "50.00", summary["total_expenses"])
	assert.Equal(t, "50.00", summary["current_balance"])
	assert.Equal(t, "30.00", summary["net_savings"])

	resp = api.do("u1", http.MethodGet, "/api/users/u1/transactions?type=expense&limit=1", nil)
	require.Equal(t, http.StatusOK, resp.Code, resp.Error)
	page := decodeData[struct {
		Transactions []map[string]any `json:"transactions"`
		Total        int              `json:"total"`
		Limit        int              `json:"limit"`
		Offset       int              `json:"offset"`
	}](t, resp)
	assert.Equal(t, 2, page.Total)
	assert.Equal(t, 1, page.Limit)
	require.Len(t, page.Transactions, 1)
	assert.Equal(t, "expense", page.Transactions[0]["type"])

	for _, query := range []string{"type=transfer", "limit=ten", "offset=-1", "start_date=06/01/2024", "start_date=2024-06-02&end_date=2024-06-01"} {
		resp = api.do("u1", http.MethodGet, "/api/users/u1/transactions?"+query, nil)
		assert.Equal(t, http.StatusBadRequest, resp.Code, query)
	}

	resp = api.do("u2", http.MethodGet, "/api/users/u1/transactions", nil)
	assert.Equal(t, http.StatusForbidden, resp.Code)

	resp = api.do("u1", http.MethodDelete, "/api/expenses/"+strconv.FormatInt(expenses[0].ID, 10), nil)
	require.Equal(t, http.StatusOK, resp.Code, resp.Error)

	resp = api.do("u1", http.MethodGet, "/api/users/u1/summary/reconciliation", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, true, decodeData[map[string]any](t, resp)["consistent"])
}

func TestTransactionDetails(t *testing.T) {
	api := newAPITest(t)

	resp := api.do("u1", http.MethodPost, "/api/users/u1/expenses", map[string]any{"amount": "4.20", "description": "coffee"})
	require.Equal(t, http.StatusCreated, resp.Code)

	// The first projection row of a fresh database has id 1.
	resp = api.do("u1", http.MethodGet, "/api/users/u1/transactions/1", nil)
	require.Equal(t, http.StatusOK, resp.Code, resp.Error)
	tx := decodeData[map[string]any](t, resp)
	assert.Equal(t, "coffee", tx["description"])
	assert.Equal(t, "4.20", tx["amount"])

	resp = api.do("u1", http.MethodGet, "/api/users/u1/transactions/2", nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)

	resp = api.do("u2", http.MethodGet, "/api/users/u1/transactions/1", nil)
	assert.Equal(t, http.StatusForbidden, resp.Code)
}

func TestHistoryIDsOpenDetails(t *testing.T) {
	api := newAPITest(t)

	resp := api.do("u1", http.MethodPost, "/api/users/u1/expenses", map[string]any{"amount": "3", "description": "coffee"})
	require.Equal(t, http.StatusCreated, resp.Code)
	resp = api.do("u1", http.MethodPost, "/api/users/u1/incomes", map[string]any{"amount": "900", "description": "salary"})
	require.Equal(t, http.StatusCreated, resp.Code)

	resp = api.do("u1", http.MethodGet, "/api/users/u1/transactions", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	page := decodeData[struct {
		Transactions []map[string]any `json:"transactions"`
	}](t, resp)
	require.Len(t, page.Transactions, 2)

	for _, row := range page.Transactions {
		id := strconv.FormatFloat(row["id"].(float64), 'f', 0, 64)
		resp = api.do("u1", http.MethodGet, "/api/users/u1/transactions/"+id, nil)
		require.Equal(t, http.StatusOK, resp.Code, resp.Error)
		details := decodeData[map[string]any](t, resp)
		assert.Equal(t, row["description"], details["description"])
		assert.Equal(t, row["type"], details["type"])
	}
}

func TestRateLimitOnWrites(t *testing.T) {
	api := newAPITest(t, func(o *Options) {
		o.Limiter = ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: 2})
	})

	for i := 0; i < 2; i++ {
		resp := api.do("u1", http.MethodPost, "/api/users/u1/expenses", map[string]any{"amount": "1"})
		require.Equal(t, http.StatusCreated, resp.Code)
	}
	resp := api.do("u1", http.MethodPost, "/api/users/u1/expenses", map[string]any{"amount": "1"})
	assert.Equal(t, http.StatusTooManyRequests, resp.Code)
	assert.False(t, resp.Success)
	assert.Equal(t, "60", resp.Header.Get("Retry-After"))

	// Reads and other users are not affected.
	resp = api.do("u1", http.MethodGet, "/api/users/u1/expenses", nil)
	assert.Equal(t, http.StatusOK, resp.Code)
	resp = api.do("u2", http.MethodPost, "/api/users/u2/expenses", map[string]any{"amount": "1"})
	assert.Equal(t, http.StatusCreated, resp.Code)
}

func TestProductionHidesErrorDetail(t *testing.T) {
	api := newAPITest(t, func(o *Options) {
		o.Production = true
		o.Pinger = failingPinger{}
	})

	resp := api.do("u1", http.MethodPut, "/api/incomes/999", map[string]any{"amount": "1"})
	assert.Equal(t, http.StatusNotFound, resp.Code)
	assert.Empty(t, resp.Error)

	resp = api.do("", http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
	assert.Empty(t, resp.Error)
}

func TestUnknownRoute(t *testing.T) {
	api := newAPITest(t)

	resp := api.do("", http.MethodGet, "/nope", nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)
	assert.False(t, resp.Success)
}
