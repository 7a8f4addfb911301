package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mandycs/CaixaBankCodingChallenge/internal/accrual"
	"github.com/mandycs/CaixaBankCodingChallenge/internal/fraud"
	"github.com/mandycs/CaixaBankCodingChallenge/internal/fx"
	interfaces "github.com/mandycs/CaixaBankCodingChallenge/internal/interfaces"
	"github.com/mandycs/CaixaBankCodingChallenge/internal/ledger"
	"github.com/mandycs/CaixaBankCodingChallenge/internal/models"
	"github.com/mandycs/CaixaBankCodingChallenge/internal/projection"
	"github.com/mandycs/CaixaBankCodingChallenge/internal/storage/memory"
	"github.com/mandycs/CaixaBankCodingChallenge/internal/trading"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

type stubPrices map[string]decimal.Decimal

func (s stubPrices) GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if symbol == "DOWN" {
		return decimal.Zero, interfaces.ErrMarketDataUnavailable
	}
	p, ok := s[symbol]
	if !ok {
		return decimal.Zero, interfaces.ErrAssetNotFound
	}
	return p, nil
}

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := func() time.Time { return testNow }

	store := memory.NewMemoryLedgerStore()
	l := ledger.NewLedger(store,
		ledger.WithLogger(logger),
		ledger.WithClock(clock),
		ledger.WithFraudScorer(fraud.NewScorer(store, fraud.DefaultConfig(), logger)))

	prices := stubPrices{"ACME": decimal.NewFromInt(10)}
	table, err := fx.LoadFrom(
		strings.NewReader("from,to,rate\nUSD,EUR,0.92\n"),
		strings.NewReader("from,to,fee\nUSD,EUR,0.01\n"))
	require.NoError(t, err)

	h := NewHandler(Deps{
		Ledger:   l,
		Desk:     trading.NewDesk(l, prices, time.Second, logger),
		Exchange: table,
		Planner:  projection.NewPlanner(store, clock),
		Accrual:  accrual.NewEngine(l, store, store, prices, accrual.DefaultConfig(), accrual.WithLogger(logger), accrual.WithClock(clock)),
		Alerts:   store,
	}, logger)
	return h.Routes()
}

func do(t *testing.T, h http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, &buf))
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func openAccount(t *testing.T, h http.Handler, owner, deposit string) string {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/accounts", OpenAccountRequest{OwnerID: owner})
	require.Equal(t, http.StatusCreated, rec.Code)
	account := decodeBody[models.Account](t, rec)

	if deposit != "" {
		rec = do(t, h, http.MethodPost, "/transactions", map[string]string{
			"type": "deposit", "account_id": account.ID, "amount": deposit,
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}
	return account.ID
}

func balanceOf(t *testing.T, h http.Handler, accountID string) decimal.Decimal {
	t.Helper()
	rec := do(t, h, http.MethodGet, "/accounts/balance?account_id="+accountID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	return decodeBody[BalanceResponse](t, rec).Balance
}

func TestHealthCheck(t *testing.T) {
	rec := do(t, newTestServer(t), http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestTransactionsFlow(t *testing.T) {
	h := newTestServer(t)
	a := openAccount(t, h, "alice", "500")
	b := openAccount(t, h, "bob", "")

	rec := do(t, h, http.MethodPost, "/transactions", map[string]string{
		"type": "transfer", "account_id": a, "target_account_id": b, "amount": "100",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodPost, "/transactions", map[string]string{
		"type": "withdrawal", "account_id": a, "amount": "150",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, h, http.MethodPost, "/transactions", map[string]string{
		"type": "spend", "account_id": a, "amount": "20", "category": "Groceries",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	spend := decodeBody[models.Transaction](t, rec)
	require.NotNil(t, spend.FraudFlag)
	assert.False(t, *spend.FraudFlag)
	assert.Equal(t, "groceries", spend.Category)

	assert.True(t, decimal.NewFromInt(230).Equal(balanceOf(t, h, a)))
	assert.True(t, decimal.NewFromInt(100).Equal(balanceOf(t, h, b)))

	rec = do(t, h, http.MethodGet, "/transactions?account_id="+a, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]models.Transaction](t, rec), 4)

	rec = do(t, h, http.MethodGet, "/transactions?account_id="+b, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]models.Transaction](t, rec), 1)
}

func TestTransactionErrors(t *testing.T) {
	h := newTestServer(t)
	a := openAccount(t, h, "alice", "50")

	tests := []struct {
		name   string
		body   any
		status int
		code   string
	}{
		{
			name:   "insufficient funds",
			body:   map[string]string{"type": "withdrawal", "account_id": a, "amount": "80"},
			status: http.StatusUnprocessableEntity,
			code:   "INSUFFICIENT_FUNDS",
		},
		{
			name:   "unknown account",
			body:   map[string]string{"type": "deposit", "account_id": "nope", "amount": "1"},
			status: http.StatusNotFound,
			code:   "NOT_FOUND",
		},
		{
			name:   "unknown target",
			body:   map[string]string{"type": "transfer", "account_id": a, "target_account_id": "nope", "amount": "1"},
			status: http.StatusNotFound,
			code:   "NOT_FOUND",
		},
		{
			name:   "same account",
			body:   map[string]string{"type": "transfer", "account_id": a, "target_account_id": a, "amount": "1"},
			status: http.StatusBadRequest,
			code:   "VALIDATION_ERROR",
		},
		{
			name:   "spend without category",
			body:   map[string]string{"type": "spend", "account_id": a, "amount": "1"},
			status: http.StatusBadRequest,
			code:   "VALIDATION_ERROR",
		},
		{
			name:   "negative amount",
			body:   map[string]string{"type": "deposit", "account_id": a, "amount": "-5"},
			status: http.StatusBadRequest,
			code:   "VALIDATION_ERROR",
		},
		{
			name:   "unknown type",
			body:   map[string]string{"type": "loan", "account_id": a, "amount": "5"},
			status: http.StatusBadRequest,
			code:   "VALIDATION_ERROR",
		},
		{
			name:   "unknown field",
			body:   map[string]string{"type": "deposit", "account_id": a, "amount": "5", "pin": "1234"},
			status: http.StatusBadRequest,
			code:   "INVALID_REQUEST",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/transactions", tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, decodeBody[ErrorResponse](t, rec).Code)
		})
	}

	assert.True(t, decimal.NewFromInt(50).Equal(balanceOf(t, h, a)))
}

func TestMissingAccountParam(t *testing.T) {
	h := newTestServer(t)
	for _, target := range []string{"/accounts/balance", "/accounts/networth", "/accounts/holdings", "/transactions", "/projections", "/alerts", "/expenses"} {
		rec := do(t, h, http.MethodGet, target, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}

	rec := do(t, h, http.MethodGet, "/accounts/balance?account_id=ghost", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTrades(t *testing.T) {
	h := newTestServer(t)
	a := openAccount(t, h, "alice", "100")

	rec := do(t, h, http.MethodPost, "/trades/buy", map[string]string{"account_id": a, "symbol": "acme", "amount": "40"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	bought := decodeBody[ledger.TradeResult](t, rec)
	assert.True(t, decimal.NewFromInt(4).Equal(bought.Holding.Quantity))
	assert.Equal(t, "ACME", bought.Holding.Symbol)

	rec = do(t, h, http.MethodPost, "/trades/sell", map[string]string{"account_id": a, "symbol": "ACME", "quantity": "1"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, h, http.MethodGet, "/accounts/networth?account_id="+a, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	nw := decodeBody[trading.NetWorth](t, rec)
	assert.True(t, decimal.NewFromInt(70).Equal(nw.Cash))
	assert.True(t, decimal.NewFromInt(30).Equal(nw.Assets))
	assert.True(t, decimal.NewFromInt(100).Equal(nw.Total))

	rec = do(t, h, http.MethodPost, "/trades/sell", map[string]string{"account_id": a, "symbol": "ACME", "quantity": "10"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = do(t, h, http.MethodPost, "/trades/buy", map[string]string{"account_id": a, "symbol": "NOPE", "amount": "10"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodPost, "/trades/buy", map[string]string{"account_id": a, "symbol": "DOWN", "amount": "10"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHoldings(t *testing.T) {
	h := newTestServer(t)
	a := openAccount(t, h, "alice", "100")

	rec := do(t, h, http.MethodGet, "/accounts/holdings?account_id="+a, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())

	rec = do(t, h, http.MethodPost, "/trades/buy", map[string]string{"account_id": a, "symbol": "ACME", "amount": "40"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/accounts/holdings?account_id="+a, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	holdings := decodeBody[[]models.AssetHolding](t, rec)
	require.Len(t, holdings, 1)
	assert.Equal(t, "ACME", holdings[0].Symbol)
	assert.True(t, decimal.NewFromInt(4).Equal(holdings[0].Quantity))

	rec = do(t, h, http.MethodGet, "/accounts/holdings?account_id=ghost", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSubscriptionsAndAutoInvest(t *testing.T) {
	h := newTestServer(t)
	a := openAccount(t, h, "alice", "100")

	rec := do(t, h, http.MethodPost, "/subscriptions", map[string]any{"account_id": a, "amount": "15", "interval_seconds": 60})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.True(t, decimal.NewFromInt(85).Equal(balanceOf(t, h, a)))

	rec = do(t, h, http.MethodPost, "/subscriptions", map[string]any{"account_id": a, "amount": "15", "interval_seconds": 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/subscriptions", map[string]any{"account_id": a, "amount": "10", "interval_seconds": int64(10_000_000_000)})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.True(t, decimal.NewFromInt(85).Equal(balanceOf(t, h, a)))

	rec = do(t, h, http.MethodPost, "/subscriptions", map[string]any{"account_id": a, "amount": "500", "interval_seconds": 60})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = do(t, h, http.MethodPost, "/auto-invest", map[string]string{"account_id": a})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodPost, "/auto-invest", map[string]string{"account_id": "ghost"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAlerts(t *testing.T) {
	h := newTestServer(t)
	a := openAccount(t, h, "alice", "100")

	rec := do(t, h, http.MethodPost, "/alerts", map[string]string{"account_id": a, "kind": "balance_drop", "balance_drop_threshold": "20"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody[models.AlertConfig](t, rec)
	assert.Equal(t, models.AlertBalanceDrop, created.Kind)

	rec = do(t, h, http.MethodPost, "/alerts", map[string]string{"account_id": a, "kind": "AMOUNT_REACHED"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/alerts?account_id="+a, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]models.AlertConfig](t, rec), 1)

	rec = do(t, h, http.MethodDelete, "/alerts/"+created.ID+"?account_id=someone-else", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = do(t, h, http.MethodDelete, "/alerts/"+created.ID, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodDelete, "/alerts/"+created.ID+"?account_id="+a, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, h, http.MethodGet, "/alerts?account_id="+a, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeBody[[]models.AlertConfig](t, rec))
}

func TestExpensesAndProjection(t *testing.T) {
	h := newTestServer(t)
	a := openAccount(t, h, "alice", "")

	rec := do(t, h, http.MethodPost, "/expenses", map[string]string{
		"account_id": a, "name": "Rent", "amount": "700", "frequency": "Monthly", "start_date": "2025-01-01",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodPost, "/expenses", map[string]string{
		"account_id": a, "name": "Rent", "amount": "700", "frequency": "monthly", "start_date": "01/01/2025",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/projections?account_id="+a, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[ProjectionResponse](t, rec)
	require.Len(t, resp.Months, projection.DefaultMonths)
	assert.Equal(t, "2025-03", resp.Months[0].Month)
	assert.True(t, decimal.NewFromInt(700).Equal(resp.Months[0].Total))
}

func TestExpenseListUpdateDelete(t *testing.T) {
	h := newTestServer(t)
	a := openAccount(t, h, "alice", "")
	b := openAccount(t, h, "bob", "")

	rec := do(t, h, http.MethodGet, "/expenses?account_id="+a, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())

	rec = do(t, h, http.MethodPost, "/expenses", map[string]string{
		"account_id": a, "name": "Gym", "amount": "30", "frequency": "monthly", "start_date": "2025-01-01",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	gym := decodeBody[models.RecurringExpense](t, rec)

	rec = do(t, h, http.MethodPut, "/expenses/"+gym.ID, map[string]string{
		"account_id": a, "name": "Gym", "amount": "45", "frequency": "yearly", "start_date": "2025-03-01",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decodeBody[models.RecurringExpense](t, rec)
	assert.Equal(t, gym.ID, updated.ID)
	assert.Equal(t, models.FrequencyYearly, updated.Frequency)

	rec = do(t, h, http.MethodGet, "/expenses?account_id="+a, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	listed := decodeBody[[]models.RecurringExpense](t, rec)
	require.Len(t, listed, 1)
	assert.True(t, decimal.NewFromInt(45).Equal(listed[0].Amount))

	rec = do(t, h, http.MethodPut, "/expenses/"+gym.ID, map[string]string{
		"account_id": a, "name": "Gym", "amount": "-1", "frequency": "yearly", "start_date": "2025-03-01",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPut, "/expenses/"+gym.ID, map[string]string{
		"account_id": b, "name": "Gym", "amount": "45", "frequency": "yearly", "start_date": "2025-03-01",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodDelete, "/expenses/"+gym.ID+"?account_id="+b, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodDelete, "/expenses/"+gym.ID+"?account_id="+a, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, h, http.MethodDelete, "/expenses/"+gym.ID+"?account_id="+a, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFXLookups(t *testing.T) {
	h := newTestServer(t)

	rec := do(t, h, http.MethodGet, "/fx/rates?from=usd&to=eur", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rate := decodeBody[FXRateResponse](t, rec)
	assert.Equal(t, "USD", rate.From)
	assert.Equal(t, "0.92", rate.Rate.String())

	rec = do(t, h, http.MethodGet, "/fx/fees?from=USD&to=EUR", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0.01", decodeBody[FXFeeResponse](t, rec).Fee.String())

	rec = do(t, h, http.MethodGet, "/fx/rates?from=EUR&to=JPY", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = do(t, h, http.MethodGet, "/fx/fees?from=EUR&to=JPY", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodGet, "/fx/rates?from=USD", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSimulateFX(t *testing.T) {
	h := newTestServer(t)

	rec := do(t, h, http.MethodGet, "/fx/simulate?amount=100&from=usd&to=eur", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "91.08", decodeBody[FXResponse](t, rec).Received.String())

	rec = do(t, h, http.MethodGet, "/fx/simulate?amount=100&from=EUR&to=JPY", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodGet, "/fx/simulate?amount=abc&from=USD&to=EUR", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
