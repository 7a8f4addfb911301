package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/mandycs/CaixaBankCodingChallenge/internal/accrual"
	"github.com/mandycs/CaixaBankCodingChallenge/internal/alerts"
	"github.com/mandycs/CaixaBankCodingChallenge/internal/fx"
	interfaces "github.com/mandycs/CaixaBankCodingChallenge/internal/interfaces"
	"github.com/mandycs/CaixaBankCodingChallenge/internal/ledger"
	"github.com/mandycs/CaixaBankCodingChallenge/internal/models"
	"github.com/mandycs/CaixaBankCodingChallenge/internal/projection"
	"github.com/mandycs/CaixaBankCodingChallenge/internal/trading"
	"github.com/shopspring/decimal"
)

type Ledger interface {
	OpenAccount(ctx context.Context, ownerID string) (models.Account, error)
	Account(ctx context.Context, accountID string) (models.Account, error)
	Post(ctx context.Context, accountID string, delta decimal.Decimal, txType models.TransactionType, opts ...ledger.PostOption) (models.Transaction, error)
	Transfer(ctx context.Context, fromID, toID string, amount decimal.Decimal, opts ...ledger.PostOption) (models.Transaction, error)
	Transactions(ctx context.Context, accountID string) ([]models.Transaction, error)
	Holdings(ctx context.Context, accountID string) ([]models.AssetHolding, error)
}

type Desk interface {
	BuyAmount(ctx context.Context, accountID, symbol string, cash decimal.Decimal) (ledger.TradeResult, error)
	Sell(ctx context.Context, accountID, symbol string, quantity decimal.Decimal) (ledger.TradeResult, error)
	NetWorth(ctx context.Context, accountID string) (trading.NetWorth, error)
}

type Exchange interface {
	Rate(from, to string) (decimal.Decimal, error)
	Fee(from, to string) (decimal.Decimal, error)
	Simulate(amount decimal.Decimal, from, to string) (decimal.Decimal, error)
}

type Planner interface {
	AddExpense(ctx context.Context, accountID, name string, amount decimal.Decimal, frequency models.Frequency, start time.Time) (models.RecurringExpense, error)
	Expenses(ctx context.Context, accountID string) ([]models.RecurringExpense, error)
	UpdateExpense(ctx context.Context, accountID, id, name string, amount decimal.Decimal, frequency models.Frequency, start time.Time) (models.RecurringExpense, error)
	DeleteExpense(ctx context.Context, accountID, id string) error
	Projection(ctx context.Context, accountID string) ([]projection.MonthTotal, error)
}

type Accrual interface {
	Subscribe(ctx context.Context, accountID string, amount decimal.Decimal, intervalSeconds int64) (models.Subscription, error)
	EnableAutoInvest(ctx context.Context, accountID string) error
}

// Deps are the services the HTTP surface sits on.
type Deps struct {
	Ledger   Ledger
	Desk     Desk
	Exchange Exchange
	Planner  Planner
	Accrual  Accrual
	Alerts   interfaces.AlertStore
}

type Handler struct {
	ledger   Ledger
	desk     Desk
	exchange Exchange
	planner  Planner
	accrual  Accrual
	alerts   interfaces.AlertStore

	logger         *slog.Logger
	requestTimeout time.Duration
}

func NewHandler(deps Deps, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{
		ledger:         deps.Ledger,
		desk:           deps.Desk,
		exchange:       deps.Exchange,
		planner:        deps.Planner,
		accrual:        deps.Accrual,
		alerts:         deps.Alerts,
		logger:         logger,
		requestTimeout: 30 * time.Second,
	}
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.HealthCheckHandler)

	mux.HandleFunc("POST /accounts", h.OpenAccountHandler)
	mux.HandleFunc("GET /accounts/balance", h.BalanceHandler)
	mux.HandleFunc("GET /accounts/networth", h.NetWorthHandler)
	mux.HandleFunc("GET /accounts/holdings", h.HoldingsHandler)

	mux.HandleFunc("POST /transactions", h.CreateTransactionHandler)
	mux.HandleFunc("GET /transactions", h.ListTransactionsHandler)

	mux.HandleFunc("POST /trades/buy", h.BuyHandler)
	mux.HandleFunc("POST /trades/sell", h.SellHandler)

	mux.HandleFunc("POST /subscriptions", h.SubscribeHandler)
	mux.HandleFunc("POST /auto-invest", h.EnableAutoInvestHandler)

	mux.HandleFunc("POST /alerts", h.CreateAlertHandler)
	mux.HandleFunc("GET /alerts", h.ListAlertsHandler)
	mux.HandleFunc("DELETE /alerts/{id}", h.DeleteAlertHandler)

	mux.HandleFunc("POST /expenses", h.CreateExpenseHandler)
	mux.HandleFunc("GET /expenses", h.ListExpensesHandler)
	mux.HandleFunc("PUT /expenses/{id}", h.UpdateExpenseHandler)
	mux.HandleFunc("DELETE /expenses/{id}", h.DeleteExpenseHandler)
	mux.HandleFunc("GET /projections", h.ProjectionHandler)

	mux.HandleFunc("GET /fx/simulate", h.SimulateFXHandler)
	mux.HandleFunc("GET /fx/rates", h.RateHandler)
	mux.HandleFunc("GET /fx/fees", h.FeeHandler)
}

// Routes returns the full HTTP handler with request logging.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return h.logRequests(mux)
}

func (h *Handler) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	h.sendJSON(w, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	}, http.StatusOK)
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t0 := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		h.logger.DebugContext(r.Context(), "HTTP request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.status),
			slog.Duration("duration", time.Since(t0)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (h *Handler) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), h.requestTimeout)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		h.sendError(w, "Invalid request body", http.StatusBadRequest, "INVALID_REQUEST")
		return false
	}
	return true
}

// accountParam reads the mandatory account_id query parameter.
func (h *Handler) accountParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	accountID := r.URL.Query().Get("account_id")
	if accountID == "" {
		h.sendError(w, "account_id is a mandatory field", http.StatusBadRequest, "MISSING_ACCOUNT")
		return "", false
	}
	return accountID, true
}

func (h *Handler) sendJSON(w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode JSON response", slog.String("error", err.Error()))
	}
}

func (h *Handler) sendError(w http.ResponseWriter, message string, statusCode int, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{Error: message, Code: code})

	h.logger.Warn("API error response",
		slog.String("message", message),
		slog.String("code", code),
		slog.Int("status", statusCode))
}

// sendFailure maps a domain error to its HTTP status.
func (h *Handler) sendFailure(w http.ResponseWriter, err error) {
	status, code := classify(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed", slog.String("error", err.Error()))
		message = "internal error"
	}
	h.sendError(w, message, status, code)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, ledger.ErrAccountNotFound),
		errors.Is(err, ledger.ErrTargetAccountNotFound),
		errors.Is(err, interfaces.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, interfaces.ErrAssetNotFound),
		errors.Is(err, fx.ErrPairNotFound):
		return http.StatusNotFound, "UNKNOWN_INSTRUMENT"
	case errors.Is(err, ledger.ErrInsufficientFunds),
		errors.Is(err, ledger.ErrInsufficientHoldings):
		return http.StatusUnprocessableEntity, "INSUFFICIENT_FUNDS"
	case errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, ledger.ErrInvalidSymbol),
		errors.Is(err, ledger.ErrInvalidTransactionType),
		errors.Is(err, ledger.ErrSameAccount),
		errors.Is(err, fx.ErrInvalidAmount),
		errors.Is(err, projection.ErrInvalidExpense),
		errors.Is(err, alerts.ErrInvalidAlert),
		errors.Is(err, accrual.ErrInvalidSubscription):
		return http.StatusBadRequest, "VALIDATION_ERROR"
	case errors.Is(err, interfaces.ErrDuplicate):
		return http.StatusConflict, "CONFLICT"
	case errors.Is(err, interfaces.ErrMarketDataUnavailable),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "UNAVAILABLE"
	}
	return http.StatusInternalServerError, "SERVER_ERROR"
}
