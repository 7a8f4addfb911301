package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/mandycs/CaixaBankCodingChallenge/internal/alerts"
	"github.com/mandycs/CaixaBankCodingChallenge/internal/models"
	"github.com/mandycs/CaixaBankCodingChallenge/internal/projection"
	"github.com/shopspring/decimal"
)

type SubscribeRequest struct {
	AccountID       string          `json:"account_id"`
	Amount          decimal.Decimal `json:"amount"`
	IntervalSeconds int64           `json:"interval_seconds"`
}

type AutoInvestRequest struct {
	AccountID string `json:"account_id"`
}

type CreateAlertRequest struct {
	AccountID            string           `json:"account_id"`
	Kind                 models.AlertKind `json:"kind"`
	TargetAmount         decimal.Decimal  `json:"target_amount"`
	AlertThreshold       decimal.Decimal  `json:"alert_threshold"`
	BalanceDropThreshold decimal.Decimal  `json:"balance_drop_threshold"`
}

type CreateExpenseRequest struct {
	AccountID string           `json:"account_id"`
	Name      string           `json:"name"`
	Amount    decimal.Decimal  `json:"amount"`
	Frequency models.Frequency `json:"frequency"`
	StartDate string           `json:"start_date"` // YYYY-MM-DD
}

type UpdateExpenseRequest = CreateExpenseRequest

type ProjectionResponse struct {
	AccountID string                  `json:"account_id"`
	Months    []projection.MonthTotal `json:"months"`
}

type FXResponse struct {
	From     string          `json:"from"`
	To       string          `json:"to"`
	Amount   decimal.Decimal `json:"amount"`
	Received decimal.Decimal `json:"received"`
}

type FXRateResponse struct {
	From string          `json:"from"`
	To   string          `json:"to"`
	Rate decimal.Decimal `json:"rate"`
}

type FXFeeResponse struct {
	From string          `json:"from"`
	To   string          `json:"to"`
	Fee  decimal.Decimal `json:"fee"`
}

func (h *Handler) SubscribeHandler(w http.ResponseWriter, r *http.Request) {
	var req SubscribeRequest
	if !h.decode(w, r, &req) {
		return
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()

	sub, err := h.accrual.Subscribe(ctx, req.AccountID, req.Amount, req.IntervalSeconds)
	if err != nil {
		h.sendFailure(w, err)
		return
	}
	h.sendJSON(w, sub, http.StatusCreated)
}

func (h *Handler) EnableAutoInvestHandler(w http.ResponseWriter, r *http.Request) {
	var req AutoInvestRequest
	if !h.decode(w, r, &req) {
		return
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()

	if err := h.accrual.EnableAutoInvest(ctx, req.AccountID); err != nil {
		h.sendFailure(w, err)
		return
	}
	h.sendJSON(w, map[string]string{"account_id": req.AccountID, "status": "enabled"}, http.StatusOK)
}

func (h *Handler) CreateAlertHandler(w http.ResponseWriter, r *http.Request) {
	var req CreateAlertRequest
	if !h.decode(w, r, &req) {
		return
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()

	if _, err := h.ledger.Account(ctx, req.AccountID); err != nil {
		h.sendFailure(w, err)
		return
	}
	cfg, err := alerts.Register(ctx, h.alerts, models.AlertConfig{
		AccountID:            req.AccountID,
		Kind:                 models.AlertKind(strings.ToUpper(string(req.Kind))),
		TargetAmount:         req.TargetAmount,
		AlertThreshold:       req.AlertThreshold,
		BalanceDropThreshold: req.BalanceDropThreshold,
	})
	if err != nil {
		h.sendFailure(w, err)
		return
	}
	h.sendJSON(w, cfg, http.StatusCreated)
}

func (h *Handler) ListAlertsHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountParam(w, r)
	if !ok {
		return
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()

	configs, err := h.alerts.AlertsByAccount(ctx, accountID)
	if err != nil {
		h.sendFailure(w, err)
		return
	}
	if configs == nil {
		configs = []models.AlertConfig{}
	}
	h.sendJSON(w, configs, http.StatusOK)
}

func (h *Handler) DeleteAlertHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountParam(w, r)
	if !ok {
		return
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()

	if err := h.alerts.DeleteAlert(ctx, accountID, r.PathValue("id")); err != nil {
		h.sendFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) CreateExpenseHandler(w http.ResponseWriter, r *http.Request) {
	var req CreateExpenseRequest
	if !h.decode(w, r, &req) {
		return
	}
	start, err := time.Parse(time.DateOnly, req.StartDate)
	if err != nil {
		h.sendError(w, "start_date must be YYYY-MM-DD", http.StatusBadRequest, "VALIDATION_ERROR")
		return
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()

	if _, err := h.ledger.Account(ctx, req.AccountID); err != nil {
		h.sendFailure(w, err)
		return
	}
	expense, err := h.planner.AddExpense(ctx, req.AccountID, req.Name, req.Amount,
		models.Frequency(strings.ToLower(string(req.Frequency))), start)
	if err != nil {
		h.sendFailure(w, err)
		return
	}
	h.sendJSON(w, expense, http.StatusCreated)
}

func (h *Handler) ListExpensesHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountParam(w, r)
	if !ok {
		return
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()

	expenses, err := h.planner.Expenses(ctx, accountID)
	if err != nil {
		h.sendFailure(w, err)
		return
	}
	if expenses == nil {
		expenses = []models.RecurringExpense{}
	}
	h.sendJSON(w, expenses, http.StatusOK)
}

func (h *Handler) UpdateExpenseHandler(w http.ResponseWriter, r *http.Request) {
	var req UpdateExpenseRequest
	if !h.decode(w, r, &req) {
		return
	}
	start, err := time.Parse(time.DateOnly, req.StartDate)
	if err != nil {
		h.sendError(w, "start_date must be YYYY-MM-DD", http.StatusBadRequest, "VALIDATION_ERROR")
		return
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()

	expense, err := h.planner.UpdateExpense(ctx, req.AccountID, r.PathValue("id"), req.Name, req.Amount,
		models.Frequency(strings.ToLower(string(req.Frequency))), start)
	if err != nil {
		h.sendFailure(w, err)
		return
	}
	h.sendJSON(w, expense, http.StatusOK)
}

func (h *Handler) DeleteExpenseHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountParam(w, r)
	if !ok {
		return
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()

	if err := h.planner.DeleteExpense(ctx, accountID, r.PathValue("id")); err != nil {
		h.sendFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ProjectionHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountParam(w, r)
	if !ok {
		return
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()

	months, err := h.planner.Projection(ctx, accountID)
	if err != nil {
		h.sendFailure(w, err)
		return
	}
	if months == nil {
		months = []projection.MonthTotal{}
	}
	h.sendJSON(w, ProjectionResponse{AccountID: accountID, Months: months}, http.StatusOK)
}

// currencyPair reads the mandatory from and to query parameters.
func (h *Handler) currencyPair(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	q := r.URL.Query()
	from, to := strings.ToUpper(q.Get("from")), strings.ToUpper(q.Get("to"))
	if from == "" || to == "" {
		h.sendError(w, "from and to are required", http.StatusBadRequest, "VALIDATION_ERROR")
		return "", "", false
	}
	return from, to, true
}

func (h *Handler) SimulateFXHandler(w http.ResponseWriter, r *http.Request) {
	from, to, ok := h.currencyPair(w, r)
	if !ok {
		return
	}
	amount, err := decimal.NewFromString(r.URL.Query().Get("amount"))
	if err != nil {
		h.sendError(w, "amount must be a number", http.StatusBadRequest, "VALIDATION_ERROR")
		return
	}

	received, err := h.exchange.Simulate(amount, from, to)
	if err != nil {
		h.sendFailure(w, err)
		return
	}
	h.sendJSON(w, FXResponse{From: from, To: to, Amount: amount, Received: received}, http.StatusOK)
}

func (h *Handler) RateHandler(w http.ResponseWriter, r *http.Request) {
	from, to, ok := h.currencyPair(w, r)
	if !ok {
		return
	}

	rate, err := h.exchange.Rate(from, to)
	if err != nil {
		h.sendFailure(w, err)
		return
	}
	h.sendJSON(w, FXRateResponse{From: from, To: to, Rate: rate}, http.StatusOK)
}

func (h *Handler) FeeHandler(w http.ResponseWriter, r *http.Request) {
	from, to, ok := h.currencyPair(w, r)
	if !ok {
		return
	}

	fee, err := h.exchange.Fee(from, to)
	if err != nil {
		h.sendFailure(w, err)
		return
	}
	h.sendJSON(w, FXFeeResponse{From: from, To: to, Fee: fee}, http.StatusOK)
}
