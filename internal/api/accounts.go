package api

import (
	"net/http"
	"strings"

	"github.com/mandycs/CaixaBankCodingChallenge/internal/models"
	"github.com/shopspring/decimal"
)

type OpenAccountRequest struct {
	OwnerID string `json:"owner_id"`
}

type BalanceResponse struct {
	AccountID string          `json:"account_id"`
	Balance   decimal.Decimal `json:"balance"`
}

func (h *Handler) OpenAccountHandler(w http.ResponseWriter, r *http.Request) {
	var req OpenAccountRequest
	if !h.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.OwnerID) == "" {
		h.sendError(w, "owner_id is required", http.StatusBadRequest, "VALIDATION_ERROR")
		return
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()

	account, err := h.ledger.OpenAccount(ctx, strings.TrimSpace(req.OwnerID))
	if err != nil {
		h.sendFailure(w, err)
		return
	}
	h.sendJSON(w, account, http.StatusCreated)
}

func (h *Handler) BalanceHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountParam(w, r)
	if !ok {
		return
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()

	account, err := h.ledger.Account(ctx, accountID)
	if err != nil {
		h.sendFailure(w, err)
		return
	}
	h.sendJSON(w, BalanceResponse{AccountID: account.ID, Balance: account.Balance}, http.StatusOK)
}

func (h *Handler) NetWorthHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountParam(w, r)
	if !ok {
		return
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()

	nw, err := h.desk.NetWorth(ctx, accountID)
	if err != nil {
		h.sendFailure(w, err)
		return
	}
	h.sendJSON(w, nw, http.StatusOK)
}

func (h *Handler) HoldingsHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountParam(w, r)
	if !ok {
		return
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()

	if _, err := h.ledger.Account(ctx, accountID); err != nil {
		h.sendFailure(w, err)
		return
	}
	holdings, err := h.ledger.Holdings(ctx, accountID)
	if err != nil {
		h.sendFailure(w, err)
		return
	}
	if holdings == nil {
		holdings = []models.AssetHolding{}
	}
	h.sendJSON(w, holdings, http.StatusOK)
}
