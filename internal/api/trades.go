package api

import (
	"net/http"

	"github.com/shopspring/decimal"
)

type BuyRequest struct {
	AccountID string          `json:"account_id"`
	Symbol    string          `json:"symbol"`
	Amount    decimal.Decimal `json:"amount"` // cash to spend
}

type SellRequest struct {
	AccountID string          `json:"account_id"`
	Symbol    string          `json:"symbol"`
	Quantity  decimal.Decimal `json:"quantity"`
}

func (h *Handler) BuyHandler(w http.ResponseWriter, r *http.Request) {
	var req BuyRequest
	if !h.decode(w, r, &req) {
		return
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()

	result, err := h.desk.BuyAmount(ctx, req.AccountID, req.Symbol, req.Amount)
	if err != nil {
		h.sendFailure(w, err)
		return
	}
	h.sendJSON(w, result, http.StatusCreated)
}

func (h *Handler) SellHandler(w http.ResponseWriter, r *http.Request) {
	var req SellRequest
	if !h.decode(w, r, &req) {
		return
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()

	result, err := h.desk.Sell(ctx, req.AccountID, req.Symbol, req.Quantity)
	if err != nil {
		h.sendFailure(w, err)
		return
	}
	h.sendJSON(w, result, http.StatusCreated)
}
