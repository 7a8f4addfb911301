package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/mandycs/CaixaBankCodingChallenge/internal/ledger"
	"github.com/mandycs/CaixaBankCodingChallenge/internal/models"
	"github.com/shopspring/decimal"
)

const (
	kindDeposit    = "deposit"
	kindWithdrawal = "withdrawal"
	kindTransfer   = "transfer"
	kindSpend      = "spend"
)

// CreateTransactionRequest carries a positive amount; the kind decides the
// direction.
type CreateTransactionRequest struct {
	Type            string          `json:"type"`
	AccountID       string          `json:"account_id"`
	TargetAccountID string          `json:"target_account_id,omitempty"`
	Amount          decimal.Decimal `json:"amount"`
	Category        string          `json:"category,omitempty"`
}

func (h *Handler) CreateTransactionHandler(w http.ResponseWriter, r *http.Request) {
	var req CreateTransactionRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.AccountID == "" {
		h.sendError(w, "account_id is required", http.StatusBadRequest, "VALIDATION_ERROR")
		return
	}
	if !req.Amount.IsPositive() {
		h.sendError(w, "amount must be positive", http.StatusBadRequest, "VALIDATION_ERROR")
		return
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()

	var (
		tx  models.Transaction
		err error
	)
	switch strings.ToLower(req.Type) {
	case kindDeposit:
		tx, err = h.ledger.Post(ctx, req.AccountID, req.Amount, models.TypeDeposit)
	case kindWithdrawal:
		tx, err = h.ledger.Post(ctx, req.AccountID, req.Amount.Neg(), models.TypeWithdrawal)
	case kindTransfer:
		if req.TargetAccountID == "" {
			h.sendError(w, "target_account_id is required for transfers", http.StatusBadRequest, "VALIDATION_ERROR")
			return
		}
		tx, err = h.ledger.Transfer(ctx, req.AccountID, req.TargetAccountID, req.Amount)
	case kindSpend:
		if strings.TrimSpace(req.Category) == "" {
			h.sendError(w, "category is required for spends", http.StatusBadRequest, "VALIDATION_ERROR")
			return
		}
		tx, err = h.ledger.Post(ctx, req.AccountID, req.Amount.Neg(), models.TypeWithdrawal, ledger.WithCategory(req.Category))
	default:
		h.sendError(w, "unknown transaction type: "+req.Type, http.StatusBadRequest, "VALIDATION_ERROR")
		return
	}
	if err != nil {
		h.sendFailure(w, err)
		return
	}

	h.sendJSON(w, tx, http.StatusCreated)
	h.logger.Info("Transaction processed successfully",
		slog.String("transaction_id", tx.ID),
		slog.String("type", string(tx.Type)),
		slog.Bool("fraud", tx.Flagged()))
}

func (h *Handler) ListTransactionsHandler(w http.ResponseWriter, r *http.Request) {
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
	txs, err := h.ledger.Transactions(ctx, accountID)
	if err != nil {
		h.sendFailure(w, err)
		return
	}
	if txs == nil {
		txs = []models.Transaction{}
	}
	h.sendJSON(w, txs, http.StatusOK)
}
