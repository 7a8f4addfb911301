package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	interfaces "github.com/mandycs/CaixaBankCodingChallenge/internal/interfaces"
	"github.com/mandycs/CaixaBankCodingChallenge/internal/models"
	"github.com/shopspring/decimal"
)

// TradeResult is the outcome of a committed trade.
type TradeResult struct {
	Transaction  models.Transaction  `json:"transaction"`
	Holding      models.AssetHolding `json:"holding"`                // position after the trade
	RealizedGain decimal.Decimal     `json:"realized_gain,omitzero"` // sells only, (price - averageCost) * quantity
}

// Trade buys or sells quantity units of symbol at pricePerUnit, settling the
// notional against the account's cash balance.
//
// Buys recompute the weighted average cost of the holding. Sells leave the
// average cost untouched and report the realized gain; selling the whole
// position resets it.
func (l *Ledger) Trade(ctx context.Context, accountID, symbol string, side models.TradeSide, quantity, price decimal.Decimal) (TradeResult, error) {
	symbol = normalizeSymbol(symbol)
	if symbol == "" {
		return TradeResult{}, ErrInvalidSymbol
	}
	if !quantity.IsPositive() {
		return TradeResult{}, fmt.Errorf("%w: quantity must be positive", ErrInvalidAmount)
	}
	if !price.IsPositive() {
		return TradeResult{}, fmt.Errorf("%w: price must be positive", ErrInvalidAmount)
	}

	var txType models.TransactionType
	switch side {
	case models.SideBuy:
		txType = models.TypeAssetPurchase
	case models.SideSell:
		txType = models.TypeAssetSale
	default:
		return TradeResult{}, fmt.Errorf("%w: unknown trade side %q", ErrInvalidTransactionType, side)
	}

	now := l.now().UTC()
	notional := quantity.Mul(price)
	tx := models.Transaction{
		ID:            uuid.NewString(),
		Type:          txType,
		Amount:        notional,
		Timestamp:     now,
		SourceAccount: accountID,
		Symbol:        symbol,
		Quantity:      quantity,
		Price:         price,
	}

	var (
		result  = TradeResult{Transaction: tx}
		account models.Account
	)

	unlock := l.lockAccounts(accountID)
	err := l.store.RunInTx(ctx, func(utx interfaces.LedgerTx) error {
		var err error
		account, err = l.loadAccount(ctx, utx, accountID, ErrAccountNotFound)
		if err != nil {
			return err
		}

		holding, err := utx.GetHolding(ctx, accountID, symbol)
		if errors.Is(err, interfaces.ErrNotFound) {
			holding = models.AssetHolding{AccountID: accountID, Symbol: symbol}
		} else if err != nil {
			return fmt.Errorf("failed to load holding: %w", err)
		}

		var newBalance decimal.Decimal
		if side == models.SideBuy {
			newBalance = account.Balance.Sub(notional)
			if newBalance.IsNegative() {
				return fmt.Errorf("%w: balance %s, cost %s", ErrInsufficientFunds, account.Balance, notional)
			}
			holding = applyBuy(holding, quantity, price)
		} else {
			if quantity.GreaterThan(holding.Quantity) {
				return fmt.Errorf("%w: holding %s %s, selling %s", ErrInsufficientHoldings, holding.Quantity, symbol, quantity)
			}
			result.RealizedGain = price.Sub(holding.AverageCost).Mul(quantity)
			newBalance = account.Balance.Add(notional)
			holding = applySell(holding, quantity)
		}
		holding.UpdatedAt = now

		if err := utx.UpdateBalance(ctx, accountID, newBalance); err != nil {
			return fmt.Errorf("failed to update balance: %w", err)
		}
		account.Balance = newBalance

		if err := utx.SaveHolding(ctx, holding); err != nil {
			return fmt.Errorf("failed to save holding: %w", err)
		}
		result.Holding = holding

		if err := utx.AppendTransaction(ctx, tx); err != nil {
			return fmt.Errorf("failed to append transaction: %w", err)
		}
		return nil
	})
	unlock()

	if err != nil {
		l.logger.WarnContext(ctx, "Trade rejected",
			slog.String("account_id", accountID),
			slog.String("symbol", symbol),
			slog.String("side", string(side)),
			slog.String("quantity", quantity.String()),
			slog.String("error", err.Error()))
		return TradeResult{}, err
	}

	l.logger.InfoContext(ctx, "Trade committed",
		slog.String("transaction_id", tx.ID),
		slog.String("account_id", accountID),
		slog.String("symbol", symbol),
		slog.String("side", string(side)),
		slog.String("quantity", quantity.String()),
		slog.String("price", price.String()))

	holding := result.Holding
	l.runHooks(ctx, Posting{Transaction: tx, Accounts: []models.Account{account}, Holding: &holding})
	return result, nil
}

func applyBuy(h models.AssetHolding, quantity, price decimal.Decimal) models.AssetHolding {
	newQuantity := h.Quantity.Add(quantity)
	if h.Quantity.IsZero() {
		h.AverageCost = price
	} else {
		cost := h.Quantity.Mul(h.AverageCost).Add(quantity.Mul(price))
		h.AverageCost = cost.Div(newQuantity)
	}
	h.Quantity = newQuantity
	return h
}

func applySell(h models.AssetHolding, quantity decimal.Decimal) models.AssetHolding {
	h.Quantity = h.Quantity.Sub(quantity)
	if h.Quantity.IsZero() {
		h.AverageCost = decimal.Zero
	}
	return h
}
