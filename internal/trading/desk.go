package trading

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	interfaces "github.com/mandycs/CaixaBankCodingChallenge/internal/interfaces"
	"github.com/mandycs/CaixaBankCodingChallenge/internal/ledger"
	"github.com/mandycs/CaixaBankCodingChallenge/internal/models"
	"github.com/shopspring/decimal"
)

// quantityPlaces bounds the precision of quantities bought by cash amount.
// Truncating keeps quantity*price at or below the cash spent.
const quantityPlaces = 8

type Ledger interface {
	Trade(ctx context.Context, accountID, symbol string, side models.TradeSide, quantity, price decimal.Decimal) (ledger.TradeResult, error)
	Holdings(ctx context.Context, accountID string) ([]models.AssetHolding, error)
	Balance(ctx context.Context, accountID string) (decimal.Decimal, error)
}

// Desk executes trades at the current market price.
type Desk struct {
	ledger       Ledger
	prices       interfaces.PriceProvider
	priceTimeout time.Duration
	logger       *slog.Logger
}

func NewDesk(l Ledger, prices interfaces.PriceProvider, priceTimeout time.Duration, logger *slog.Logger) *Desk {
	if logger == nil {
		logger = slog.Default()
	}
	return &Desk{
		ledger:       l,
		prices:       prices,
		priceTimeout: priceTimeout,
		logger:       logger,
	}
}

// BuyAmount spends up to cash on symbol at the current price.
func (d *Desk) BuyAmount(ctx context.Context, accountID, symbol string, cash decimal.Decimal) (ledger.TradeResult, error) {
	if !cash.IsPositive() {
		return ledger.TradeResult{}, fmt.Errorf("%w: amount must be positive", ledger.ErrInvalidAmount)
	}

	price, err := d.price(ctx, symbol)
	if err != nil {
		return ledger.TradeResult{}, err
	}

	quantity := cash.Div(price).Truncate(quantityPlaces)
	if !quantity.IsPositive() {
		return ledger.TradeResult{}, fmt.Errorf("%w: %s buys less than one unit step of %s", ledger.ErrInvalidAmount, cash, symbol)
	}
	return d.ledger.Trade(ctx, accountID, symbol, models.SideBuy, quantity, price)
}

// Sell sells quantity units of symbol at the current price.
func (d *Desk) Sell(ctx context.Context, accountID, symbol string, quantity decimal.Decimal) (ledger.TradeResult, error) {
	if !quantity.IsPositive() {
		return ledger.TradeResult{}, fmt.Errorf("%w: quantity must be positive", ledger.ErrInvalidAmount)
	}

	price, err := d.price(ctx, symbol)
	if err != nil {
		return ledger.TradeResult{}, err
	}
	return d.ledger.Trade(ctx, accountID, symbol, models.SideSell, quantity, price)
}

type NetWorth struct {
	Cash     decimal.Decimal `json:"cash"`
	Assets   decimal.Decimal `json:"assets"`
	Total    decimal.Decimal `json:"total"`
	Unpriced []string        `json:"unpriced,omitempty"` // held symbols the market does not quote
}

// NetWorth values the account at market prices. Holdings the market does not
// quote are left out of the total and listed in Unpriced.
func (d *Desk) NetWorth(ctx context.Context, accountID string) (NetWorth, error) {
	cash, err := d.ledger.Balance(ctx, accountID)
	if err != nil {
		return NetWorth{}, err
	}
	holdings, err := d.ledger.Holdings(ctx, accountID)
	if err != nil {
		return NetWorth{}, fmt.Errorf("failed to load holdings: %w", err)
	}

	nw := NetWorth{Cash: cash, Assets: decimal.Zero}
	for _, h := range holdings {
		price, err := d.price(ctx, h.Symbol)
		if errors.Is(err, interfaces.ErrAssetNotFound) {
			nw.Unpriced = append(nw.Unpriced, h.Symbol)
			continue
		}
		if err != nil {
			return NetWorth{}, err
		}
		nw.Assets = nw.Assets.Add(h.Quantity.Mul(price))
	}
	nw.Total = nw.Cash.Add(nw.Assets)
	return nw, nil
}

func (d *Desk) price(ctx context.Context, symbol string) (decimal.Decimal, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return decimal.Zero, ledger.ErrInvalidSymbol
	}

	if d.priceTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.priceTimeout)
		defer cancel()
	}

	price, err := d.prices.GetPrice(ctx, symbol)
	if err != nil {
		d.logger.WarnContext(ctx, "Price lookup failed",
			slog.String("symbol", symbol),
			slog.String("error", err.Error()))
		return decimal.Zero, err
	}
	return price, nil
}
