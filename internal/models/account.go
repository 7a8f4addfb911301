package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account holds the cash balance of one principal.
type Account struct {
	ID        string          `json:"id"`
	OwnerID   string          `json:"owner_id"`
	Balance   decimal.Decimal `json:"balance"`
	CreatedAt time.Time       `json:"created_at"`
}

// AssetHolding is the position of an account in one symbol.
type AssetHolding struct {
	AccountID   string          `json:"account_id"`
	Symbol      string          `json:"symbol"`
	Quantity    decimal.Decimal `json:"quantity"`
	AverageCost decimal.Decimal `json:"average_cost"` // meaningless when Quantity is zero
	UpdatedAt   time.Time       `json:"updated_at"`
}

type TradeSide string

const (
	SideBuy  TradeSide = "BUY"
	SideSell TradeSide = "SELL"
)
