package interfaces

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var (
	ErrAssetNotFound         = errors.New("asset not found")
	ErrMarketDataUnavailable = errors.New("market data unavailable")
)

// PriceProvider quotes the current market price of a symbol. Implementations
// return ErrAssetNotFound or ErrMarketDataUnavailable (possibly wrapped).
type PriceProvider interface {
	GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}
