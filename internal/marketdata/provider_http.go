package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	interfaces "github.com/mandycs/CaixaBankCodingChallenge/internal/interfaces"
	"github.com/shopspring/decimal"
)

// HTTPProvider quotes prices from an endpoint that returns a JSON object of
// symbol to price. The whole snapshot is cached for ttl.
type HTTPProvider struct {
	url    string
	cli    *http.Client
	ttl    time.Duration
	logger *slog.Logger

	mu      sync.RWMutex
	prices  map[string]decimal.Decimal
	fetched time.Time
}

func NewHTTPProvider(url string, timeout, ttl time.Duration, logger *slog.Logger) *HTTPProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPProvider{
		url:    url,
		cli:    &http.Client{Timeout: timeout},
		ttl:    ttl,
		logger: logger,
	}
}

func (p *HTTPProvider) GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return decimal.Zero, interfaces.ErrAssetNotFound
	}

	prices, err := p.snapshot(ctx)
	if err != nil {
		return decimal.Zero, err
	}

	price, ok := prices[symbol]
	if !ok || !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %s", interfaces.ErrAssetNotFound, symbol)
	}
	return price, nil
}

func (p *HTTPProvider) snapshot(ctx context.Context) (map[string]decimal.Decimal, error) {
	p.mu.RLock()
	if p.prices != nil && time.Since(p.fetched) < p.ttl {
		prices := p.prices
		p.mu.RUnlock()
		return prices, nil
	}
	p.mu.RUnlock()

	prices, err := p.fetch(ctx)
	if err != nil {
		p.logger.WarnContext(ctx, "Market price fetch failed",
			slog.String("url", p.url),
			slog.String("error", err.Error()))
		return nil, fmt.Errorf("%w: %v", interfaces.ErrMarketDataUnavailable, err)
	}

	p.mu.Lock()
	p.prices = prices
	p.fetched = time.Now()
	p.mu.Unlock()

	return prices, nil
}

func (p *HTTPProvider) fetch(ctx context.Context) (map[string]decimal.Decimal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.cli.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("market prices http %d", resp.StatusCode)
	}

	var raw map[string]decimal.Decimal
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode market prices: %w", err)
	}

	prices := make(map[string]decimal.Decimal, len(raw))
	for symbol, price := range raw {
		prices[strings.ToUpper(strings.TrimSpace(symbol))] = price
	}
	return prices, nil
}
