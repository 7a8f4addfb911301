package alerts

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	interfaces "github.com/mandycs/CaixaBankCodingChallenge/internal/interfaces"
	"github.com/mandycs/CaixaBankCodingChallenge/internal/models"
	"github.com/shopspring/decimal"
)

var ErrInvalidAlert = errors.New("invalid alert")

// Register validates cfg, assigns it an ID and stores it.
func Register(ctx context.Context, store interfaces.AlertStore, cfg models.AlertConfig) (models.AlertConfig, error) {
	if cfg.AccountID == "" {
		return models.AlertConfig{}, fmt.Errorf("%w: account is required", ErrInvalidAlert)
	}

	switch cfg.Kind {
	case models.AlertAmountReached:
		if !cfg.TargetAmount.IsPositive() || cfg.AlertThreshold.IsNegative() {
			return models.AlertConfig{}, fmt.Errorf("%w: target must be positive and threshold not negative", ErrInvalidAlert)
		}
		cfg.BalanceDropThreshold = decimal.Zero
	case models.AlertBalanceDrop:
		if !cfg.BalanceDropThreshold.IsPositive() {
			return models.AlertConfig{}, fmt.Errorf("%w: drop threshold must be positive", ErrInvalidAlert)
		}
		cfg.TargetAmount = decimal.Zero
		cfg.AlertThreshold = decimal.Zero
	default:
		return models.AlertConfig{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidAlert, cfg.Kind)
	}

	cfg.ID = uuid.NewString()
	if err := store.SaveAlert(ctx, cfg); err != nil {
		return models.AlertConfig{}, fmt.Errorf("failed to save alert: %w", err)
	}
	return cfg, nil
}
