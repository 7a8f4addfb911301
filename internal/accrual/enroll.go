package accrual

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	interfaces "github.com/mandycs/CaixaBankCodingChallenge/internal/interfaces"
	"github.com/mandycs/CaixaBankCodingChallenge/internal/ledger"
	"github.com/mandycs/CaixaBankCodingChallenge/internal/models"
	"github.com/shopspring/decimal"
)

var ErrInvalidSubscription = errors.New("invalid subscription")

// Subscribe creates an active subscription and charges its first period
// right away. The subscription is only stored if the first charge commits.
func (e *Engine) Subscribe(ctx context.Context, accountID string, amount decimal.Decimal, intervalSeconds int64) (models.Subscription, error) {
	if !amount.IsPositive() {
		return models.Subscription{}, fmt.Errorf("%w: amount must be positive", ErrInvalidSubscription)
	}
	if intervalSeconds <= 0 {
		return models.Subscription{}, fmt.Errorf("%w: interval must be positive", ErrInvalidSubscription)
	}
	if intervalSeconds > models.MaxIntervalSeconds {
		return models.Subscription{}, fmt.Errorf("%w: interval exceeds %d seconds", ErrInvalidSubscription, models.MaxIntervalSeconds)
	}

	now := e.now().UTC()
	sub := models.Subscription{
		ID:              uuid.NewString(),
		AccountID:       accountID,
		Amount:          amount,
		IntervalSeconds: intervalSeconds,
		LastExecuted:    now,
		IsActive:        true,
	}

	store := func(ctx context.Context, utx interfaces.LedgerTx, _ models.Transaction) error {
		return utx.SaveSubscription(ctx, sub)
	}
	if _, err := e.ledger.Post(ctx, accountID, amount.Neg(), models.TypeSubscription,
		ledger.WithTimestamp(now),
		ledger.WithTxHook(store)); err != nil {
		return models.Subscription{}, err
	}

	e.logger.InfoContext(ctx, "Subscription created",
		slog.String("subscription_id", sub.ID),
		slog.String("account_id", accountID),
		slog.String("amount", amount.String()),
		slog.Int64("interval_seconds", intervalSeconds))
	return sub, nil
}

// EnableAutoInvest enrolls an account into the auto-invest job. Enabling an
// existing enrollment keeps its last run stamp.
func (e *Engine) EnableAutoInvest(ctx context.Context, accountID string) error {
	if _, err := e.ledger.Account(ctx, accountID); err != nil {
		return err
	}

	enrollment, err := e.enrollments.GetEnrollment(ctx, accountID)
	switch {
	case errors.Is(err, interfaces.ErrNotFound):
		enrollment = models.AutoInvestEnrollment{AccountID: accountID}
	case err != nil:
		return fmt.Errorf("failed to load auto-invest enrollment: %w", err)
	}
	enrollment.IsActive = true

	if err := e.enrollments.SaveEnrollment(ctx, enrollment); err != nil {
		return fmt.Errorf("failed to enable auto-invest: %w", err)
	}
	e.logger.InfoContext(ctx, "Auto-invest enabled", slog.String("account_id", accountID))
	return nil
}
