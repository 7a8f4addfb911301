package accrual

import (
	"context"
	"testing"
	"time"

	"github.com/mandycs/CaixaBankCodingChallenge/internal/ledger"
	"github.com/mandycs/CaixaBankCodingChallenge/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribe_ChargesFirstPeriod(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.account(t, "a1", "50")

	sub, err := f.engine.Subscribe(ctx, "a1", dec("20"), 60)
	require.NoError(t, err)
	assert.True(t, sub.IsActive)
	assert.Equal(t, start, sub.LastExecuted)
	assert.True(t, dec("30").Equal(f.balance(t, "a1")))

	stored, err := f.store.GetSubscription(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, sub.ID, stored.ID)

	// not due again until a full interval has passed
	report, err := f.engine.RunSubscriptions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.NotDue)

	f.now = start.Add(time.Minute)
	report, err = f.engine.RunSubscriptions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Charged)
	assert.True(t, dec("10").Equal(f.balance(t, "a1")))
}

func TestSubscribe_NotStoredWhenFirstChargeFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.account(t, "a1", "5")

	_, err := f.engine.Subscribe(ctx, "a1", dec("20"), 60)
	require.ErrorIs(t, err, ledger.ErrInsufficientFunds)

	subs, err := f.store.ActiveSubscriptions(ctx)
	require.NoError(t, err)
	assert.Empty(t, subs)
}

func TestSubscribe_Validation(t *testing.T) {
	f := newFixture(t)
	f.account(t, "a1", "100")

	_, err := f.engine.Subscribe(context.Background(), "a1", dec("0"), 60)
	assert.ErrorIs(t, err, ErrInvalidSubscription)
	_, err = f.engine.Subscribe(context.Background(), "a1", dec("5"), 0)
	assert.ErrorIs(t, err, ErrInvalidSubscription)
}

func TestSubscribe_OversizedIntervalNeverRecharges(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.account(t, "a1", "100")

	_, err := f.engine.Subscribe(ctx, "a1", dec("10"), 10_000_000_000)
	require.ErrorIs(t, err, ErrInvalidSubscription)
	assert.True(t, dec("100").Equal(f.balance(t, "a1")))

	// a stored row with the same interval must not be charged on every tick
	require.NoError(t, f.store.SaveSubscription(ctx, models.Subscription{
		ID:              "huge",
		AccountID:       "a1",
		Amount:          dec("10"),
		IntervalSeconds: 10_000_000_000,
		LastExecuted:    start,
		IsActive:        true,
	}))
	for range 2 {
		f.now = f.now.Add(time.Hour)
		report, err := f.engine.RunSubscriptions(ctx)
		require.NoError(t, err)
		assert.Zero(t, report.Charged)
		assert.Equal(t, 1, report.NotDue)
	}
	assert.True(t, dec("100").Equal(f.balance(t, "a1")))
}

func TestEnableAutoInvest(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.account(t, "a1", "100")

	require.NoError(t, f.engine.EnableAutoInvest(ctx, "a1"))

	enrollments, err := f.store.ActiveEnrollments(ctx)
	require.NoError(t, err)
	require.Len(t, enrollments, 1)
	assert.Equal(t, "a1", enrollments[0].AccountID)
}

func TestEnableAutoInvest_UnknownAccount(t *testing.T) {
	f := newFixture(t)

	err := f.engine.EnableAutoInvest(context.Background(), "ghost")
	require.ErrorIs(t, err, ledger.ErrAccountNotFound)

	enrollments, err := f.store.ActiveEnrollments(context.Background())
	require.NoError(t, err)
	assert.Empty(t, enrollments)
}

func TestEnableAutoInvest_KeepsLastExecuted(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.account(t, "a1", "100")

	stamp := start.Add(-time.Hour)
	require.NoError(t, f.store.SaveEnrollment(ctx, models.AutoInvestEnrollment{AccountID: "a1", LastExecuted: stamp}))

	require.NoError(t, f.engine.EnableAutoInvest(ctx, "a1"))

	got, err := f.store.GetEnrollment(ctx, "a1")
	require.NoError(t, err)
	assert.True(t, got.IsActive)
	assert.Equal(t, stamp, got.LastExecuted)
}
