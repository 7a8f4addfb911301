package alerts

import (
	"context"
	"testing"

	"github.com/mandycs/CaixaBankCodingChallenge/internal/models"
	"github.com/mandycs/CaixaBankCodingChallenge/internal/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister(t *testing.T) {
	ctx := context.Background()
	store := memory.NewMemoryLedgerStore()

	saved, err := Register(ctx, store, models.AlertConfig{
		AccountID:            "a1",
		Kind:                 models.AlertBalanceDrop,
		BalanceDropThreshold: dec("50"),
		TargetAmount:         dec("999"),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, saved.ID)
	assert.True(t, saved.TargetAmount.IsZero())

	configs, err := store.AlertsByAccount(ctx, "a1")
	require.NoError(t, err)
	require.Len(t, configs, 1)
	assert.Equal(t, saved.ID, configs[0].ID)
}

func TestRegister_Invalid(t *testing.T) {
	tests := []struct {
		name string
		cfg  models.AlertConfig
	}{
		{name: "no account", cfg: models.AlertConfig{Kind: models.AlertBalanceDrop, BalanceDropThreshold: dec("1")}},
		{name: "unknown kind", cfg: models.AlertConfig{AccountID: "a1", Kind: "SOMETHING"}},
		{name: "zero target", cfg: models.AlertConfig{AccountID: "a1", Kind: models.AlertAmountReached}},
		{name: "negative threshold", cfg: models.AlertConfig{AccountID: "a1", Kind: models.AlertAmountReached, TargetAmount: dec("10"), AlertThreshold: dec("-1")}},
		{name: "zero drop", cfg: models.AlertConfig{AccountID: "a1", Kind: models.AlertBalanceDrop}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Register(context.Background(), memory.NewMemoryLedgerStore(), tt.cfg)
			assert.ErrorIs(t, err, ErrInvalidAlert)
		})
	}
}
