package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/mandycs/CaixaBankCodingChallenge/internal/ledger"
	"github.com/mandycs/CaixaBankCodingChallenge/internal/models"
	"github.com/mandycs/CaixaBankCodingChallenge/internal/models/events"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	key   string
	event any
}

type fakePublisher struct {
	got []published
	err error
}

func (f *fakePublisher) Publish(ctx context.Context, key string, event any) error {
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("publish without deadline")
	}
	f.got = append(f.got, published{key, event})
	return f.err
}

func TestNewMessage(t *testing.T) {
	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	msg, err := newMessage("a1", events.TransactionPosted{
		TransactionID: "t1",
		Type:          "DEPOSIT",
		SourceAccount: "a1",
		Amount:        decimal.RequireFromString("12.50"),
		OccurredAt:    at,
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("a1"), msg.Key)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "t1", decoded["transaction_id"])
	assert.Equal(t, "12.5", decoded["amount"])
	assert.NotContains(t, decoded, "target_account")

	_, err = newMessage("a1", make(chan int))
	assert.Error(t, err)
}

func TestPostingHook(t *testing.T) {
	flag := true
	tx := models.Transaction{
		ID:            "t1",
		Type:          models.TypeWithdrawal,
		Amount:        decimal.NewFromInt(40),
		SourceAccount: "a1",
		Category:      "travel",
		FraudFlag:     &flag,
	}

	pub := &fakePublisher{}
	PostingHook(pub, nil)(context.Background(), ledger.Posting{Transaction: tx})

	require.Len(t, pub.got, 1)
	assert.Equal(t, "a1", pub.got[0].key)
	event, ok := pub.got[0].event.(events.TransactionPosted)
	require.True(t, ok)
	assert.Equal(t, "WITHDRAWAL", event.Type)
	assert.True(t, event.FraudFlag)

	failing := &fakePublisher{err: errors.New("broker down")}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	assert.NotPanics(t, func() {
		PostingHook(failing, logger)(context.Background(), ledger.Posting{Transaction: tx})
	})
}
