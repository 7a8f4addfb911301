package kafka

import (
	"context"
	"log/slog"
	"time"

	interfaces "github.com/mandycs/CaixaBankCodingChallenge/internal/interfaces"
	"github.com/mandycs/CaixaBankCodingChallenge/internal/ledger"
	"github.com/mandycs/CaixaBankCodingChallenge/internal/models/events"
)

const publishTimeout = 5 * time.Second

// PostingHook publishes a TransactionPosted event for every committed
// posting. Publish failures are logged; the posting itself is already durable.
func PostingHook(publisher interfaces.EventPublisher, logger *slog.Logger) ledger.Hook {
	if logger == nil {
		logger = slog.Default()
	}

	return func(ctx context.Context, p ledger.Posting) {
		tx := p.Transaction
		event := events.TransactionPosted{
			TransactionID: tx.ID,
			Type:          string(tx.Type),
			SourceAccount: tx.SourceAccount,
			TargetAccount: tx.TargetAccount,
			Amount:        tx.Amount,
			Symbol:        tx.Symbol,
			FraudFlag:     tx.Flagged(),
			OccurredAt:    tx.Timestamp,
		}

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
		defer cancel()

		if err := publisher.Publish(ctx, tx.SourceAccount, event); err != nil {
			logger.ErrorContext(ctx, "Failed to publish transaction event",
				slog.String("transaction_id", tx.ID),
				slog.String("error", err.Error()))
		}
	}
}
