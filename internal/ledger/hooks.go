package ledger

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mandycs/CaixaBankCodingChallenge/internal/fraud"
	"github.com/mandycs/CaixaBankCodingChallenge/internal/models"
)

// Posting describes a committed ledger mutation.
type Posting struct {
	Transaction models.Transaction
	Accounts    []models.Account // post-commit snapshots of every account touched
	Holding     *models.AssetHolding
	Fraud       *fraud.Decision
}

// Hook observes committed postings. Hooks cannot fail a posting; anything
// they need to report goes to their own logs.
type Hook func(ctx context.Context, p Posting)

func (l *Ledger) runHooks(ctx context.Context, p Posting) {
	for i, hook := range l.hooks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					l.logger.ErrorContext(ctx, "Post-commit hook panicked",
						slog.Int("hook", i),
						slog.String("transaction_id", p.Transaction.ID),
						slog.String("panic", fmt.Sprint(r)))
				}
			}()
			hook(ctx, p)
		}()
	}
}
