package ledger

import (
	"context"
	"log/slog"
	"time"

	"github.com/mandycs/CaixaBankCodingChallenge/internal/fraud"
	interfaces "github.com/mandycs/CaixaBankCodingChallenge/internal/interfaces"
	"github.com/mandycs/CaixaBankCodingChallenge/internal/models"
)

// FraudScorer annotates categorised debits before they are recorded.
type FraudScorer interface {
	Lookback() time.Duration
	Evaluate(c fraud.Candidate, history []models.Transaction) fraud.Decision
}

// Option configures a Ledger.
type Option func(*Ledger)

func WithFraudScorer(scorer FraudScorer) Option {
	return func(l *Ledger) { l.scorer = scorer }
}

// WithHooks appends post-commit hooks. They run in order after every
// successful Post, Transfer or Trade.
func WithHooks(hooks ...Hook) Option {
	return func(l *Ledger) { l.hooks = append(l.hooks, hooks...) }
}

func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// TxHook runs inside the posting's unit of work after the transaction has
// been appended. Returning an error aborts the whole posting.
type TxHook func(ctx context.Context, tx interfaces.LedgerTx, posted models.Transaction) error

// PostOption tunes a single Post call.
type PostOption func(*postOptions)

type postOptions struct {
	counterparty string
	category     string
	timestamp    time.Time
	txHooks      []TxHook
}

// WithCounterparty names the credited account of a transfer.
func WithCounterparty(accountID string) PostOption {
	return func(o *postOptions) { o.counterparty = accountID }
}

// WithCategory marks a debit as a spend in the given category, which routes it
// through fraud scoring.
func WithCategory(category string) PostOption {
	return func(o *postOptions) { o.category = category }
}

func WithTimestamp(t time.Time) PostOption {
	return func(o *postOptions) { o.timestamp = t }
}

func WithTxHook(hook TxHook) PostOption {
	return func(o *postOptions) { o.txHooks = append(o.txHooks, hook) }
}
