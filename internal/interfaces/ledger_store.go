package interfaces

import (
	"context"
	"errors"
	"time"

	"github.com/mandycs/CaixaBankCodingChallenge/internal/models"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate entry")
)

// LedgerTx is the write side of one unit of work. Everything done through it
// is committed together or not at all.
type LedgerTx interface {
	GetAccount(ctx context.Context, id string) (models.Account, error)
	UpdateBalance(ctx context.Context, id string, balance decimal.Decimal) error
	GetHolding(ctx context.Context, accountID, symbol string) (models.AssetHolding, error)
	SaveHolding(ctx context.Context, holding models.AssetHolding) error
	AppendTransaction(ctx context.Context, tx models.Transaction) error
	SpendHistory(ctx context.Context, accountID string, from, to time.Time) ([]models.Transaction, error)
	GetSubscription(ctx context.Context, id string) (models.Subscription, error)
	SaveSubscription(ctx context.Context, sub models.Subscription) error
}

type LedgerStore interface {
	// RunInTx begins a unit of work, runs fn and commits if fn returns nil.
	// Any error rolls back every change made through the LedgerTx.
	RunInTx(ctx context.Context, fn func(tx LedgerTx) error) error

	CreateAccount(ctx context.Context, account models.Account) error
	GetAccount(ctx context.Context, id string) (models.Account, error)
	GetTransactions(ctx context.Context, accountID string) ([]models.Transaction, error)
	HoldingReader
}

type HoldingReader interface {
	GetHoldings(ctx context.Context, accountID string) ([]models.AssetHolding, error)
}

// TransactionHistory serves fraud scoring outside of a unit of work.
type TransactionHistory interface {
	SpendHistory(ctx context.Context, accountID string, from, to time.Time) ([]models.Transaction, error)
}

type SubscriptionStore interface {
	SaveSubscription(ctx context.Context, sub models.Subscription) error
	ActiveSubscriptions(ctx context.Context) ([]models.Subscription, error)
}

type AutoInvestStore interface {
	SaveEnrollment(ctx context.Context, e models.AutoInvestEnrollment) error
	GetEnrollment(ctx context.Context, accountID string) (models.AutoInvestEnrollment, error)
	ActiveEnrollments(ctx context.Context) ([]models.AutoInvestEnrollment, error)
}

type AlertStore interface {
	SaveAlert(ctx context.Context, alert models.AlertConfig) error
	AlertsByAccount(ctx context.Context, accountID string) ([]models.AlertConfig, error)
	// DeleteAlert returns ErrNotFound unless the alert belongs to accountID.
	DeleteAlert(ctx context.Context, accountID, id string) error
}

type ExpenseStore interface {
	SaveExpense(ctx context.Context, expense models.RecurringExpense) error
	ExpensesByAccount(ctx context.Context, accountID string) ([]models.RecurringExpense, error)
	GetExpense(ctx context.Context, id string) (models.RecurringExpense, error)
	DeleteExpense(ctx context.Context, accountID, id string) error
}
