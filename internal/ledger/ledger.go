package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mandycs/CaixaBankCodingChallenge/internal/fraud"
	interfaces "github.com/mandycs/CaixaBankCodingChallenge/internal/interfaces"
	"github.com/mandycs/CaixaBankCodingChallenge/internal/models"
	"github.com/shopspring/decimal"
)

// Ledger is the only writer of balances and holdings.
// Every mutation runs under the locks of the accounts it touches and inside a
// single unit of work of the store.
type Ledger struct {
	store  interfaces.LedgerStore
	scorer FraudScorer
	hooks  []Hook
	logger *slog.Logger
	now    func() time.Time

	muMap map[string]*sync.Mutex // one mutex per account
	mapMu sync.Mutex             // protects muMap itself
}

func NewLedger(store interfaces.LedgerStore, opts ...Option) *Ledger {
	l := &Ledger{
		store:  store,
		logger: slog.Default(),
		now:    time.Now,
		muMap:  make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Ledger) getAccountLock(accountID string) *sync.Mutex {
	l.mapMu.Lock()
	defer l.mapMu.Unlock()

	if _, exists := l.muMap[accountID]; !exists {
		l.muMap[accountID] = &sync.Mutex{}
	}
	return l.muMap[accountID]
}

// lockAccounts locks the given accounts in ascending ID order so that two
// postings over the same pair can never wait on each other.
func (l *Ledger) lockAccounts(ids ...string) (unlock func()) {
	ordered := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" {
			ordered = append(ordered, id)
		}
	}
	slices.Sort(ordered)
	ordered = slices.Compact(ordered)

	locks := make([]*sync.Mutex, len(ordered))
	for i, id := range ordered {
		locks[i] = l.getAccountLock(id)
		locks[i].Lock()
	}
	return func() {
		for i := len(locks) - 1; i >= 0; i-- {
			locks[i].Unlock()
		}
	}
}

// OpenAccount creates an empty account for an owner.
func (l *Ledger) OpenAccount(ctx context.Context, ownerID string) (models.Account, error) {
	account := models.Account{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Balance:   decimal.Zero,
		CreatedAt: l.now().UTC(),
	}
	if err := l.store.CreateAccount(ctx, account); err != nil {
		return models.Account{}, fmt.Errorf("failed to create account: %w", err)
	}
	l.logger.InfoContext(ctx, "Account opened",
		slog.String("account_id", account.ID),
		slog.String("owner_id", ownerID))
	return account, nil
}

// Post applies a signed cash delta to an account and appends the matching
// transaction. Deposits take a positive delta; withdrawals, subscriptions and
// transfers a negative one. Transfers credit the counterparty with the same
// amount inside the same unit of work.
func (l *Ledger) Post(ctx context.Context, accountID string, delta decimal.Decimal, txType models.TransactionType, opts ...PostOption) (models.Transaction, error) {
	var o postOptions
	for _, opt := range opts {
		opt(&o)
	}

	if err := validatePost(accountID, delta, txType, o); err != nil {
		return models.Transaction{}, err
	}

	at := o.timestamp
	if at.IsZero() {
		at = l.now()
	}

	tx := models.Transaction{
		ID:            uuid.NewString(),
		Type:          txType,
		Amount:        delta.Abs(),
		Timestamp:     at.UTC(),
		SourceAccount: accountID,
		TargetAccount: o.counterparty,
	}
	if delta.IsNegative() {
		tx.Category = fraud.NormalizeCategory(o.category)
	}

	var (
		touched  []models.Account
		decision *fraud.Decision
	)

	unlock := l.lockAccounts(accountID, o.counterparty)
	err := l.store.RunInTx(ctx, func(utx interfaces.LedgerTx) error {
		account, err := l.loadAccount(ctx, utx, accountID, ErrAccountNotFound)
		if err != nil {
			return err
		}

		var target models.Account
		if txType == models.TypeTransfer {
			target, err = l.loadAccount(ctx, utx, o.counterparty, ErrTargetAccountNotFound)
			if err != nil {
				return err
			}
		}

		newBalance := account.Balance.Add(delta)
		if newBalance.IsNegative() {
			return fmt.Errorf("%w: balance %s, debit %s", ErrInsufficientFunds, account.Balance, tx.Amount)
		}

		if tx.IsSpend() && l.scorer != nil {
			history, err := utx.SpendHistory(ctx, accountID, tx.Timestamp.Add(-l.scorer.Lookback()), tx.Timestamp)
			if err != nil {
				return fmt.Errorf("failed to load spend history: %w", err)
			}
			d := l.scorer.Evaluate(fraud.Candidate{
				AccountID:  accountID,
				Amount:     tx.Amount,
				Category:   tx.Category,
				OccurredAt: tx.Timestamp,
			}, history)
			flag := d.Fraud
			tx.FraudFlag = &flag
			decision = &d
		}

		if err := utx.UpdateBalance(ctx, accountID, newBalance); err != nil {
			return fmt.Errorf("failed to update balance: %w", err)
		}
		account.Balance = newBalance
		touched = []models.Account{account}

		if txType == models.TypeTransfer {
			credited := target.Balance.Add(tx.Amount)
			if err := utx.UpdateBalance(ctx, target.ID, credited); err != nil {
				return fmt.Errorf("failed to update target balance: %w", err)
			}
			target.Balance = credited
			touched = append(touched, target)
		}

		if err := utx.AppendTransaction(ctx, tx); err != nil {
			return fmt.Errorf("failed to append transaction: %w", err)
		}

		for _, hook := range o.txHooks {
			if err := hook(ctx, utx, tx); err != nil {
				return err
			}
		}
		return nil
	})
	unlock()

	if err != nil {
		l.logger.WarnContext(ctx, "Posting rejected",
			slog.String("account_id", accountID),
			slog.String("type", string(txType)),
			slog.String("delta", delta.String()),
			slog.String("error", err.Error()))
		return models.Transaction{}, err
	}

	l.logger.InfoContext(ctx, "Posting committed",
		slog.String("transaction_id", tx.ID),
		slog.String("account_id", accountID),
		slog.String("type", string(txType)),
		slog.String("amount", tx.Amount.String()))

	l.runHooks(ctx, Posting{Transaction: tx, Accounts: touched, Fraud: decision})
	return tx, nil
}

// Transfer moves amount from one account to another.
func (l *Ledger) Transfer(ctx context.Context, fromID, toID string, amount decimal.Decimal, opts ...PostOption) (models.Transaction, error) {
	if !amount.IsPositive() {
		return models.Transaction{}, fmt.Errorf("%w: transfer amount must be positive", ErrInvalidAmount)
	}
	opts = append(opts, WithCounterparty(toID))
	return l.Post(ctx, fromID, amount.Neg(), models.TypeTransfer, opts...)
}

func validatePost(accountID string, delta decimal.Decimal, txType models.TransactionType, o postOptions) error {
	if accountID == "" {
		return ErrAccountNotFound
	}
	if delta.IsZero() {
		return fmt.Errorf("%w: delta must be non-zero", ErrInvalidAmount)
	}

	switch txType {
	case models.TypeDeposit:
		if delta.IsNegative() {
			return fmt.Errorf("%w: deposits must be positive", ErrInvalidAmount)
		}
	case models.TypeWithdrawal, models.TypeSubscription, models.TypeTransfer:
		if delta.IsPositive() {
			return fmt.Errorf("%w: %s must debit the account", ErrInvalidAmount, txType)
		}
	case models.TypeAssetPurchase, models.TypeAssetSale:
		return fmt.Errorf("%w: %s is posted through Trade", ErrInvalidTransactionType, txType)
	default:
		return fmt.Errorf("%w: %q", ErrInvalidTransactionType, txType)
	}

	if txType == models.TypeTransfer {
		if o.counterparty == "" {
			return fmt.Errorf("%w: transfer has no counterparty", ErrTargetAccountNotFound)
		}
		if o.counterparty == accountID {
			return ErrSameAccount
		}
	} else if o.counterparty != "" {
		return fmt.Errorf("%w: counterparty is only valid for transfers", ErrInvalidTransactionType)
	}
	return nil
}

func (l *Ledger) loadAccount(ctx context.Context, utx interfaces.LedgerTx, id string, notFound error) (models.Account, error) {
	account, err := utx.GetAccount(ctx, id)
	if errors.Is(err, interfaces.ErrNotFound) {
		return models.Account{}, fmt.Errorf("%w: %s", notFound, id)
	}
	if err != nil {
		return models.Account{}, fmt.Errorf("failed to load account %s: %w", id, err)
	}
	return account, nil
}

func (l *Ledger) Account(ctx context.Context, accountID string) (models.Account, error) {
	account, err := l.store.GetAccount(ctx, accountID)
	if errors.Is(err, interfaces.ErrNotFound) {
		return models.Account{}, fmt.Errorf("%w: %s", ErrAccountNotFound, accountID)
	}
	return account, err
}

func (l *Ledger) Balance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	account, err := l.Account(ctx, accountID)
	if err != nil {
		return decimal.Zero, err
	}
	return account.Balance, nil
}

// Holdings returns the account's positions with a non-zero quantity.
func (l *Ledger) Holdings(ctx context.Context, accountID string) ([]models.AssetHolding, error) {
	holdings, err := l.store.GetHoldings(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(holdings, func(h models.AssetHolding) bool {
		return h.Quantity.IsZero()
	}), nil
}

func (l *Ledger) Transactions(ctx context.Context, accountID string) ([]models.Transaction, error) {
	return l.store.GetTransactions(ctx, accountID)
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
