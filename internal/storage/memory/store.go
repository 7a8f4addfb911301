package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	interfaces "github.com/mandycs/CaixaBankCodingChallenge/internal/interfaces"
	"github.com/mandycs/CaixaBankCodingChallenge/internal/models"
	"github.com/shopspring/decimal"
)

type holdingKey struct {
	accountID string
	symbol    string
}

// MemoryLedgerStore keeps every aggregate in maps guarded by one RWMutex.
// Units of work stage their writes and apply them on commit, so a failed
// unit of work leaves nothing behind.
type MemoryLedgerStore struct {
	mu            sync.RWMutex
	accounts      map[string]models.Account
	holdings      map[holdingKey]models.AssetHolding
	transactions  []models.Transaction // append-only, in commit order
	txIDs         map[string]struct{}
	subscriptions map[string]models.Subscription
	enrollments   map[string]models.AutoInvestEnrollment
	alerts        map[string]models.AlertConfig
	expenses      map[string]models.RecurringExpense
}

func NewMemoryLedgerStore() *MemoryLedgerStore {
	return &MemoryLedgerStore{
		accounts:      make(map[string]models.Account),
		holdings:      make(map[holdingKey]models.AssetHolding),
		transactions:  make([]models.Transaction, 0),
		txIDs:         make(map[string]struct{}),
		subscriptions: make(map[string]models.Subscription),
		enrollments:   make(map[string]models.AutoInvestEnrollment),
		alerts:        make(map[string]models.AlertConfig),
		expenses:      make(map[string]models.RecurringExpense),
	}
}

// RunInTx holds the write lock for the whole unit of work.
func (m *MemoryLedgerStore) RunInTx(ctx context.Context, fn func(tx interfaces.LedgerTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memoryTx{
		store:         m,
		accounts:      make(map[string]models.Account),
		holdings:      make(map[holdingKey]models.AssetHolding),
		subscriptions: make(map[string]models.Subscription),
		txIDs:         make(map[string]struct{}),
	}
	if err := fn(tx); err != nil {
		return err
	}

	for id, a := range tx.accounts {
		m.accounts[id] = a
	}
	for k, h := range tx.holdings {
		m.holdings[k] = h
	}
	for id, s := range tx.subscriptions {
		m.subscriptions[id] = s
	}
	for _, t := range tx.transactions {
		m.txIDs[t.ID] = struct{}{}
	}
	m.transactions = append(m.transactions, tx.transactions...)
	return nil
}

func (m *MemoryLedgerStore) CreateAccount(ctx context.Context, account models.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.accounts[account.ID]; exists {
		return fmt.Errorf("%w: account %s", interfaces.ErrDuplicate, account.ID)
	}
	m.accounts[account.ID] = account
	return nil
}

func (m *MemoryLedgerStore) GetAccount(ctx context.Context, id string) (models.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	account, exists := m.accounts[id]
	if !exists {
		return models.Account{}, fmt.Errorf("%w: account %s", interfaces.ErrNotFound, id)
	}
	return account, nil
}

// GetTransactions returns every transaction the account takes part in, oldest first.
func (m *MemoryLedgerStore) GetTransactions(ctx context.Context, accountID string) ([]models.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []models.Transaction
	for _, t := range m.transactions {
		if t.SourceAccount == accountID || t.TargetAccount == accountID {
			result = append(result, t)
		}
	}
	sortByTime(result)
	return result, nil
}

func (m *MemoryLedgerStore) SpendHistory(ctx context.Context, accountID string, from, to time.Time) ([]models.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return spendHistory(m.transactions, nil, accountID, from, to), nil
}

func (m *MemoryLedgerStore) GetHoldings(ctx context.Context, accountID string) ([]models.AssetHolding, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []models.AssetHolding
	for k, h := range m.holdings {
		if k.accountID == accountID {
			result = append(result, h)
		}
	}
	slices.SortFunc(result, func(a, b models.AssetHolding) int {
		if a.Symbol < b.Symbol {
			return -1
		}
		if a.Symbol > b.Symbol {
			return 1
		}
		return 0
	})
	return result, nil
}

func (m *MemoryLedgerStore) SaveSubscription(ctx context.Context, sub models.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions[sub.ID] = sub
	return nil
}

func (m *MemoryLedgerStore) GetSubscription(ctx context.Context, id string) (models.Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sub, exists := m.subscriptions[id]
	if !exists {
		return models.Subscription{}, fmt.Errorf("%w: subscription %s", interfaces.ErrNotFound, id)
	}
	return sub, nil
}

func (m *MemoryLedgerStore) ActiveSubscriptions(ctx context.Context) ([]models.Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []models.Subscription
	for _, s := range m.subscriptions {
		if s.IsActive {
			result = append(result, s)
		}
	}
	slices.SortFunc(result, func(a, b models.Subscription) int { return compareStrings(a.ID, b.ID) })
	return result, nil
}

func (m *MemoryLedgerStore) SaveEnrollment(ctx context.Context, e models.AutoInvestEnrollment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enrollments[e.AccountID] = e
	return nil
}

func (m *MemoryLedgerStore) GetEnrollment(ctx context.Context, accountID string) (models.AutoInvestEnrollment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.enrollments[accountID]
	if !ok {
		return models.AutoInvestEnrollment{}, fmt.Errorf("%w: enrollment %s", interfaces.ErrNotFound, accountID)
	}
	return e, nil
}

func (m *MemoryLedgerStore) ActiveEnrollments(ctx context.Context) ([]models.AutoInvestEnrollment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []models.AutoInvestEnrollment
	for _, e := range m.enrollments {
		if e.IsActive {
			result = append(result, e)
		}
	}
	slices.SortFunc(result, func(a, b models.AutoInvestEnrollment) int { return compareStrings(a.AccountID, b.AccountID) })
	return result, nil
}

func (m *MemoryLedgerStore) SaveAlert(ctx context.Context, alert models.AlertConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts[alert.ID] = alert
	return nil
}

func (m *MemoryLedgerStore) AlertsByAccount(ctx context.Context, accountID string) ([]models.AlertConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []models.AlertConfig
	for _, a := range m.alerts {
		if a.AccountID == accountID {
			result = append(result, a)
		}
	}
	slices.SortFunc(result, func(a, b models.AlertConfig) int { return compareStrings(a.ID, b.ID) })
	return result, nil
}

// DeleteAlert removes an alert owned by accountID.
func (m *MemoryLedgerStore) DeleteAlert(ctx context.Context, accountID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.alerts[id]
	if !ok || a.AccountID != accountID {
		return fmt.Errorf("%w: alert %s", interfaces.ErrNotFound, id)
	}
	delete(m.alerts, id)
	return nil
}

func (m *MemoryLedgerStore) SaveExpense(ctx context.Context, expense models.RecurringExpense) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expenses[expense.ID] = expense
	return nil
}

func (m *MemoryLedgerStore) GetExpense(ctx context.Context, id string) (models.RecurringExpense, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.expenses[id]
	if !ok {
		return models.RecurringExpense{}, fmt.Errorf("%w: expense %s", interfaces.ErrNotFound, id)
	}
	return e, nil
}

// DeleteExpense removes an expense owned by accountID.
func (m *MemoryLedgerStore) DeleteExpense(ctx context.Context, accountID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.expenses[id]
	if !ok || e.AccountID != accountID {
		return fmt.Errorf("%w: expense %s", interfaces.ErrNotFound, id)
	}
	delete(m.expenses, id)
	return nil
}

func (m *MemoryLedgerStore) ExpensesByAccount(ctx context.Context, accountID string) ([]models.RecurringExpense, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []models.RecurringExpense
	for _, e := range m.expenses {
		if e.AccountID == accountID {
			result = append(result, e)
		}
	}
	slices.SortFunc(result, func(a, b models.RecurringExpense) int { return compareStrings(a.ID, b.ID) })
	return result, nil
}

// memoryTx reads through its staged writes to the committed state. The store
// write lock is held for its whole lifetime.
type memoryTx struct {
	store         *MemoryLedgerStore
	accounts      map[string]models.Account
	holdings      map[holdingKey]models.AssetHolding
	subscriptions map[string]models.Subscription
	transactions  []models.Transaction
	txIDs         map[string]struct{}
}

func (t *memoryTx) GetAccount(ctx context.Context, id string) (models.Account, error) {
	if a, ok := t.accounts[id]; ok {
		return a, nil
	}
	a, ok := t.store.accounts[id]
	if !ok {
		return models.Account{}, fmt.Errorf("%w: account %s", interfaces.ErrNotFound, id)
	}
	return a, nil
}

func (t *memoryTx) UpdateBalance(ctx context.Context, id string, balance decimal.Decimal) error {
	a, err := t.GetAccount(ctx, id)
	if err != nil {
		return err
	}
	a.Balance = balance
	t.accounts[id] = a
	return nil
}

func (t *memoryTx) GetHolding(ctx context.Context, accountID, symbol string) (models.AssetHolding, error) {
	k := holdingKey{accountID, symbol}
	if h, ok := t.holdings[k]; ok {
		return h, nil
	}
	h, ok := t.store.holdings[k]
	if !ok {
		return models.AssetHolding{}, fmt.Errorf("%w: holding %s/%s", interfaces.ErrNotFound, accountID, symbol)
	}
	return h, nil
}

func (t *memoryTx) SaveHolding(ctx context.Context, holding models.AssetHolding) error {
	t.holdings[holdingKey{holding.AccountID, holding.Symbol}] = holding
	return nil
}

func (t *memoryTx) AppendTransaction(ctx context.Context, tx models.Transaction) error {
	_, committed := t.store.txIDs[tx.ID]
	_, staged := t.txIDs[tx.ID]
	if committed || staged {
		return fmt.Errorf("%w: transaction %s", interfaces.ErrDuplicate, tx.ID)
	}
	t.txIDs[tx.ID] = struct{}{}
	t.transactions = append(t.transactions, tx)
	return nil
}

func (t *memoryTx) SpendHistory(ctx context.Context, accountID string, from, to time.Time) ([]models.Transaction, error) {
	return spendHistory(t.store.transactions, t.transactions, accountID, from, to), nil
}

func (t *memoryTx) GetSubscription(ctx context.Context, id string) (models.Subscription, error) {
	if s, ok := t.subscriptions[id]; ok {
		return s, nil
	}
	s, ok := t.store.subscriptions[id]
	if !ok {
		return models.Subscription{}, fmt.Errorf("%w: subscription %s", interfaces.ErrNotFound, id)
	}
	return s, nil
}

func (t *memoryTx) SaveSubscription(ctx context.Context, sub models.Subscription) error {
	t.subscriptions[sub.ID] = sub
	return nil
}

func spendHistory(committed, staged []models.Transaction, accountID string, from, to time.Time) []models.Transaction {
	var result []models.Transaction
	for _, list := range [][]models.Transaction{committed, staged} {
		for _, t := range list {
			if t.SourceAccount != accountID || !t.IsSpend() {
				continue
			}
			if t.Timestamp.Before(from) || !t.Timestamp.Before(to) {
				continue
			}
			result = append(result, t)
		}
	}
	sortByTime(result)
	return result
}

func sortByTime(txs []models.Transaction) {
	slices.SortStableFunc(txs, func(a, b models.Transaction) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
}

func compareStrings(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// Compile-time checks
var (
	_ interfaces.LedgerStore        = (*MemoryLedgerStore)(nil)
	_ interfaces.TransactionHistory = (*MemoryLedgerStore)(nil)
	_ interfaces.SubscriptionStore  = (*MemoryLedgerStore)(nil)
	_ interfaces.AutoInvestStore    = (*MemoryLedgerStore)(nil)
	_ interfaces.AlertStore         = (*MemoryLedgerStore)(nil)
	_ interfaces.ExpenseStore       = (*MemoryLedgerStore)(nil)
	_ interfaces.LedgerTx           = (*memoryTx)(nil)
)
