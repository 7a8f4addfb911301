package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	interfaces "github.com/mandycs/CaixaBankCodingChallenge/internal/interfaces"
	"github.com/mandycs/CaixaBankCodingChallenge/internal/models"
	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

// Store is the database/sql backed ledger store. The same queries run on
// Postgres and SQLite; Dialect covers the differences.
type Store struct {
	db      *sql.DB
	dialect Dialect
}

func New(db *sql.DB, dialect Dialect) *Store {
	return &Store{
		db:      db,
		dialect: dialect,
	}
}

// OpenPostgres connects with lib/pq and applies the schema.
func OpenPostgres(ctx context.Context, url string) (*Store, error) {
	return open(ctx, Postgres, url)
}

// OpenSQLite opens a database file and applies the schema. SQLite allows a
// single writer, so the pool is capped at one connection.
func OpenSQLite(ctx context.Context, path string) (*Store, error) {
	return open(ctx, SQLite, path+"?_busy_timeout=5000&_journal_mode=WAL&_fk=1")
}

func open(ctx context.Context, dialect Dialect, dsn string) (*Store, error) {
	db, err := sql.Open(dialect.driverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", dialect, err)
	}
	if dialect == SQLite {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach %s: %w", dialect, err)
	}

	s := New(db, dialect)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// RunInTx wraps fn in a database transaction. Any error from fn, or a failed
// commit, rolls everything back.
func (s *Store) RunInTx(ctx context.Context, fn func(tx interfaces.LedgerTx) error) (err error) {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			dbTx.Rollback()
		}
	}()

	err = fn(&sqlTx{tx: dbTx, dialect: s.dialect})
	if err != nil {
		return err
	}

	if err = dbTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *Store) CreateAccount(ctx context.Context, account models.Account) error {
	const query = `INSERT INTO accounts (id, owner_id, balance, created_at) VALUES (?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, s.dialect.rebind(query), account.ID, account.OwnerID, account.Balance, account.CreatedAt.UTC())
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: account %s", interfaces.ErrDuplicate, account.ID)
	}
	return err
}

func (s *Store) GetAccount(ctx context.Context, id string) (models.Account, error) {
	return getAccount(ctx, s.db, s.dialect, id, false)
}

func (s *Store) GetTransactions(ctx context.Context, accountID string) ([]models.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions
	WHERE source_account = ? OR target_account = ?
	ORDER BY occurred_at, id`

	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(query), accountID, accountID)
	if err != nil {
		return nil, err
	}
	return collectTransactions(rows)
}

func (s *Store) SpendHistory(ctx context.Context, accountID string, from, to time.Time) ([]models.Transaction, error) {
	return spendHistory(ctx, s.db, s.dialect, accountID, from, to)
}

func (s *Store) GetHoldings(ctx context.Context, accountID string) ([]models.AssetHolding, error) {
	const query = `SELECT account_id, symbol, quantity, average_cost, updated_at
	FROM asset_holdings WHERE account_id = ? ORDER BY symbol`

	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(query), accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var holdings []models.AssetHolding
	for rows.Next() {
		h, err := scanHolding(rows)
		if err != nil {
			return nil, err
		}
		holdings = append(holdings, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return holdings, nil
}

func (s *Store) GetSubscription(ctx context.Context, id string) (models.Subscription, error) {
	return getSubscription(ctx, s.db, s.dialect, id, false)
}

func (s *Store) SaveSubscription(ctx context.Context, sub models.Subscription) error {
	return saveSubscription(ctx, s.db, s.dialect, sub)
}

func (s *Store) ActiveSubscriptions(ctx context.Context) ([]models.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE is_active = ? ORDER BY id`

	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(query), true)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []models.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return subs, nil
}

func (s *Store) SaveEnrollment(ctx context.Context, e models.AutoInvestEnrollment) error {
	const query = `INSERT INTO auto_invest (account_id, is_active, last_executed) VALUES (?, ?, ?)
	ON CONFLICT (account_id) DO UPDATE SET is_active = excluded.is_active, last_executed = excluded.last_executed`

	_, err := s.db.ExecContext(ctx, s.dialect.rebind(query), e.AccountID, e.IsActive, e.LastExecuted.UTC())
	return err
}

func (s *Store) GetEnrollment(ctx context.Context, accountID string) (models.AutoInvestEnrollment, error) {
	const query = `SELECT account_id, is_active, last_executed FROM auto_invest WHERE account_id = ?`

	var e models.AutoInvestEnrollment
	err := s.db.QueryRowContext(ctx, s.dialect.rebind(query), accountID).Scan(&e.AccountID, &e.IsActive, &e.LastExecuted)
	if errors.Is(err, sql.ErrNoRows) {
		return models.AutoInvestEnrollment{}, fmt.Errorf("%w: enrollment %s", interfaces.ErrNotFound, accountID)
	}
	if err != nil {
		return models.AutoInvestEnrollment{}, err
	}
	e.LastExecuted = e.LastExecuted.UTC()
	return e, nil
}

func (s *Store) ActiveEnrollments(ctx context.Context) ([]models.AutoInvestEnrollment, error) {
	const query = `SELECT account_id, is_active, last_executed FROM auto_invest WHERE is_active = ? ORDER BY account_id`

	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(query), true)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var enrollments []models.AutoInvestEnrollment
	for rows.Next() {
		var e models.AutoInvestEnrollment
		if err := rows.Scan(&e.AccountID, &e.IsActive, &e.LastExecuted); err != nil {
			return nil, err
		}
		e.LastExecuted = e.LastExecuted.UTC()
		enrollments = append(enrollments, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return enrollments, nil
}

func (s *Store) SaveAlert(ctx context.Context, alert models.AlertConfig) error {
	const query = `INSERT INTO alert_configs (id, account_id, kind, target_amount, alert_threshold, balance_drop_threshold)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT (id) DO UPDATE SET kind = excluded.kind, target_amount = excluded.target_amount,
		alert_threshold = excluded.alert_threshold, balance_drop_threshold = excluded.balance_drop_threshold`

	_, err := s.db.ExecContext(ctx, s.dialect.rebind(query),
		alert.ID, alert.AccountID, string(alert.Kind), alert.TargetAmount, alert.AlertThreshold, alert.BalanceDropThreshold)
	return err
}

func (s *Store) AlertsByAccount(ctx context.Context, accountID string) ([]models.AlertConfig, error) {
	const query = `SELECT id, account_id, kind, target_amount, alert_threshold, balance_drop_threshold
	FROM alert_configs WHERE account_id = ? ORDER BY id`

	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(query), accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []models.AlertConfig
	for rows.Next() {
		var a models.AlertConfig
		if err := rows.Scan(&a.ID, &a.AccountID, &a.Kind, &a.TargetAmount, &a.AlertThreshold, &a.BalanceDropThreshold); err != nil {
			return nil, err
		}
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return alerts, nil
}

func (s *Store) DeleteAlert(ctx context.Context, accountID, id string) error {
	const query = `DELETE FROM alert_configs WHERE id = ? AND account_id = ?`
	return s.deleteOwned(ctx, query, "alert", accountID, id)
}

func (s *Store) SaveExpense(ctx context.Context, expense models.RecurringExpense) error {
	const query = `INSERT INTO recurring_expenses (id, account_id, name, amount, frequency, start_date)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT (id) DO UPDATE SET name = excluded.name, amount = excluded.amount,
		frequency = excluded.frequency, start_date = excluded.start_date`

	_, err := s.db.ExecContext(ctx, s.dialect.rebind(query),
		expense.ID, expense.AccountID, expense.Name, expense.Amount, string(expense.Frequency), expense.StartDate.UTC())
	return err
}

func (s *Store) GetExpense(ctx context.Context, id string) (models.RecurringExpense, error) {
	const query = `SELECT id, account_id, name, amount, frequency, start_date FROM recurring_expenses WHERE id = ?`

	var e models.RecurringExpense
	err := s.db.QueryRowContext(ctx, s.dialect.rebind(query), id).
		Scan(&e.ID, &e.AccountID, &e.Name, &e.Amount, &e.Frequency, &e.StartDate)
	if errors.Is(err, sql.ErrNoRows) {
		return models.RecurringExpense{}, fmt.Errorf("%w: expense %s", interfaces.ErrNotFound, id)
	}
	if err != nil {
		return models.RecurringExpense{}, err
	}
	e.StartDate = e.StartDate.UTC()
	return e, nil
}

func (s *Store) DeleteExpense(ctx context.Context, accountID, id string) error {
	const query = `DELETE FROM recurring_expenses WHERE id = ? AND account_id = ?`
	return s.deleteOwned(ctx, query, "expense", accountID, id)
}

// deleteOwned runs a delete keyed by id and account_id. No matching row is
// reported as ErrNotFound.
func (s *Store) deleteOwned(ctx context.Context, query, kind, accountID, id string) error {
	res, err := s.db.ExecContext(ctx, s.dialect.rebind(query), id, accountID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s %s", interfaces.ErrNotFound, kind, id)
	}
	return nil
}

func (s *Store) ExpensesByAccount(ctx context.Context, accountID string) ([]models.RecurringExpense, error) {
	const query = `SELECT id, account_id, name, amount, frequency, start_date
	FROM recurring_expenses WHERE account_id = ? ORDER BY id`

	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(query), accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var expenses []models.RecurringExpense
	for rows.Next() {
		var e models.RecurringExpense
		if err := rows.Scan(&e.ID, &e.AccountID, &e.Name, &e.Amount, &e.Frequency, &e.StartDate); err != nil {
			return nil, err
		}
		e.StartDate = e.StartDate.UTC()
		expenses = append(expenses, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return expenses, nil
}

// sqlTx is the LedgerTx of one database transaction.
type sqlTx struct {
	tx      *sql.Tx
	dialect Dialect
}

func (t *sqlTx) GetAccount(ctx context.Context, id string) (models.Account, error) {
	return getAccount(ctx, t.tx, t.dialect, id, true)
}

func (t *sqlTx) UpdateBalance(ctx context.Context, id string, balance decimal.Decimal) error {
	const query = `UPDATE accounts SET balance = ? WHERE id = ?`

	res, err := t.tx.ExecContext(ctx, t.dialect.rebind(query), balance, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: account %s", interfaces.ErrNotFound, id)
	}
	return nil
}

func (t *sqlTx) GetHolding(ctx context.Context, accountID, symbol string) (models.AssetHolding, error) {
	query := `SELECT account_id, symbol, quantity, average_cost, updated_at
	FROM asset_holdings WHERE account_id = ? AND symbol = ?` + t.dialect.forUpdate()

	h, err := scanHolding(t.tx.QueryRowContext(ctx, t.dialect.rebind(query), accountID, symbol))
	if errors.Is(err, sql.ErrNoRows) {
		return models.AssetHolding{}, fmt.Errorf("%w: holding %s/%s", interfaces.ErrNotFound, accountID, symbol)
	}
	return h, err
}

func (t *sqlTx) SaveHolding(ctx context.Context, h models.AssetHolding) error {
	const query = `INSERT INTO asset_holdings (account_id, symbol, quantity, average_cost, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT (account_id, symbol) DO UPDATE SET quantity = excluded.quantity,
		average_cost = excluded.average_cost, updated_at = excluded.updated_at`

	_, err := t.tx.ExecContext(ctx, t.dialect.rebind(query), h.AccountID, h.Symbol, h.Quantity, h.AverageCost, h.UpdatedAt.UTC())
	return err
}

func (t *sqlTx) AppendTransaction(ctx context.Context, tx models.Transaction) error {
	query := `INSERT INTO transactions (` + transactionColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	target := sql.NullString{String: tx.TargetAccount, Valid: tx.TargetAccount != ""}
	var flag sql.NullBool
	if tx.FraudFlag != nil {
		flag = sql.NullBool{Bool: *tx.FraudFlag, Valid: true}
	}

	_, err := t.tx.ExecContext(ctx, t.dialect.rebind(query),
		tx.ID, string(tx.Type), tx.Amount, tx.Timestamp.UTC(), tx.SourceAccount, target,
		tx.Symbol, tx.Quantity, tx.Price, tx.Category, flag)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: transaction %s", interfaces.ErrDuplicate, tx.ID)
	}
	return err
}

func (t *sqlTx) SpendHistory(ctx context.Context, accountID string, from, to time.Time) ([]models.Transaction, error) {
	return spendHistory(ctx, t.tx, t.dialect, accountID, from, to)
}

func (t *sqlTx) GetSubscription(ctx context.Context, id string) (models.Subscription, error) {
	return getSubscription(ctx, t.tx, t.dialect, id, true)
}

func (t *sqlTx) SaveSubscription(ctx context.Context, sub models.Subscription) error {
	return saveSubscription(ctx, t.tx, t.dialect, sub)
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

const (
	transactionColumns  = `id, type, amount, occurred_at, source_account, target_account, symbol, quantity, price, category, fraud_flag`
	subscriptionColumns = `id, account_id, amount, interval_seconds, last_executed, is_active`
)

func getAccount(ctx context.Context, q querier, d Dialect, id string, lock bool) (models.Account, error) {
	query := `SELECT id, owner_id, balance, created_at FROM accounts WHERE id = ?`
	if lock {
		query += d.forUpdate()
	}

	var a models.Account
	err := q.QueryRowContext(ctx, d.rebind(query), id).Scan(&a.ID, &a.OwnerID, &a.Balance, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Account{}, fmt.Errorf("%w: account %s", interfaces.ErrNotFound, id)
	}
	if err != nil {
		return models.Account{}, err
	}
	a.CreatedAt = a.CreatedAt.UTC()
	return a, nil
}

func spendHistory(ctx context.Context, q querier, d Dialect, accountID string, from, to time.Time) ([]models.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions
	WHERE source_account = ? AND category <> '' AND occurred_at >= ? AND occurred_at < ?
	ORDER BY occurred_at, id`

	rows, err := q.QueryContext(ctx, d.rebind(query), accountID, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	return collectTransactions(rows)
}

func collectTransactions(rows *sql.Rows) ([]models.Transaction, error) {
	defer rows.Close()

	var txs []models.Transaction
	for rows.Next() {
		var (
			t      models.Transaction
			target sql.NullString
			flag   sql.NullBool
		)
		err := rows.Scan(&t.ID, &t.Type, &t.Amount, &t.Timestamp, &t.SourceAccount, &target,
			&t.Symbol, &t.Quantity, &t.Price, &t.Category, &flag)
		if err != nil {
			return nil, err
		}
		t.Timestamp = t.Timestamp.UTC()
		t.TargetAccount = target.String
		if flag.Valid {
			v := flag.Bool
			t.FraudFlag = &v
		}
		txs = append(txs, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return txs, nil
}

func scanHolding(sc scanner) (models.AssetHolding, error) {
	var h models.AssetHolding
	if err := sc.Scan(&h.AccountID, &h.Symbol, &h.Quantity, &h.AverageCost, &h.UpdatedAt); err != nil {
		return models.AssetHolding{}, err
	}
	h.UpdatedAt = h.UpdatedAt.UTC()
	return h, nil
}

func getSubscription(ctx context.Context, q querier, d Dialect, id string, lock bool) (models.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE id = ?`
	if lock {
		query += d.forUpdate()
	}

	sub, err := scanSubscription(q.QueryRowContext(ctx, d.rebind(query), id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Subscription{}, fmt.Errorf("%w: subscription %s", interfaces.ErrNotFound, id)
	}
	return sub, err
}

func scanSubscription(sc scanner) (models.Subscription, error) {
	var sub models.Subscription
	if err := sc.Scan(&sub.ID, &sub.AccountID, &sub.Amount, &sub.IntervalSeconds, &sub.LastExecuted, &sub.IsActive); err != nil {
		return models.Subscription{}, err
	}
	sub.LastExecuted = sub.LastExecuted.UTC()
	return sub, nil
}

func saveSubscription(ctx context.Context, q querier, d Dialect, sub models.Subscription) error {
	query := `INSERT INTO subscriptions (` + subscriptionColumns + `) VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT (id) DO UPDATE SET amount = excluded.amount, interval_seconds = excluded.interval_seconds,
		last_executed = excluded.last_executed, is_active = excluded.is_active`

	_, err := q.ExecContext(ctx, d.rebind(query),
		sub.ID, sub.AccountID, sub.Amount, sub.IntervalSeconds, sub.LastExecuted.UTC(), sub.IsActive)
	return err
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// Compile-time checks
var (
	_ interfaces.LedgerStore        = (*Store)(nil)
	_ interfaces.TransactionHistory = (*Store)(nil)
	_ interfaces.SubscriptionStore  = (*Store)(nil)
	_ interfaces.AutoInvestStore    = (*Store)(nil)
	_ interfaces.AlertStore         = (*Store)(nil)
	_ interfaces.ExpenseStore       = (*Store)(nil)
	_ interfaces.LedgerTx           = (*sqlTx)(nil)
)
