package accrual

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	interfaces "github.com/mandycs/CaixaBankCodingChallenge/internal/interfaces"
	"github.com/mandycs/CaixaBankCodingChallenge/internal/ledger"
	"github.com/mandycs/CaixaBankCodingChallenge/internal/models"
	"github.com/shopspring/decimal"
)

const (
	JobSubscriptions = "subscriptions"
	JobAutoInvest    = "auto_invest"
)

// ErrJobRunning is returned when a job is triggered while a previous run of
// the same job has not finished.
var ErrJobRunning = errors.New("job already running")

// errNotDue aborts a subscription charge whose schedule moved on between
// listing and posting.
var errNotDue = errors.New("subscription no longer due")

// Ledger is the part of the ledger core the jobs post through.
type Ledger interface {
	Post(ctx context.Context, accountID string, delta decimal.Decimal, txType models.TransactionType, opts ...ledger.PostOption) (models.Transaction, error)
	Trade(ctx context.Context, accountID, symbol string, side models.TradeSide, quantity, price decimal.Decimal) (ledger.TradeResult, error)
	Holdings(ctx context.Context, accountID string) ([]models.AssetHolding, error)
	Account(ctx context.Context, accountID string) (models.Account, error)
}

// Recorder receives per-run outcome counts, e.g. for metrics.
type Recorder interface {
	RecordAccrual(job, outcome string, count int)
}

type Config struct {
	PriceTimeout  time.Duration
	BuyBelow      decimal.Decimal // buy when price < averageCost * BuyBelow
	SellAbove     decimal.Decimal // sell when price > averageCost * SellAbove
	TradeFraction decimal.Decimal // share of the position traded per run
}

func DefaultConfig() Config {
	return Config{
		PriceTimeout:  5 * time.Second,
		BuyBelow:      decimal.RequireFromString("0.8"),
		SellAbove:     decimal.RequireFromString("1.2"),
		TradeFraction: decimal.RequireFromString("0.1"),
	}
}

type SubscriptionReport struct {
	Charged     int `json:"charged"`
	NotDue      int `json:"not_due"`
	Deactivated int `json:"deactivated"`
	Failed      int `json:"failed"`
}

type AutoInvestReport struct {
	Accounts int `json:"accounts"`
	Bought   int `json:"bought"`
	Sold     int `json:"sold"`
	Held     int `json:"held"`
	Skipped  int `json:"skipped"` // buy signal without enough cash
	Failed   int `json:"failed"`
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// Engine runs the periodic subscription and auto-invest jobs. Each job is
// guarded so that it never overlaps with itself.
type Engine struct {
	ledger      Ledger
	subs        interfaces.SubscriptionStore
	enrollments interfaces.AutoInvestStore
	prices      interfaces.PriceProvider
	cfg         Config
	logger      *slog.Logger
	now         func() time.Time
	recorder    Recorder

	subsRunning   sync.Mutex
	investRunning sync.Mutex
}

func NewEngine(
	l Ledger,
	subs interfaces.SubscriptionStore,
	enrollments interfaces.AutoInvestStore,
	prices interfaces.PriceProvider,
	cfg Config,
	opts ...Option,
) *Engine {
	if cfg.PriceTimeout <= 0 {
		cfg.PriceTimeout = DefaultConfig().PriceTimeout
	}

	e := &Engine{
		ledger:      l,
		subs:        subs,
		enrollments: enrollments,
		prices:      prices,
		cfg:         cfg,
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RunSubscriptions charges every active subscription that is due. A charge
// and the new LastExecuted are committed together, so a subscription is
// never charged twice for the same period. Subscriptions that cannot be
// paid are deactivated.
func (e *Engine) RunSubscriptions(ctx context.Context) (SubscriptionReport, error) {
	if !e.subsRunning.TryLock() {
		return SubscriptionReport{}, ErrJobRunning
	}
	defer e.subsRunning.Unlock()

	var report SubscriptionReport
	now := e.now().UTC()

	subs, err := e.subs.ActiveSubscriptions(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to list subscriptions: %w", err)
	}

	for _, sub := range subs {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if !sub.Due(now) {
			report.NotDue++
			continue
		}

		err := e.charge(ctx, sub, now)
		switch {
		case err == nil:
			report.Charged++
		case errors.Is(err, errNotDue):
			report.NotDue++
		case errors.Is(err, ledger.ErrInsufficientFunds):
			sub.IsActive = false
			if err := e.subs.SaveSubscription(ctx, sub); err != nil {
				report.Failed++
				e.logger.ErrorContext(ctx, "Failed to deactivate subscription",
					slog.String("subscription_id", sub.ID),
					slog.String("error", err.Error()))
				continue
			}
			report.Deactivated++
			e.logger.WarnContext(ctx, "Subscription deactivated for insufficient funds",
				slog.String("subscription_id", sub.ID),
				slog.String("account_id", sub.AccountID),
				slog.String("amount", sub.Amount.String()))
		default:
			report.Failed++
			e.logger.ErrorContext(ctx, "Subscription charge failed",
				slog.String("subscription_id", sub.ID),
				slog.String("account_id", sub.AccountID),
				slog.String("error", err.Error()))
		}
	}

	e.record(JobSubscriptions, map[string]int{
		"charged":     report.Charged,
		"not_due":     report.NotDue,
		"deactivated": report.Deactivated,
		"failed":      report.Failed,
	})
	e.logger.InfoContext(ctx, "Subscription run finished",
		slog.Int("charged", report.Charged),
		slog.Int("not_due", report.NotDue),
		slog.Int("deactivated", report.Deactivated),
		slog.Int("failed", report.Failed))
	return report, nil
}

func (e *Engine) charge(ctx context.Context, sub models.Subscription, now time.Time) error {
	stamp := func(ctx context.Context, utx interfaces.LedgerTx, posted models.Transaction) error {
		current, err := utx.GetSubscription(ctx, sub.ID)
		if err != nil {
			return fmt.Errorf("failed to reload subscription: %w", err)
		}
		if !current.Due(now) {
			return errNotDue
		}
		current.LastExecuted = now
		return utx.SaveSubscription(ctx, current)
	}

	_, err := e.ledger.Post(ctx, sub.AccountID, sub.Amount.Neg(), models.TypeSubscription,
		ledger.WithTimestamp(now),
		ledger.WithTxHook(stamp))
	return err
}

// RunAutoInvest rebalances every holding of every enrolled account: a price
// below BuyBelow of the average cost buys TradeFraction of the position, a
// price above SellAbove sells it. The bounds themselves hold.
func (e *Engine) RunAutoInvest(ctx context.Context) (AutoInvestReport, error) {
	if !e.investRunning.TryLock() {
		return AutoInvestReport{}, ErrJobRunning
	}
	defer e.investRunning.Unlock()

	var report AutoInvestReport

	enrollments, err := e.enrollments.ActiveEnrollments(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to list auto-invest enrollments: %w", err)
	}

	for _, enrollment := range enrollments {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		holdings, err := e.ledger.Holdings(ctx, enrollment.AccountID)
		if err != nil {
			report.Failed++
			e.logger.ErrorContext(ctx, "Failed to load holdings",
				slog.String("account_id", enrollment.AccountID),
				slog.String("error", err.Error()))
			continue
		}

		for _, h := range holdings {
			if !h.Quantity.IsPositive() {
				continue
			}
			switch e.rebalance(ctx, h) {
			case outcomeBought:
				report.Bought++
			case outcomeSold:
				report.Sold++
			case outcomeHeld:
				report.Held++
			case outcomeSkipped:
				report.Skipped++
			default:
				report.Failed++
			}
		}

		enrollment.LastExecuted = e.now().UTC()
		if err := e.enrollments.SaveEnrollment(ctx, enrollment); err != nil {
			e.logger.ErrorContext(ctx, "Failed to stamp auto-invest enrollment",
				slog.String("account_id", enrollment.AccountID),
				slog.String("error", err.Error()))
		}
		report.Accounts++
	}

	e.record(JobAutoInvest, map[string]int{
		"bought":  report.Bought,
		"sold":    report.Sold,
		"held":    report.Held,
		"skipped": report.Skipped,
		"failed":  report.Failed,
	})
	e.logger.InfoContext(ctx, "Auto-invest run finished",
		slog.Int("accounts", report.Accounts),
		slog.Int("bought", report.Bought),
		slog.Int("sold", report.Sold),
		slog.Int("held", report.Held),
		slog.Int("skipped", report.Skipped),
		slog.Int("failed", report.Failed))
	return report, nil
}

type outcome int

const (
	outcomeFailed outcome = iota
	outcomeBought
	outcomeSold
	outcomeHeld
	outcomeSkipped
)

func (e *Engine) rebalance(ctx context.Context, h models.AssetHolding) outcome {
	priceCtx, cancel := context.WithTimeout(ctx, e.cfg.PriceTimeout)
	price, err := e.prices.GetPrice(priceCtx, h.Symbol)
	cancel()
	if err != nil {
		e.logger.WarnContext(ctx, "Price unavailable, holding skipped",
			slog.String("account_id", h.AccountID),
			slog.String("symbol", h.Symbol),
			slog.String("error", err.Error()))
		return outcomeFailed
	}

	quantity := h.Quantity.Mul(e.cfg.TradeFraction)

	var side models.TradeSide
	switch {
	case price.LessThan(h.AverageCost.Mul(e.cfg.BuyBelow)):
		side = models.SideBuy
	case price.GreaterThan(h.AverageCost.Mul(e.cfg.SellAbove)):
		side = models.SideSell
	default:
		return outcomeHeld
	}

	_, err = e.ledger.Trade(ctx, h.AccountID, h.Symbol, side, quantity, price)
	switch {
	case err == nil && side == models.SideBuy:
		return outcomeBought
	case err == nil:
		return outcomeSold
	case side == models.SideBuy && errors.Is(err, ledger.ErrInsufficientFunds):
		e.logger.InfoContext(ctx, "Auto-invest buy skipped for insufficient funds",
			slog.String("account_id", h.AccountID),
			slog.String("symbol", h.Symbol))
		return outcomeSkipped
	}

	e.logger.ErrorContext(ctx, "Auto-invest trade failed",
		slog.String("account_id", h.AccountID),
		slog.String("symbol", h.Symbol),
		slog.String("side", string(side)),
		slog.String("error", err.Error()))
	return outcomeFailed
}

func (e *Engine) record(job string, outcomes map[string]int) {
	if e.recorder == nil {
		return
	}
	for outcome, count := range outcomes {
		e.recorder.RecordAccrual(job, outcome, count)
	}
}
