package fraud

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	interfaces "github.com/mandycs/CaixaBankCodingChallenge/internal/interfaces"
	"github.com/mandycs/CaixaBankCodingChallenge/internal/models"
	"github.com/shopspring/decimal"
)

const (
	RuleHighDeviation     = "high_deviation"
	RuleUnusualCategory   = "unusual_category"
	RuleRapidTransactions = "rapid_transactions"
)

// Config tunes the windows and thresholds of the built-in rules.
type Config struct {
	DeviationWindow time.Duration
	CategoryWindow  time.Duration
	RapidWindow     time.Duration
	SigmaMultiplier decimal.Decimal
	RapidCount      int // the rapid rule needs strictly more than this many transactions
}

func DefaultConfig() Config {
	return Config{
		DeviationWindow: 90 * 24 * time.Hour,
		CategoryWindow:  180 * 24 * time.Hour,
		RapidWindow:     5 * time.Minute,
		SigmaMultiplier: decimal.NewFromInt(3),
		RapidCount:      3,
	}
}

// Candidate is a spend that has not been recorded yet.
type Candidate struct {
	AccountID  string
	Amount     decimal.Decimal
	Category   string
	OccurredAt time.Time
}

// Decision is the outcome of scoring one candidate. Mean, StdDev and
// DailyAverage describe the deviation window and are reported for observability.
type Decision struct {
	Fraud        bool            `json:"fraud"`
	Rules        []string        `json:"rules,omitempty"`
	Mean         decimal.Decimal `json:"mean"`
	StdDev       decimal.Decimal `json:"std_dev"`
	DailyAverage decimal.Decimal `json:"daily_average"`
}

// Rule is one independent fraud heuristic. Rules are OR-combined.
type Rule struct {
	Name        string
	Description string
	Detect      func(c Candidate, w *windows) bool
}

// windows holds the history slices and statistics shared by all rules.
type windows struct {
	deviation    []models.Transaction
	category     []models.Transaction
	rapid        []models.Transaction
	mean         decimal.Decimal
	stdDev       decimal.Decimal
	dailyAverage decimal.Decimal
}

type Scorer struct {
	cfg     Config
	history interfaces.TransactionHistory
	rules   []Rule
	logger  *slog.Logger
}

func NewScorer(history interfaces.TransactionHistory, cfg Config, logger *slog.Logger) *Scorer {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Scorer{
		cfg:     cfg,
		history: history,
		logger:  logger,
	}
	s.rules = []Rule{
		{
			Name:        RuleHighDeviation,
			Description: "Amount far above the trailing daily average",
			Detect:      s.detectHighDeviation,
		},
		{
			Name:        RuleUnusualCategory,
			Description: "Category not seen in the trailing category window",
			Detect:      s.detectUnusualCategory,
		},
		{
			Name:        RuleRapidTransactions,
			Description: "Burst of transactions adding up to more than the daily average",
			Detect:      s.detectRapidTransactions,
		},
	}
	return s
}

// Lookback is how far back Evaluate needs history.
func (s *Scorer) Lookback() time.Duration {
	return max(s.cfg.DeviationWindow, s.cfg.CategoryWindow, s.cfg.RapidWindow)
}

// Score reads the account's spend history and evaluates the candidate. It
// never writes; persisting the flag is up to the caller.
func (s *Scorer) Score(ctx context.Context, accountID string, amount decimal.Decimal, category string, occurredAt time.Time) (Decision, error) {
	if s.history == nil {
		return Decision{}, fmt.Errorf("fraud scorer has no history source")
	}
	history, err := s.history.SpendHistory(ctx, accountID, occurredAt.Add(-s.Lookback()), occurredAt)
	if err != nil {
		return Decision{}, fmt.Errorf("failed to load spend history: %w", err)
	}

	decision := s.Evaluate(Candidate{
		AccountID:  accountID,
		Amount:     amount,
		Category:   category,
		OccurredAt: occurredAt,
	}, history)

	if decision.Fraud {
		s.logger.WarnContext(ctx, "Spend scored as fraud",
			slog.String("account_id", accountID),
			slog.String("amount", amount.String()),
			slog.Any("rules", decision.Rules))
	}
	return decision, nil
}

// Evaluate is the side-effect free kernel of Score. Only history strictly
// before the candidate's timestamp is considered.
func (s *Scorer) Evaluate(c Candidate, history []models.Transaction) Decision {
	c.Category = NormalizeCategory(c.Category)
	w := s.buildWindows(c, history)

	decision := Decision{
		Mean:         w.mean,
		StdDev:       w.stdDev,
		DailyAverage: w.dailyAverage,
	}
	for _, rule := range s.rules {
		if rule.Detect(c, w) {
			decision.Fraud = true
			decision.Rules = append(decision.Rules, rule.Name)
		}
	}
	return decision
}

func (s *Scorer) buildWindows(c Candidate, history []models.Transaction) *windows {
	w := &windows{}
	at := c.OccurredAt

	for _, tx := range history {
		if !tx.Timestamp.Before(at) {
			continue
		}
		age := at.Sub(tx.Timestamp)
		if age <= s.cfg.DeviationWindow {
			w.deviation = append(w.deviation, tx)
		}
		if age <= s.cfg.CategoryWindow {
			w.category = append(w.category, tx)
		}
		if age <= s.cfg.RapidWindow {
			w.rapid = append(w.rapid, tx)
		}
	}

	if len(w.deviation) == 0 {
		w.dailyAverage = c.Amount
		return w
	}

	sum := decimal.Zero
	earliest := w.deviation[0].Timestamp
	for _, tx := range w.deviation {
		sum = sum.Add(tx.Amount)
		if tx.Timestamp.Before(earliest) {
			earliest = tx.Timestamp
		}
	}
	n := decimal.NewFromInt(int64(len(w.deviation)))
	w.mean = sum.Div(n)

	variance := decimal.Zero
	for _, tx := range w.deviation {
		d := tx.Amount.Sub(w.mean)
		variance = variance.Add(d.Mul(d))
	}
	w.stdDev = sqrt(variance.Div(n))

	days := int64(at.Sub(earliest) / (24 * time.Hour))
	w.dailyAverage = sum.Div(decimal.NewFromInt(max(days, 1)))
	return w
}

func (s *Scorer) detectHighDeviation(c Candidate, w *windows) bool {
	if !w.stdDev.IsPositive() {
		return false
	}
	limit := w.dailyAverage.Add(s.cfg.SigmaMultiplier.Mul(w.stdDev))
	return c.Amount.GreaterThan(limit)
}

func (s *Scorer) detectUnusualCategory(c Candidate, w *windows) bool {
	if len(w.category) == 0 {
		return false
	}
	for _, tx := range w.category {
		if NormalizeCategory(tx.Category) == c.Category {
			return false
		}
	}
	return true
}

func (s *Scorer) detectRapidTransactions(c Candidate, w *windows) bool {
	count := len(w.rapid) + 1
	if count <= s.cfg.RapidCount {
		return false
	}
	sum := c.Amount
	for _, tx := range w.rapid {
		sum = sum.Add(tx.Amount)
	}
	return sum.GreaterThan(w.dailyAverage)
}

// NormalizeCategory trims and lower-cases a spend category.
func NormalizeCategory(category string) string {
	return strings.ToLower(strings.TrimSpace(category))
}

var two = decimal.NewFromInt(2)

// sqrt refines a float64 seed with Newton steps so the result stays decimal.
func sqrt(d decimal.Decimal) decimal.Decimal {
	if !d.IsPositive() {
		return decimal.Zero
	}
	x := decimal.NewFromFloat(math.Sqrt(d.InexactFloat64()))
	if !x.IsPositive() {
		return decimal.Zero
	}
	for range 4 {
		x = x.Add(d.Div(x)).Div(two)
	}
	return x
}
