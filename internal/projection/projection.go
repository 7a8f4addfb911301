package projection

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	interfaces "github.com/mandycs/CaixaBankCodingChallenge/internal/interfaces"
	"github.com/mandycs/CaixaBankCodingChallenge/internal/models"
	"github.com/shopspring/decimal"
)

const DefaultMonths = 12

var ErrInvalidExpense = errors.New("invalid recurring expense")

type MonthTotal struct {
	Month string          `json:"month"` // YYYY-MM
	Total decimal.Decimal `json:"recurring_expenses"`
}

// Project sums the expenses due in each of the given number of months,
// starting with the month of from. An expense counts from the first month
// that begins on or after its start date; yearly expenses only count in their
// anniversary month. Months without any expense are omitted.
func Project(expenses []models.RecurringExpense, from time.Time, months int) []MonthTotal {
	var out []MonthTotal
	year, month, _ := from.Date()

	for i := range months {
		first := time.Date(year, month+time.Month(i), 1, 0, 0, 0, 0, time.UTC)

		total := decimal.Zero
		due := false
		for _, e := range expenses {
			start := e.StartDate.UTC()
			startDay := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
			if startDay.After(first) {
				continue
			}
			if e.Frequency == models.FrequencyYearly && start.Month() != first.Month() {
				continue
			}
			total = total.Add(e.Amount)
			due = true
		}

		if due {
			out = append(out, MonthTotal{Month: first.Format("2006-01"), Total: total})
		}
	}
	return out
}

// Planner stores recurring expenses and projects them forward.
type Planner struct {
	store interfaces.ExpenseStore
	now   func() time.Time
}

func NewPlanner(store interfaces.ExpenseStore, now func() time.Time) *Planner {
	if now == nil {
		now = time.Now
	}
	return &Planner{store: store, now: now}
}

func (p *Planner) AddExpense(ctx context.Context, accountID, name string, amount decimal.Decimal, frequency models.Frequency, start time.Time) (models.RecurringExpense, error) {
	expense := models.RecurringExpense{
		ID:        uuid.NewString(),
		AccountID: accountID,
		Name:      strings.TrimSpace(name),
		Amount:    amount,
		Frequency: frequency,
		StartDate: start.UTC(),
	}
	if err := validate(expense); err != nil {
		return models.RecurringExpense{}, err
	}
	if err := p.store.SaveExpense(ctx, expense); err != nil {
		return models.RecurringExpense{}, fmt.Errorf("failed to save expense: %w", err)
	}
	return expense, nil
}

func (p *Planner) Expenses(ctx context.Context, accountID string) ([]models.RecurringExpense, error) {
	expenses, err := p.store.ExpensesByAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to load expenses: %w", err)
	}
	return expenses, nil
}

// UpdateExpense replaces the fields of an expense owned by accountID. An
// expense of another account is reported as not found.
func (p *Planner) UpdateExpense(ctx context.Context, accountID, id, name string, amount decimal.Decimal, frequency models.Frequency, start time.Time) (models.RecurringExpense, error) {
	expense, err := p.store.GetExpense(ctx, id)
	if err != nil {
		return models.RecurringExpense{}, err
	}
	if expense.AccountID != accountID {
		return models.RecurringExpense{}, fmt.Errorf("%w: expense %s", interfaces.ErrNotFound, id)
	}

	expense.Name = strings.TrimSpace(name)
	expense.Amount = amount
	expense.Frequency = frequency
	expense.StartDate = start.UTC()
	if err := validate(expense); err != nil {
		return models.RecurringExpense{}, err
	}
	if err := p.store.SaveExpense(ctx, expense); err != nil {
		return models.RecurringExpense{}, fmt.Errorf("failed to save expense: %w", err)
	}
	return expense, nil
}

func (p *Planner) DeleteExpense(ctx context.Context, accountID, id string) error {
	return p.store.DeleteExpense(ctx, accountID, id)
}

func validate(e models.RecurringExpense) error {
	switch {
	case e.AccountID == "":
		return fmt.Errorf("%w: account is required", ErrInvalidExpense)
	case e.Name == "":
		return fmt.Errorf("%w: name is required", ErrInvalidExpense)
	case !e.Amount.IsPositive():
		return fmt.Errorf("%w: amount must be positive", ErrInvalidExpense)
	case e.Frequency != models.FrequencyMonthly && e.Frequency != models.FrequencyYearly:
		return fmt.Errorf("%w: frequency must be monthly or yearly", ErrInvalidExpense)
	case e.StartDate.IsZero():
		return fmt.Errorf("%w: start date is required", ErrInvalidExpense)
	}
	return nil
}

// Projection returns the next DefaultMonths months for an account.
func (p *Planner) Projection(ctx context.Context, accountID string) ([]MonthTotal, error) {
	expenses, err := p.store.ExpensesByAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to load expenses: %w", err)
	}
	return Project(expenses, p.now(), DefaultMonths), nil
}
