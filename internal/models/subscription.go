package models

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// Subscription debits Amount from the account every IntervalSeconds.
type Subscription struct {
	ID              string          `json:"id"`
	AccountID       string          `json:"account_id"`
	Amount          decimal.Decimal `json:"amount"`
	IntervalSeconds int64           `json:"interval_seconds"`
	LastExecuted    time.Time       `json:"last_executed"`
	IsActive        bool            `json:"is_active"`
}

// MaxIntervalSeconds is the longest billing period a time.Duration can hold.
const MaxIntervalSeconds = math.MaxInt64 / int64(time.Second)

// Due reports whether a charge is owed at now. The comparison is done in
// whole seconds so an oversized interval is never due rather than wrapping.
func (s Subscription) Due(now time.Time) bool {
	if !s.IsActive {
		return false
	}
	elapsed := int64(now.Sub(s.LastExecuted) / time.Second)
	return elapsed >= s.IntervalSeconds
}

// AutoInvestEnrollment opts an account into the auto-invest bot.
type AutoInvestEnrollment struct {
	AccountID    string    `json:"account_id"`
	IsActive     bool      `json:"is_active"`
	LastExecuted time.Time `json:"last_executed,omitzero"`
}
