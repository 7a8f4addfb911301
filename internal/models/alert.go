package models

import "github.com/shopspring/decimal"

type AlertKind string

const (
	AlertAmountReached AlertKind = "AMOUNT_REACHED"
	AlertBalanceDrop   AlertKind = "BALANCE_DROP"
)

// AlertConfig is a balance notification rule owned by an account.
// TargetAmount and AlertThreshold apply to AMOUNT_REACHED,
// BalanceDropThreshold to BALANCE_DROP.
type AlertConfig struct {
	ID                   string          `json:"id"`
	AccountID            string          `json:"account_id"`
	Kind                 AlertKind       `json:"kind"`
	TargetAmount         decimal.Decimal `json:"target_amount,omitzero"`
	AlertThreshold       decimal.Decimal `json:"alert_threshold,omitzero"`
	BalanceDropThreshold decimal.Decimal `json:"balance_drop_threshold,omitzero"`
}
