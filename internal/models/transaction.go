package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TypeWithdrawal    TransactionType = "WITHDRAWAL"
	TypeDeposit       TransactionType = "DEPOSIT"
	TypeTransfer      TransactionType = "TRANSFER"
	TypeSubscription  TransactionType = "SUBSCRIPTION"
	TypeAssetPurchase TransactionType = "ASSET_PURCHASE"
	TypeAssetSale     TransactionType = "ASSET_SALE"
)

// Valid reports whether t is one of the known transaction types.
func (t TransactionType) Valid() bool {
	switch t {
	case TypeWithdrawal, TypeDeposit, TypeTransfer, TypeSubscription, TypeAssetPurchase, TypeAssetSale:
		return true
	}
	return false
}

// Transaction is an immutable ledger record. Once appended it is never updated.
type Transaction struct {
	ID            string          `json:"id"`
	Type          TransactionType `json:"type"`
	Amount        decimal.Decimal `json:"amount"` // always positive
	Timestamp     time.Time       `json:"timestamp"`
	SourceAccount string          `json:"source_account"`
	TargetAccount string          `json:"target_account,omitempty"` // transfers only
	Symbol        string          `json:"symbol,omitempty"`         // trades only
	Quantity      decimal.Decimal `json:"quantity,omitzero"`
	Price         decimal.Decimal `json:"price,omitzero"`
	Category      string          `json:"category,omitempty"`
	FraudFlag     *bool           `json:"fraud_flag,omitempty"` // set only on scored spends
}

// IsSpend reports whether the transaction belongs to the categorised spend
// stream that fraud scoring looks at.
func (t Transaction) IsSpend() bool {
	return t.Category != ""
}

// Flagged reports whether the transaction was scored as fraud.
func (t Transaction) Flagged() bool {
	return t.FraudFlag != nil && *t.FraudFlag
}
