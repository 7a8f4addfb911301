package events

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionPosted struct {
	TransactionID string          `json:"transaction_id"`
	Type          string          `json:"type"`
	SourceAccount string          `json:"source_account"`
	TargetAccount string          `json:"target_account,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	Symbol        string          `json:"symbol,omitempty"`
	FraudFlag     bool            `json:"fraud_flag"`
	OccurredAt    time.Time       `json:"occurred_at"`
}
