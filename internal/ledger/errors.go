package ledger

import "errors"

var (
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrInvalidSymbol          = errors.New("invalid symbol")
	ErrInvalidTransactionType = errors.New("invalid transaction type")
	ErrInsufficientFunds      = errors.New("insufficient funds")
	ErrInsufficientHoldings   = errors.New("insufficient holdings")
	ErrAccountNotFound        = errors.New("account not found")
	ErrTargetAccountNotFound  = errors.New("target account not found")
	ErrSameAccount            = errors.New("cannot transfer to the same account")
)
