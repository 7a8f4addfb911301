package alerts

import (
	"context"
	"log/slog"

	interfaces "github.com/mandycs/CaixaBankCodingChallenge/internal/interfaces"
	"github.com/mandycs/CaixaBankCodingChallenge/internal/ledger"
	"github.com/mandycs/CaixaBankCodingChallenge/internal/models"
	"github.com/shopspring/decimal"
)

// Evaluate reports whether cfg fires for the given balance.
//
//	AMOUNT_REACHED: balance >= target - threshold
//	BALANCE_DROP:   balance < drop threshold
func Evaluate(balance decimal.Decimal, cfg models.AlertConfig) bool {
	switch cfg.Kind {
	case models.AlertAmountReached:
		return balance.GreaterThanOrEqual(cfg.TargetAmount.Sub(cfg.AlertThreshold))
	case models.AlertBalanceDrop:
		return balance.LessThan(cfg.BalanceDropThreshold)
	}
	return false
}

// Hook checks the alerts of every account a posting touched against its new
// balance and notifies the owner for each one that fires. Alerts fire on every
// qualifying posting.
func Hook(store interfaces.AlertStore, notifier interfaces.Notifier, logger *slog.Logger) ledger.Hook {
	if logger == nil {
		logger = slog.Default()
	}

	return func(ctx context.Context, p ledger.Posting) {
		for _, account := range p.Accounts {
			configs, err := store.AlertsByAccount(ctx, account.ID)
			if err != nil {
				logger.ErrorContext(ctx, "Failed to load alerts",
					slog.String("account_id", account.ID),
					slog.String("error", err.Error()))
				continue
			}

			for _, cfg := range configs {
				if !Evaluate(account.Balance, cfg) {
					continue
				}
				logger.InfoContext(ctx, "Alert triggered",
					slog.String("alert_id", cfg.ID),
					slog.String("account_id", account.ID),
					slog.String("kind", string(cfg.Kind)))
				notifier.Notify(ctx, account.OwnerID, cfg.Kind, details(account, cfg, p.Transaction))
			}
		}
	}
}

func details(account models.Account, cfg models.AlertConfig, tx models.Transaction) map[string]string {
	d := map[string]string{
		"alert_id":       cfg.ID,
		"account_id":     account.ID,
		"balance":        account.Balance.StringFixed(2),
		"transaction_id": tx.ID,
	}
	switch cfg.Kind {
	case models.AlertAmountReached:
		d["target_amount"] = cfg.TargetAmount.StringFixed(2)
	case models.AlertBalanceDrop:
		d["threshold"] = cfg.BalanceDropThreshold.StringFixed(2)
	}
	return d
}
