package sqlstore

import (
	"context"
	"fmt"
	"strings"
)

const schemaTemplate = `
CREATE TABLE IF NOT EXISTS accounts (
	id          TEXT PRIMARY KEY,
	owner_id    TEXT NOT NULL,
	balance     {{decimal}} NOT NULL,
	created_at  {{timestamp}} NOT NULL
);

CREATE TABLE IF NOT EXISTS asset_holdings (
	account_id    TEXT NOT NULL REFERENCES accounts(id),
	symbol        TEXT NOT NULL,
	quantity      {{decimal}} NOT NULL,
	average_cost  {{decimal}} NOT NULL,
	updated_at    {{timestamp}} NOT NULL,
	PRIMARY KEY (account_id, symbol)
);

CREATE TABLE IF NOT EXISTS transactions (
	id              TEXT PRIMARY KEY,
	type            TEXT NOT NULL,
	amount          {{decimal}} NOT NULL,
	occurred_at     {{timestamp}} NOT NULL,
	source_account  TEXT NOT NULL REFERENCES accounts(id),
	target_account  TEXT REFERENCES accounts(id),
	symbol          TEXT NOT NULL DEFAULT '',
	quantity        {{decimal}} NOT NULL,
	price           {{decimal}} NOT NULL,
	category        TEXT NOT NULL DEFAULT '',
	fraud_flag      BOOLEAN
);

CREATE INDEX IF NOT EXISTS idx_transactions_source ON transactions (source_account, occurred_at);
CREATE INDEX IF NOT EXISTS idx_transactions_target ON transactions (target_account);

CREATE TABLE IF NOT EXISTS subscriptions (
	id                TEXT PRIMARY KEY,
	account_id        TEXT NOT NULL REFERENCES accounts(id),
	amount            {{decimal}} NOT NULL,
	interval_seconds  BIGINT NOT NULL,
	last_executed     {{timestamp}} NOT NULL,
	is_active         BOOLEAN NOT NULL
);

CREATE TABLE IF NOT EXISTS auto_invest (
	account_id     TEXT PRIMARY KEY REFERENCES accounts(id),
	is_active      BOOLEAN NOT NULL,
	last_executed  {{timestamp}} NOT NULL
);

CREATE TABLE IF NOT EXISTS alert_configs (
	id                      TEXT PRIMARY KEY,
	account_id              TEXT NOT NULL REFERENCES accounts(id),
	kind                    TEXT NOT NULL,
	target_amount           {{decimal}} NOT NULL,
	alert_threshold         {{decimal}} NOT NULL,
	balance_drop_threshold  {{decimal}} NOT NULL
);

CREATE TABLE IF NOT EXISTS recurring_expenses (
	id          TEXT PRIMARY KEY,
	account_id  TEXT NOT NULL REFERENCES accounts(id),
	name        TEXT NOT NULL,
	amount      {{decimal}} NOT NULL,
	frequency   TEXT NOT NULL,
	start_date  {{timestamp}} NOT NULL
);
`

// schema renders the DDL for a dialect. SQLite keeps decimals as TEXT so
// that numeric affinity never turns them into floats.
func (d Dialect) schema() string {
	decimalType, timestampType := "NUMERIC", "TIMESTAMPTZ"
	if d == SQLite {
		decimalType, timestampType = "TEXT", "TIMESTAMP"
	}
	return strings.NewReplacer(
		"{{decimal}}", decimalType,
		"{{timestamp}}", timestampType,
	).Replace(schemaTemplate)
}

// Migrate creates any missing tables. It is safe to run on every start.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, s.dialect.schema()); err != nil {
		return fmt.Errorf("failed to apply %s schema: %w", s.dialect, err)
	}
	return nil
}
