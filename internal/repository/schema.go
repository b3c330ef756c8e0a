package repository

import (
	"context"
	"database/sql"
	"fmt"
)

var schemaStatements = []string{
	`CREATE SCHEMA IF NOT EXISTS payments`,
	`CREATE TABLE IF NOT EXISTS payments.credit_cards (
		id UUID PRIMARY KEY,
		card_number_hash VARCHAR(64) NOT NULL,
		card_number_encrypted TEXT NOT NULL,
		cardholder_name_encrypted TEXT NOT NULL,
		expiry_date_encrypted VARCHAR(255) NOT NULL,
		last_four_digits VARCHAR(4) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		CONSTRAINT credit_cards_card_number_hash_key UNIQUE (card_number_hash)
	)`,
	`CREATE TABLE IF NOT EXISTS payments.transactions (
		id UUID PRIMARY KEY,
		credit_card_id UUID NOT NULL REFERENCES payments.credit_cards(id),
		amount NUMERIC(12, 2) NOT NULL CHECK (amount > 0),
		description VARCHAR(255),
		status VARCHAR(20) NOT NULL CHECK (status IN ('APPROVED', 'DECLINED')),
		transaction_date TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS transactions_credit_card_id_idx ON payments.transactions (credit_card_id)`,
	`CREATE INDEX IF NOT EXISTS transactions_transaction_date_idx ON payments.transactions (transaction_date)`,
}

// EnsureSchema creates the payments schema and tables if they do not exist
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
