package infra

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schemaStatements are applied in order on startup. All statements are
// idempotent so a restart against an existing database is a no-op.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY,
		name TEXT NOT NULL,
		phone TEXT NOT NULL,
		password TEXT NOT NULL,
		kind TEXT NOT NULL CHECK (kind IN ('business', 'customer')),
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS users_phone_key ON users (phone)`,

	`CREATE TABLE IF NOT EXISTS businesses (
		id UUID PRIMARY KEY,
		user_id UUID NOT NULL REFERENCES users (id),
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		address TEXT NOT NULL DEFAULT '',
		contact_phone TEXT NOT NULL DEFAULT '',
		access_pin TEXT NOT NULL,
		profile_image TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS businesses_user_id_idx ON businesses (user_id)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS businesses_access_pin_key ON businesses (access_pin)`,

	`CREATE TABLE IF NOT EXISTS customers (
		id UUID PRIMARY KEY,
		user_id UUID NOT NULL REFERENCES users (id),
		name TEXT NOT NULL,
		phone TEXT NOT NULL,
		whatsapp TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		address TEXT NOT NULL DEFAULT '',
		profile_image TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS customers_user_id_idx ON customers (user_id)`,

	`CREATE TABLE IF NOT EXISTS customer_credits (
		id UUID PRIMARY KEY,
		business_id UUID NOT NULL REFERENCES businesses (id),
		customer_id UUID NOT NULL REFERENCES customers (id),
		current_balance NUMERIC(12,2) NOT NULL DEFAULT 0,
		last_reminder_date TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (business_id, customer_id)
	)`,

	`CREATE TABLE IF NOT EXISTS transactions (
		id UUID PRIMARY KEY,
		business_id UUID NOT NULL,
		customer_id UUID NOT NULL,
		amount NUMERIC(12,2) NOT NULL CHECK (amount > 0),
		kind TEXT NOT NULL CHECK (kind IN ('credit', 'payment')),
		note TEXT NOT NULL DEFAULT '',
		receipt_url TEXT NOT NULL DEFAULT '',
		created_by UUID NOT NULL REFERENCES users (id),
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		FOREIGN KEY (business_id, customer_id)
			REFERENCES customer_credits (business_id, customer_id)
	)`,
	`CREATE INDEX IF NOT EXISTS transactions_pair_created_idx
		ON transactions (business_id, customer_id, created_at)`,

	`CREATE TABLE IF NOT EXISTS reminders (
		id UUID PRIMARY KEY,
		business_id UUID NOT NULL REFERENCES businesses (id),
		customer_id UUID NOT NULL REFERENCES customers (id),
		sent_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		sent_by UUID NOT NULL REFERENCES users (id),
		channel TEXT NOT NULL,
		message TEXT NOT NULL DEFAULT ''
	)`,

	// The trigger is the single writer of current_balance on the transaction
	// path: credit adds, payment subtracts. Application code must not adjust
	// the balance again after an insert.
	`CREATE OR REPLACE FUNCTION apply_transaction_to_balance() RETURNS trigger AS $$
	BEGIN
		IF NEW.kind = 'credit' THEN
			UPDATE customer_credits
			SET current_balance = current_balance + NEW.amount, updated_at = now()
			WHERE business_id = NEW.business_id AND customer_id = NEW.customer_id;
		ELSE
			UPDATE customer_credits
			SET current_balance = current_balance - NEW.amount, updated_at = now()
			WHERE business_id = NEW.business_id AND customer_id = NEW.customer_id;
		END IF;
		RETURN NEW;
	END;
	$$ LANGUAGE plpgsql`,
	`DROP TRIGGER IF EXISTS transactions_apply_balance ON transactions`,
	`CREATE TRIGGER transactions_apply_balance
		AFTER INSERT ON transactions
		FOR EACH ROW EXECUTE FUNCTION apply_transaction_to_balance()`,
}

// Migrate applies the schema, indices and the balance trigger.
func Migrate(ctx context.Context, db *pgxpool.Pool) error {
	for _, stmt := range schemaStatements {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
