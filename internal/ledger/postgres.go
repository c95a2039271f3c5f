package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/khata-app/khata_backend/internal/fault"
)

// PostgresStore persists the ledger in PostgreSQL. The balance trigger on the
// transactions table is the single writer of current_balance.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore constructs a Postgres-backed ledger store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

const pairColumns = `id, business_id, customer_id, current_balance, last_reminder_date, created_at, updated_at`

// EnsurePair returns the credit pair for (business, customer), creating it
// with a zero balance when absent. Idempotent under concurrent callers: the
// unique pair constraint makes the losing insert a no-op.
func (s *PostgresStore) EnsurePair(ctx context.Context, businessID, customerID string) (CreditPair, error) {
	bID, cID, err := parsePairIDs(businessID, customerID)
	if err != nil {
		return CreditPair{}, err
	}
	_, err = s.db.Exec(ctx, `INSERT INTO customer_credits (id, business_id, customer_id, current_balance)
        VALUES ($1, $2, $3, 0)
        ON CONFLICT (business_id, customer_id) DO NOTHING`, uuid.New(), bID, cID)
	if err != nil {
		return CreditPair{}, fault.FromPostgres(err)
	}
	return s.PairFor(ctx, businessID, customerID)
}

// PairFor fetches the credit pair for (business, customer).
func (s *PostgresStore) PairFor(ctx context.Context, businessID, customerID string) (CreditPair, error) {
	bID, cID, err := parsePairIDs(businessID, customerID)
	if err != nil {
		return CreditPair{}, err
	}
	row := s.db.QueryRow(ctx, `SELECT `+pairColumns+` FROM customer_credits
        WHERE business_id = $1 AND customer_id = $2`, bID, cID)
	return scanPair(row)
}

// PairsForBusiness lists a business's pairs, most recently active first.
func (s *PostgresStore) PairsForBusiness(ctx context.Context, businessID string) ([]CreditPair, error) {
	bID, err := uuid.Parse(businessID)
	if err != nil {
		return nil, fault.ErrNotFound
	}
	rows, err := s.db.Query(ctx, `SELECT `+pairColumns+` FROM customer_credits
        WHERE business_id = $1 ORDER BY updated_at DESC`, bID)
	if err != nil {
		return nil, fault.FromPostgres(err)
	}
	defer rows.Close()
	return collectPairs(rows)
}

// PairsForCustomer lists the businesses a customer is linked to.
func (s *PostgresStore) PairsForCustomer(ctx context.Context, customerID string) ([]CreditPair, error) {
	cID, err := uuid.Parse(customerID)
	if err != nil {
		return nil, fault.ErrNotFound
	}
	rows, err := s.db.Query(ctx, `SELECT `+pairColumns+` FROM customer_credits
        WHERE customer_id = $1 ORDER BY updated_at DESC`, cID)
	if err != nil {
		return nil, fault.FromPostgres(err)
	}
	defer rows.Close()
	return collectPairs(rows)
}

// Append inserts a transaction row. The insert trigger applies the amount to
// the pair balance in the same commit; the returned transaction carries the
// server timestamp.
func (s *PostgresStore) Append(ctx context.Context, t Transaction) (Transaction, error) {
	id, err := uuid.Parse(t.ID)
	if err != nil {
		return Transaction{}, fault.ErrInvalid
	}
	bID, cID, err := parsePairIDs(t.BusinessID, t.CustomerID)
	if err != nil {
		return Transaction{}, err
	}
	actorID, err := uuid.Parse(t.CreatedBy)
	if err != nil {
		return Transaction{}, fault.ErrInvalid
	}

	var createdAt time.Time
	err = s.db.QueryRow(ctx, `INSERT INTO transactions (id, business_id, customer_id, amount, kind, note, receipt_url, created_by)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        RETURNING created_at`,
		id, bID, cID, t.Amount, string(t.Kind), t.Note, t.ReceiptURL, actorID).Scan(&createdAt)
	if err != nil {
		return Transaction{}, fault.FromPostgres(err)
	}
	t.CreatedAt = createdAt.UTC()
	return t, nil
}

const transactionColumns = `id, business_id, customer_id, amount, kind, note, receipt_url, created_by, created_at`

// History returns the pair's transactions, newest first.
func (s *PostgresStore) History(ctx context.Context, businessID, customerID string) ([]Transaction, error) {
	bID, cID, err := parsePairIDs(businessID, customerID)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.Query(ctx, `SELECT `+transactionColumns+` FROM transactions
        WHERE business_id = $1 AND customer_id = $2
        ORDER BY created_at DESC`, bID, cID)
	if err != nil {
		return nil, fault.FromPostgres(err)
	}
	defer rows.Close()
	return collectTransactions(rows)
}

// RecentForBusiness returns the business's latest transactions across all pairs.
func (s *PostgresStore) RecentForBusiness(ctx context.Context, businessID string, limit int) ([]Transaction, error) {
	bID, err := uuid.Parse(businessID)
	if err != nil {
		return nil, fault.ErrNotFound
	}
	rows, err := s.db.Query(ctx, `SELECT `+transactionColumns+` FROM transactions
        WHERE business_id = $1
        ORDER BY created_at DESC
        LIMIT $2`, bID, limit)
	if err != nil {
		return nil, fault.FromPostgres(err)
	}
	defer rows.Close()
	return collectTransactions(rows)
}

// Aggregates returns the pair's summed credit and payment amounts.
func (s *PostgresStore) Aggregates(ctx context.Context, businessID, customerID string) (decimal.Decimal, decimal.Decimal, error) {
	bID, cID, err := parsePairIDs(businessID, customerID)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	var credit, payment decimal.Decimal
	err = s.db.QueryRow(ctx, `SELECT
        COALESCE(SUM(amount) FILTER (WHERE kind = 'credit'), 0),
        COALESCE(SUM(amount) FILTER (WHERE kind = 'payment'), 0)
        FROM transactions WHERE business_id = $1 AND customer_id = $2`, bID, cID).Scan(&credit, &payment)
	if err != nil {
		return decimal.Zero, decimal.Zero, fault.FromPostgres(err)
	}
	return credit, payment, nil
}

// Summary computes the business-wide aggregates from committed rows.
func (s *PostgresStore) Summary(ctx context.Context, businessID string) (BusinessSummary, error) {
	bID, err := uuid.Parse(businessID)
	if err != nil {
		return BusinessSummary{}, fault.ErrNotFound
	}
	var out BusinessSummary
	err = s.db.QueryRow(ctx, `SELECT
        (SELECT COUNT(*) FROM customer_credits WHERE business_id = $1),
        (SELECT COALESCE(SUM(amount), 0) FROM transactions WHERE business_id = $1 AND kind = 'credit'),
        (SELECT COALESCE(SUM(current_balance), 0) FROM customer_credits WHERE business_id = $1 AND current_balance > 0)`,
		bID).Scan(&out.Customers, &out.TotalCredit, &out.Outstanding)
	if err != nil {
		return BusinessSummary{}, fault.FromPostgres(err)
	}
	return out, nil
}

// Recompute overwrites the pair's stored balance with the signed sum of its
// transaction log. Idempotent; used to repair drift.
func (s *PostgresStore) Recompute(ctx context.Context, businessID, customerID string) (decimal.Decimal, error) {
	bID, cID, err := parsePairIDs(businessID, customerID)
	if err != nil {
		return decimal.Zero, err
	}
	var balance decimal.Decimal
	err = s.db.QueryRow(ctx, `UPDATE customer_credits cc
        SET current_balance = COALESCE((
            SELECT SUM(CASE WHEN t.kind = 'credit' THEN t.amount ELSE -t.amount END)
            FROM transactions t
            WHERE t.business_id = cc.business_id AND t.customer_id = cc.customer_id
        ), 0), updated_at = now()
        WHERE cc.business_id = $1 AND cc.customer_id = $2
        RETURNING current_balance`, bID, cID).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, fmt.Errorf("%w: no such credit pair", fault.ErrNotFound)
		}
		return decimal.Zero, fault.FromPostgres(err)
	}
	return balance, nil
}

// RecomputeAll recomputes every pair and returns how many rows were touched.
func (s *PostgresStore) RecomputeAll(ctx context.Context) (int, error) {
	cmd, err := s.db.Exec(ctx, `UPDATE customer_credits cc
        SET current_balance = COALESCE((
            SELECT SUM(CASE WHEN t.kind = 'credit' THEN t.amount ELSE -t.amount END)
            FROM transactions t
            WHERE t.business_id = cc.business_id AND t.customer_id = cc.customer_id
        ), 0), updated_at = now()`)
	if err != nil {
		return 0, fault.FromPostgres(err)
	}
	return int(cmd.RowsAffected()), nil
}

// RecordReminder persists the reminder trace and stamps the pair in one
// transaction.
func (s *PostgresStore) RecordReminder(ctx context.Context, rem Reminder) error {
	id, err := uuid.Parse(rem.ID)
	if err != nil {
		return fault.ErrInvalid
	}
	bID, cID, err := parsePairIDs(rem.BusinessID, rem.CustomerID)
	if err != nil {
		return err
	}
	actorID, err := uuid.Parse(rem.SentBy)
	if err != nil {
		return fault.ErrInvalid
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fault.FromPostgres(err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if _, err := tx.Exec(ctx, `INSERT INTO reminders (id, business_id, customer_id, sent_at, sent_by, channel, message)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id, bID, cID, rem.SentAt.UTC(), actorID, rem.Channel, rem.Message); err != nil {
		return fault.FromPostgres(err)
	}
	if _, err := tx.Exec(ctx, `UPDATE customer_credits SET last_reminder_date = $1
        WHERE business_id = $2 AND customer_id = $3`, rem.SentAt.UTC(), bID, cID); err != nil {
		return fault.FromPostgres(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fault.FromPostgres(err)
	}
	return nil
}

func parsePairIDs(businessID, customerID string) (uuid.UUID, uuid.UUID, error) {
	bID, err := uuid.Parse(businessID)
	if err != nil {
		return uuid.Nil, uuid.Nil, fault.ErrNotFound
	}
	cID, err := uuid.Parse(customerID)
	if err != nil {
		return uuid.Nil, uuid.Nil, fault.ErrNotFound
	}
	return bID, cID, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPair(row rowScanner) (CreditPair, error) {
	var (
		p            CreditPair
		id           uuid.UUID
		bID, cID     uuid.UUID
		lastReminder *time.Time
		createdAt    time.Time
		updatedAt    time.Time
	)
	if err := row.Scan(&id, &bID, &cID, &p.Balance, &lastReminder, &createdAt, &updatedAt); err != nil {
		return CreditPair{}, fault.FromPostgres(err)
	}
	p.ID = id.String()
	p.BusinessID = bID.String()
	p.CustomerID = cID.String()
	p.LastReminder = lastReminder
	p.CreatedAt = createdAt.UTC()
	p.UpdatedAt = updatedAt.UTC()
	return p, nil
}

func collectPairs(rows pgx.Rows) ([]CreditPair, error) {
	var out []CreditPair
	for rows.Next() {
		p, err := scanPair(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fault.FromPostgres(err)
	}
	return out, nil
}

func collectTransactions(rows pgx.Rows) ([]Transaction, error) {
	var out []Transaction
	for rows.Next() {
		var (
			t         Transaction
			id        uuid.UUID
			bID, cID  uuid.UUID
			kind      string
			actorID   uuid.UUID
			createdAt time.Time
		)
		if err := rows.Scan(&id, &bID, &cID, &t.Amount, &kind, &t.Note, &t.ReceiptURL, &actorID, &createdAt); err != nil {
			return nil, fault.FromPostgres(err)
		}
		t.ID = id.String()
		t.BusinessID = bID.String()
		t.CustomerID = cID.String()
		t.Kind = Kind(kind)
		t.CreatedBy = actorID.String()
		t.CreatedAt = createdAt.UTC()
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fault.FromPostgres(err)
	}
	return out, nil
}
