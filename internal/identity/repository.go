package identity

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/khata-app/khata_backend/internal/business"
	"github.com/khata-app/khata_backend/internal/customer"
	"github.com/khata-app/khata_backend/internal/fault"
)

// Repository persists users. Registration writes the user row and its
// kind-specific profile as one unit: either both commit or neither does.
type Repository interface {
	CreateBusinessUser(ctx context.Context, user User, profile business.Business) error
	CreateCustomerUser(ctx context.Context, user User, profile customer.Customer) error
	FindByPhone(ctx context.Context, phone string) (User, error)
	FindByID(ctx context.Context, id string) (User, error)
	// Restore re-inserts a user row that went missing, keyed by id. No-op if
	// the row exists. Used by the ledger's actor-recovery path.
	Restore(ctx context.Context, user User) error
}

const userColumns = `id, name, phone, password, kind, created_at`

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed identity repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// CreateBusinessUser inserts the user and its business profile in one transaction.
func (r *PostgresRepository) CreateBusinessUser(ctx context.Context, user User, profile business.Business) error {
	return r.withTx(ctx, func(tx pgx.Tx) error {
		if err := insertUser(ctx, tx, user); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `INSERT INTO businesses (id, user_id, name, description, address, contact_phone, access_pin, profile_image, created_at)
            VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			profile.ID, profile.UserID, profile.Name, profile.Description, profile.Address,
			profile.ContactPhone, profile.AccessPIN, profile.ProfileImage, profile.CreatedAt.UTC())
		return err
	})
}

// CreateCustomerUser inserts the user and its customer profile in one transaction.
func (r *PostgresRepository) CreateCustomerUser(ctx context.Context, user User, profile customer.Customer) error {
	return r.withTx(ctx, func(tx pgx.Tx) error {
		if err := insertUser(ctx, tx, user); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `INSERT INTO customers (id, user_id, name, phone, whatsapp, email, address, profile_image, created_at)
            VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			profile.ID, profile.UserID, profile.Name, profile.Phone, profile.WhatsApp,
			profile.Email, profile.Address, profile.ProfileImage, profile.CreatedAt.UTC())
		return err
	})
}

// FindByPhone fetches a user by phone number.
func (r *PostgresRepository) FindByPhone(ctx context.Context, phone string) (User, error) {
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE phone = $1`, phone)
	return scanUser(row)
}

// FindByID fetches a user by identifier.
func (r *PostgresRepository) FindByID(ctx context.Context, id string) (User, error) {
	userID, err := uuid.Parse(id)
	if err != nil {
		return User{}, fault.ErrNotFound
	}
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, userID)
	return scanUser(row)
}

// Restore upserts a user row keyed by id.
func (r *PostgresRepository) Restore(ctx context.Context, user User) error {
	userID, err := uuid.Parse(user.ID)
	if err != nil {
		return fault.ErrInvalid
	}
	_, err = r.db.Exec(ctx, `INSERT INTO users (id, name, phone, password, kind, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (id) DO NOTHING`,
		userID, user.Name, user.Phone, user.Password, string(user.Kind), user.CreatedAt.UTC())
	return fault.FromPostgres(err)
}

func (r *PostgresRepository) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fault.FromPostgres(err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if err := fn(tx); err != nil {
		return fault.FromPostgres(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fault.FromPostgres(err)
	}
	return nil
}

func insertUser(ctx context.Context, tx pgx.Tx, user User) error {
	userID, err := uuid.Parse(user.ID)
	if err != nil {
		return fault.ErrInvalid
	}
	_, err = tx.Exec(ctx, `INSERT INTO users (id, name, phone, password, kind, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)`,
		userID, user.Name, user.Phone, user.Password, string(user.Kind), user.CreatedAt.UTC())
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (User, error) {
	var (
		u         User
		id        uuid.UUID
		kind      string
		createdAt time.Time
	)
	if err := row.Scan(&id, &u.Name, &u.Phone, &u.Password, &kind, &createdAt); err != nil {
		return User{}, fault.FromPostgres(err)
	}
	u.ID = id.String()
	u.Kind = Kind(kind)
	u.CreatedAt = createdAt.UTC()
	return u, nil
}
