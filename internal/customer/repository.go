package customer

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/khata-app/khata_backend/internal/fault"
)

// Repository persists customer profiles.
type Repository interface {
	Create(ctx context.Context, c Customer) error
	ByID(ctx context.Context, id string) (Customer, error)
	ByUserID(ctx context.Context, userID string) (Customer, error)
}

const customerColumns = `id, user_id, name, phone, whatsapp, email, address, profile_image, created_at`

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed customer repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a customer profile.
func (r *PostgresRepository) Create(ctx context.Context, c Customer) error {
	id, err := uuid.Parse(c.ID)
	if err != nil {
		return fault.ErrInvalid
	}
	userID, err := uuid.Parse(c.UserID)
	if err != nil {
		return fault.ErrInvalid
	}
	_, err = r.db.Exec(ctx, `INSERT INTO customers (id, user_id, name, phone, whatsapp, email, address, profile_image, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		id, userID, c.Name, c.Phone, c.WhatsApp, c.Email, c.Address, c.ProfileImage, c.CreatedAt.UTC())
	return fault.FromPostgres(err)
}

// ByID fetches a customer by identifier.
func (r *PostgresRepository) ByID(ctx context.Context, id string) (Customer, error) {
	customerID, err := uuid.Parse(id)
	if err != nil {
		return Customer{}, fault.ErrNotFound
	}
	row := r.db.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = $1`, customerID)
	return scanCustomer(row)
}

// ByUserID fetches the customer profile owned by the given user.
func (r *PostgresRepository) ByUserID(ctx context.Context, userID string) (Customer, error) {
	ownerID, err := uuid.Parse(userID)
	if err != nil {
		return Customer{}, fault.ErrNotFound
	}
	row := r.db.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE user_id = $1`, ownerID)
	return scanCustomer(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCustomer(row rowScanner) (Customer, error) {
	var (
		c         Customer
		id        uuid.UUID
		userID    uuid.UUID
		createdAt time.Time
	)
	if err := row.Scan(&id, &userID, &c.Name, &c.Phone, &c.WhatsApp, &c.Email, &c.Address, &c.ProfileImage, &createdAt); err != nil {
		return Customer{}, fault.FromPostgres(err)
	}
	c.ID = id.String()
	c.UserID = userID.String()
	c.CreatedAt = createdAt.UTC()
	return c, nil
}
