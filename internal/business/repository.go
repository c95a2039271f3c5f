package business

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/khata-app/khata_backend/internal/fault"
)

// Repository persists business profiles.
type Repository interface {
	Create(ctx context.Context, b Business) error
	ByID(ctx context.Context, id string) (Business, error)
	ByUserID(ctx context.Context, userID string) (Business, error)
	ByPIN(ctx context.Context, pin string) (Business, error)
	UpdatePIN(ctx context.Context, id, pin string) error
}

const businessColumns = `id, user_id, name, description, address, contact_phone, access_pin, profile_image, created_at`

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed business repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a business profile.
func (r *PostgresRepository) Create(ctx context.Context, b Business) error {
	id, err := uuid.Parse(b.ID)
	if err != nil {
		return fault.ErrInvalid
	}
	userID, err := uuid.Parse(b.UserID)
	if err != nil {
		return fault.ErrInvalid
	}
	_, err = r.db.Exec(ctx, `INSERT INTO businesses (id, user_id, name, description, address, contact_phone, access_pin, profile_image, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		id, userID, b.Name, b.Description, b.Address, b.ContactPhone, b.AccessPIN, b.ProfileImage, b.CreatedAt.UTC())
	return fault.FromPostgres(err)
}

// ByID fetches a business by identifier.
func (r *PostgresRepository) ByID(ctx context.Context, id string) (Business, error) {
	businessID, err := uuid.Parse(id)
	if err != nil {
		return Business{}, fault.ErrNotFound
	}
	row := r.db.QueryRow(ctx, `SELECT `+businessColumns+` FROM businesses WHERE id = $1`, businessID)
	return scanBusiness(row)
}

// ByUserID fetches the business owned by the given user.
func (r *PostgresRepository) ByUserID(ctx context.Context, userID string) (Business, error) {
	ownerID, err := uuid.Parse(userID)
	if err != nil {
		return Business{}, fault.ErrNotFound
	}
	row := r.db.QueryRow(ctx, `SELECT `+businessColumns+` FROM businesses WHERE user_id = $1`, ownerID)
	return scanBusiness(row)
}

// ByPIN resolves the business holding an access PIN.
func (r *PostgresRepository) ByPIN(ctx context.Context, pin string) (Business, error) {
	row := r.db.QueryRow(ctx, `SELECT `+businessColumns+` FROM businesses WHERE access_pin = $1`, pin)
	return scanBusiness(row)
}

// UpdatePIN stores a freshly issued access PIN.
func (r *PostgresRepository) UpdatePIN(ctx context.Context, id, pin string) error {
	businessID, err := uuid.Parse(id)
	if err != nil {
		return fault.ErrNotFound
	}
	cmd, err := r.db.Exec(ctx, `UPDATE businesses SET access_pin = $1 WHERE id = $2`, pin, businessID)
	if err != nil {
		return fault.FromPostgres(err)
	}
	if cmd.RowsAffected() == 0 {
		return fault.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBusiness(row rowScanner) (Business, error) {
	var (
		b         Business
		id        uuid.UUID
		userID    uuid.UUID
		createdAt time.Time
	)
	if err := row.Scan(&id, &userID, &b.Name, &b.Description, &b.Address, &b.ContactPhone, &b.AccessPIN, &b.ProfileImage, &createdAt); err != nil {
		return Business{}, fault.FromPostgres(err)
	}
	b.ID = id.String()
	b.UserID = userID.String()
	b.CreatedAt = createdAt.UTC()
	return b, nil
}
