package auth

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aura-pulse/backend/internal/models"
)

// AdminStore is the persistence the auth handler needs.
type AdminStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Admin, error)
	GetByEmail(ctx context.Context, email string) (*models.Admin, error)
	Create(ctx context.Context, email, passwordHash, fullName string, role models.Role) (*models.Admin, error)
}

// Repository handles admin persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an auth repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const adminColumns = `id, email, password_hash, full_name, role, created_at, updated_at`

func scanAdmin(row pgx.Row) (*models.Admin, error) {
	var a models.Admin
	var role string
	err := row.Scan(&a.ID, &a.Email, &a.Password, &a.FullName, &role, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrAdminNotFound
	}
	if err != nil {
		return nil, err
	}
	a.Role = models.Role(role)
	return &a, nil
}

// GetByID returns an admin by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Admin, error) {
	return scanAdmin(r.pool.QueryRow(ctx, `SELECT `+adminColumns+` FROM admins WHERE id = $1`, id))
}

// GetByEmail returns an admin by email.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*models.Admin, error) {
	return scanAdmin(r.pool.QueryRow(ctx, `SELECT `+adminColumns+` FROM admins WHERE lower(email) = lower($1)`, email))
}

// Create inserts a new admin.
func (r *Repository) Create(ctx context.Context, email, passwordHash, fullName string, role models.Role) (*models.Admin, error) {
	const q = `INSERT INTO admins (id, email, password_hash, full_name, role)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + adminColumns
	return scanAdmin(r.pool.QueryRow(ctx, q, uuid.New(), email, passwordHash, fullName, string(role)))
}
