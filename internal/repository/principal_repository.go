package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/incident-gateway/internal/domain"
)

// PrincipalRepository defines persistence access for registered accounts.
// Emails are unique per role, not globally: the same address may exist
// once as a user and once as an admin.
type PrincipalRepository interface {
	Create(ctx context.Context, principal *domain.Principal) error
	GetByEmail(ctx context.Context, role domain.Role, email string) (*domain.Principal, error)
}

type principalRepository struct {
	pool *pgxpool.Pool
}

// NewPrincipalRepository returns a Postgres-backed implementation.
func NewPrincipalRepository(pool *pgxpool.Pool) PrincipalRepository {
	return &principalRepository{pool: pool}
}

func (r *principalRepository) Create(ctx context.Context, principal *domain.Principal) error {
	const query = `
        INSERT INTO principals (role, name, email, password_hash)
        VALUES ($1, $2, $3, $4)
        RETURNING id, created_at`

	return r.pool.QueryRow(ctx, query,
		principal.Role,
		principal.Name,
		principal.Email,
		principal.PasswordHash,
	).Scan(&principal.ID, &principal.CreatedAt)
}

func (r *principalRepository) GetByEmail(ctx context.Context, role domain.Role, email string) (*domain.Principal, error) {
	const query = `
        SELECT id, role, name, email, password_hash, created_at
        FROM principals WHERE role=$1 AND email=$2`

	var principal domain.Principal
	if err := r.pool.QueryRow(ctx, query, role, email).Scan(
		&principal.ID,
		&principal.Role,
		&principal.Name,
		&principal.Email,
		&principal.PasswordHash,
		&principal.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &principal, nil
}
