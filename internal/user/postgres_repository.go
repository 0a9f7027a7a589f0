package user

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository implements Repository using pgxpool.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new Repository backed by the given connection pool.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &PostgresRepository{pool: pool}
}

// Upsert inserts the user or refreshes the display name of an existing one.
func (r *PostgresRepository) Upsert(ctx context.Context, u *User) error {
	query := `
		INSERT INTO users (tg_id, name)
		VALUES ($1, $2)
		ON CONFLICT (tg_id) DO UPDATE SET name = EXCLUDED.name, updated_at = now()
		RETURNING created_at, updated_at`

	err := r.pool.QueryRow(ctx, query, u.TgID, u.Name).Scan(&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upserting user: %w", err)
	}

	return nil
}

// GetByID retrieves a single user by platform id.
func (r *PostgresRepository) GetByID(ctx context.Context, tgID int64) (*User, error) {
	query := `
		SELECT tg_id, name, created_at, updated_at
		FROM users
		WHERE tg_id = $1`

	var u User
	err := r.pool.QueryRow(ctx, query, tgID).Scan(&u.TgID, &u.Name, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("querying user: %w", err)
	}

	return &u, nil
}
