package users

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"rentwheels/internal/apierr"
)

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository creates a new PostgresRepository.
func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const userColumns = `id, email, name, photo_url, role, created_at, updated_at`

// Upsert inserts or refreshes a user keyed by email. xmax = 0 identifies rows
// produced by the insert branch.
func (r *PostgresRepository) Upsert(ctx context.Context, user User) (User, bool, error) {
	const query = `
		INSERT INTO users (id, email, name, photo_url, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (email) DO UPDATE
		SET name = EXCLUDED.name, photo_url = EXCLUDED.photo_url, updated_at = EXCLUDED.updated_at
		RETURNING ` + userColumns + `, (xmax = 0) AS inserted
	`

	var row struct {
		User
		Inserted bool `db:"inserted"`
	}
	err := r.db.GetContext(ctx, &row, query,
		user.ID,
		user.Email,
		user.Name,
		user.PhotoURL,
		user.Role,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		return User{}, false, err
	}
	return row.User, row.Inserted, nil
}

// GetByEmail looks up a user by email.
func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE email = $1`

	var user User
	if err := r.db.GetContext(ctx, &user, query, email); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, apierr.ErrNotFound
		}
		return User{}, err
	}
	return user, nil
}

// List returns all users ordered by creation time.
func (r *PostgresRepository) List(ctx context.Context) ([]User, error) {
	const query = `SELECT ` + userColumns + ` FROM users ORDER BY created_at`

	var out []User
	if err := r.db.SelectContext(ctx, &out, query); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateRole changes the role of an existing user.
func (r *PostgresRepository) UpdateRole(ctx context.Context, email string, role Role) (User, error) {
	const query = `
		UPDATE users SET role = $2, updated_at = $3
		WHERE email = $1
		RETURNING ` + userColumns

	var user User
	if err := r.db.GetContext(ctx, &user, query, email, role, time.Now().UTC()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, apierr.ErrNotFound
		}
		return User{}, err
	}
	return user, nil
}
