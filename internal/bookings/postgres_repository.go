package bookings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"rentwheels/internal/apierr"
)

// PostgresRepository persists bookings to Postgres.
type PostgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository constructs a repository backed by sqlx.
func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const bookingColumns = `id, car_id, email, car_name, category, rent_price, image, location, provider_email, start_date, end_date, comment, status, created_at`

func (r *PostgresRepository) Create(ctx context.Context, booking Booking) (Booking, error) {
	const insert = `INSERT INTO bookings (` + bookingColumns + `)
VALUES (:id, :car_id, :email, :car_name, :category, :rent_price, :image, :location, :provider_email, :start_date, :end_date, :comment, :status, :created_at)`

	if _, err := r.db.NamedExecContext(ctx, insert, booking); err != nil {
		return Booking{}, fmt.Errorf("insert booking: %w", err)
	}
	return booking, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id uuid.UUID) (Booking, error) {
	var booking Booking
	if err := r.db.GetContext(ctx, &booking, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Booking{}, apierr.ErrNotFound
		}
		return Booking{}, fmt.Errorf("get booking: %w", err)
	}
	return booking, nil
}

func (r *PostgresRepository) ListByEmail(ctx context.Context, email string) ([]Booking, error) {
	out := []Booking{}
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE email = $1 ORDER BY created_at DESC`
	if err := r.db.SelectContext(ctx, &out, query, email); err != nil {
		return nil, fmt.Errorf("list bookings by email: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) ExistsForCar(ctx context.Context, carID uuid.UUID) (bool, error) {
	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM bookings WHERE car_id = $1)`, carID); err != nil {
		return false, fmt.Errorf("check bookings for car: %w", err)
	}
	return exists, nil
}

func (r *PostgresRepository) List(ctx context.Context, offset, limit int) ([]Booking, int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM bookings`); err != nil {
		return nil, 0, fmt.Errorf("count bookings: %w", err)
	}

	out := []Booking{}
	query := `SELECT ` + bookingColumns + ` FROM bookings ORDER BY created_at DESC, id LIMIT $1 OFFSET $2`
	if err := r.db.SelectContext(ctx, &out, query, limit, offset); err != nil {
		return nil, 0, fmt.Errorf("list bookings: %w", err)
	}
	return out, total, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM bookings WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete booking: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return apierr.ErrNotFound
	}
	return nil
}
