package cars

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"rentwheels/internal/apierr"
)

// PostgresRepository persists cars to a Postgres database.
type PostgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository constructs a repository backed by sqlx.
func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const carColumns = `id, name, model, category, price_per_day, location, image, description, features, status, provider_name, provider_email, created_at, updated_at`

type carRow struct {
	ID            uuid.UUID      `db:"id"`
	Name          string         `db:"name"`
	Model         string         `db:"model"`
	Category      Category       `db:"category"`
	PricePerDay   float64        `db:"price_per_day"`
	Location      string         `db:"location"`
	Image         string         `db:"image"`
	Description   string         `db:"description"`
	Features      pq.StringArray `db:"features"`
	Status        Status         `db:"status"`
	ProviderName  string         `db:"provider_name"`
	ProviderEmail string         `db:"provider_email"`
	CreatedAt     time.Time      `db:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at"`
}

func newCarRow(car Car) carRow {
	features := car.Features
	if features == nil {
		features = []string{}
	}
	return carRow{
		ID:            car.ID,
		Name:          car.Name,
		Model:         car.Model,
		Category:      car.Category,
		PricePerDay:   car.PricePerDay,
		Location:      car.Location,
		Image:         car.Image,
		Description:   car.Description,
		Features:      pq.StringArray(features),
		Status:        car.Status,
		ProviderName:  car.ProviderName,
		ProviderEmail: car.ProviderEmail,
		CreatedAt:     car.CreatedAt,
		UpdatedAt:     car.UpdatedAt,
	}
}

func (row carRow) toCar() Car {
	features := []string(row.Features)
	if features == nil {
		features = []string{}
	}
	return Car{
		ID:            row.ID,
		Name:          row.Name,
		Model:         row.Model,
		Category:      row.Category,
		PricePerDay:   row.PricePerDay,
		Location:      row.Location,
		Image:         row.Image,
		Description:   row.Description,
		Features:      features,
		Status:        row.Status,
		ProviderName:  row.ProviderName,
		ProviderEmail: row.ProviderEmail,
		CreatedAt:     row.CreatedAt,
		UpdatedAt:     row.UpdatedAt,
	}
}

// Create inserts a new row and returns the stored representation.
func (r *PostgresRepository) Create(ctx context.Context, car Car) (Car, error) {
	const insert = `INSERT INTO cars (` + carColumns + `)
VALUES (:id, :name, :model, :category, :price_per_day, :location, :image, :description, :features, :status, :provider_name, :provider_email, :created_at, :updated_at)`

	if _, err := r.db.NamedExecContext(ctx, insert, newCarRow(car)); err != nil {
		return Car{}, fmt.Errorf("insert car: %w", err)
	}
	return r.Get(ctx, car.ID)
}

// Get retrieves a row by primary key.
func (r *PostgresRepository) Get(ctx context.Context, id uuid.UUID) (Car, error) {
	var row carRow
	if err := r.db.GetContext(ctx, &row, `SELECT `+carColumns+` FROM cars WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Car{}, apierr.ErrNotFound
		}
		return Car{}, fmt.Errorf("get car: %w", err)
	}
	return row.toCar(), nil
}

// List returns cars filtered by opts, oldest first. Ordering and limits are
// applied by the service.
func (r *PostgresRepository) List(ctx context.Context, opts ListOptions) ([]Car, error) {
	query := `SELECT ` + carColumns + ` FROM cars`
	clauses := []string{}
	args := []any{}

	if opts.Category != nil {
		clauses = append(clauses, fmt.Sprintf("category = $%d", len(args)+1))
		args = append(args, *opts.Category)
	}
	if opts.Status != nil {
		clauses = append(clauses, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, *opts.Status)
	}
	if opts.ProviderEmail != nil {
		clauses = append(clauses, fmt.Sprintf("provider_email = $%d", len(args)+1))
		args = append(args, *opts.ProviderEmail)
	}
	if opts.Query != nil {
		if search := strings.TrimSpace(*opts.Query); search != "" {
			placeholder := fmt.Sprintf("$%d", len(args)+1)
			clauses = append(clauses, "(name ILIKE "+placeholder+" OR model ILIKE "+placeholder+" OR location ILIKE "+placeholder+" OR description ILIKE "+placeholder+")")
			args = append(args, "%"+search+"%")
		}
	}

	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at ASC"

	rows := []carRow{}
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list cars: %w", err)
	}

	out := make([]Car, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toCar())
	}
	return out, nil
}

// Update modifies an existing row.
func (r *PostgresRepository) Update(ctx context.Context, car Car) (Car, error) {
	const update = `UPDATE cars SET
    name = :name,
    model = :model,
    category = :category,
    price_per_day = :price_per_day,
    location = :location,
    image = :image,
    description = :description,
    features = :features,
    updated_at = :updated_at
WHERE id = :id`

	res, err := r.db.NamedExecContext(ctx, update, newCarRow(car))
	if err != nil {
		return Car{}, fmt.Errorf("update car: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return Car{}, apierr.ErrNotFound
	}
	return r.Get(ctx, car.ID)
}

// Delete removes a row by ID.
func (r *PostgresRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM cars WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete car: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return apierr.ErrNotFound
	}
	return nil
}

// TransitionStatus flips the status with a conditional update so concurrent
// bookings cannot both succeed.
func (r *PostgresRepository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to Status) (Car, error) {
	const update = `UPDATE cars SET status = $3, updated_at = $4 WHERE id = $1 AND status = $2 RETURNING ` + carColumns

	var row carRow
	err := r.db.GetContext(ctx, &row, update, id, from, to, time.Now().UTC())
	if err == nil {
		return row.toCar(), nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Car{}, fmt.Errorf("transition car status: %w", err)
	}
	if _, getErr := r.Get(ctx, id); getErr != nil {
		return Car{}, getErr
	}
	return Car{}, ErrStatusConflict
}
