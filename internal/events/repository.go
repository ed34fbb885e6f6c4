package events

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alumni-connect/backend/internal/apperr"
	"github.com/alumni-connect/backend/internal/models"
)

const eventColumns = `id, name, description, venue, starts_at, ends_at, fee, food_included, is_active, created_at, updated_at`

// Repository handles event persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an events repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanEvent(row pgx.Row, e *models.Event) error {
	err := row.Scan(&e.ID, &e.Name, &e.Description, &e.Venue, &e.StartsAt, &e.EndsAt, &e.Fee,
		&e.FoodIncluded, &e.IsActive, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.ErrNotFound
	}
	return err
}

// Create inserts an event.
func (r *Repository) Create(ctx context.Context, e *models.Event) error {
	const q = `INSERT INTO events (name, description, venue, starts_at, ends_at, fee, food_included, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + eventColumns
	return scanEvent(r.pool.QueryRow(ctx, q, e.Name, e.Description, e.Venue, e.StartsAt, e.EndsAt, e.Fee, e.FoodIncluded, e.IsActive), e)
}

// GetByID returns an event by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	var e models.Event
	if err := scanEvent(r.pool.QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id), &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// List returns events ordered by start time. activeOnly hides deactivated events.
func (r *Repository) List(ctx context.Context, activeOnly bool) ([]models.Event, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+eventColumns+` FROM events
		WHERE NOT $1 OR is_active ORDER BY starts_at DESC`, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Event
	for rows.Next() {
		var e models.Event
		if err := scanEvent(rows, &e); err != nil {
			return nil, err
		}
		list = append(list, e)
	}
	return list, rows.Err()
}

// Update overwrites the editable fields of e.
func (r *Repository) Update(ctx context.Context, e *models.Event) error {
	const q = `UPDATE events SET name = $2, description = $3, venue = $4, starts_at = $5, ends_at = $6,
			fee = $7, food_included = $8, is_active = $9, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + eventColumns
	return scanEvent(r.pool.QueryRow(ctx, q, e.ID, e.Name, e.Description, e.Venue, e.StartsAt, e.EndsAt,
		e.Fee, e.FoodIncluded, e.IsActive), e)
}
