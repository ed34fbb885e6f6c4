package students

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alumni-connect/backend/internal/apperr"
	"github.com/alumni-connect/backend/internal/models"
)

const studentColumns = `id, full_name, COALESCE(email, ''), COALESCE(phone, ''), date_of_birth, batch_year,
	COALESCE(photo_storage_id, ''), created_at, updated_at`

// Repository handles student persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a students repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanStudent(row pgx.Row, s *models.Student) error {
	err := row.Scan(&s.ID, &s.FullName, &s.Email, &s.Phone, &s.DateOfBirth, &s.BatchYear,
		&s.PhotoStorageID, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.ErrNotFound
	}
	return err
}

// UpsertByEmail inserts or updates the student keyed by lower(email). Empty fields never overwrite stored values.
func (r *Repository) UpsertByEmail(ctx context.Context, s *models.Student) error {
	const q = `INSERT INTO students (full_name, email, phone, date_of_birth, batch_year)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5)
		ON CONFLICT (lower(email)) WHERE email IS NOT NULL DO UPDATE SET
			full_name = EXCLUDED.full_name,
			phone = COALESCE(EXCLUDED.phone, students.phone),
			date_of_birth = COALESCE(EXCLUDED.date_of_birth, students.date_of_birth),
			batch_year = COALESCE(EXCLUDED.batch_year, students.batch_year),
			updated_at = NOW()
		RETURNING ` + studentColumns
	return scanStudent(r.pool.QueryRow(ctx, q, s.FullName, s.Email, s.Phone, s.DateOfBirth, s.BatchYear), s)
}

// UpsertByPhoneName inserts or updates an email-less student keyed by phone and lower(full_name).
func (r *Repository) UpsertByPhoneName(ctx context.Context, s *models.Student) error {
	const q = `INSERT INTO students (full_name, phone, date_of_birth, batch_year)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (phone, lower(full_name)) WHERE phone IS NOT NULL AND email IS NULL DO UPDATE SET
			date_of_birth = COALESCE(EXCLUDED.date_of_birth, students.date_of_birth),
			batch_year = COALESCE(EXCLUDED.batch_year, students.batch_year),
			updated_at = NOW()
		RETURNING ` + studentColumns
	return scanStudent(r.pool.QueryRow(ctx, q, s.FullName, s.Phone, s.DateOfBirth, s.BatchYear), s)
}

// ClaimEmail attaches email to an email-less profile with the same phone and name, if the email is unused.
func (r *Repository) ClaimEmail(ctx context.Context, phone, fullName, email string) (bool, error) {
	const q = `UPDATE students SET email = $3, updated_at = NOW()
		WHERE phone = $1 AND lower(full_name) = lower($2) AND email IS NULL
		  AND NOT EXISTS (SELECT 1 FROM students WHERE lower(email) = lower($3))`
	tag, err := r.pool.Exec(ctx, q, phone, fullName, email)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// GetByID returns a student by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Student, error) {
	var s models.Student
	if err := scanStudent(r.pool.QueryRow(ctx, `SELECT `+studentColumns+` FROM students WHERE id = $1`, id), &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// SetPhoto records the storage key of the student's photo.
func (r *Repository) SetPhoto(ctx context.Context, id uuid.UUID, storageID string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE students SET photo_storage_id = $2, updated_at = NOW() WHERE id = $1`, id, storageID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// Search returns students whose name, email or phone contains q, for the admin reconciliation picker.
func (r *Repository) Search(ctx context.Context, q string, limit int) ([]models.Student, error) {
	if limit <= 0 || limit > 100 {
		limit = 25
	}
	rows, err := r.pool.Query(ctx, `SELECT `+studentColumns+` FROM students
		WHERE full_name ILIKE '%' || $1 || '%' OR email ILIKE '%' || $1 || '%' OR phone LIKE '%' || $1 || '%'
		ORDER BY full_name LIMIT $2`, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Student
	for rows.Next() {
		var s models.Student
		if err := scanStudent(rows, &s); err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return list, rows.Err()
}
