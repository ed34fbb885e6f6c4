package tokens

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alumni-connect/backend/internal/apperr"
	"github.com/alumni-connect/backend/internal/models"
)

const tokenColumns = `id, transaction_id, event_id, student_id, scan_code, is_used, used_at, created_at`

// Repository handles token persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a tokens repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanToken(row pgx.Row) (*models.Token, error) {
	var t models.Token
	if err := row.Scan(&t.ID, &t.TransactionID, &t.EventID, &t.StudentID, &t.ScanCode, &t.IsUsed, &t.UsedAt, &t.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

// Insert creates a token. If one already references the transaction it is returned together
// with ErrTokenAlreadyIssued.
func (r *Repository) Insert(ctx context.Context, t *models.Token) (*models.Token, error) {
	const q = `INSERT INTO tokens (transaction_id, event_id, student_id, scan_code)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (transaction_id) DO NOTHING
		RETURNING ` + tokenColumns
	out, err := scanToken(r.pool.QueryRow(ctx, q, t.TransactionID, t.EventID, t.StudentID, t.ScanCode))
	if err == nil {
		return out, nil
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		return nil, fmt.Errorf("insert token: %w", err)
	}
	existing, err := r.GetByTransactionID(ctx, t.TransactionID)
	if err != nil {
		return nil, fmt.Errorf("reload token: %w", err)
	}
	return existing, apperr.ErrTokenAlreadyIssued
}

// GetByID returns a token by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Token, error) {
	return scanToken(r.pool.QueryRow(ctx, `SELECT `+tokenColumns+` FROM tokens WHERE id = $1`, id))
}

// GetByTransactionID returns the token for a transaction.
func (r *Repository) GetByTransactionID(ctx context.Context, transactionID uuid.UUID) (*models.Token, error) {
	return scanToken(r.pool.QueryRow(ctx, `SELECT `+tokenColumns+` FROM tokens WHERE transaction_id = $1`, transactionID))
}

// GetByEventStudent returns the first token issued to studentID for eventID.
func (r *Repository) GetByEventStudent(ctx context.Context, eventID, studentID uuid.UUID) (*models.Token, error) {
	return scanToken(r.pool.QueryRow(ctx, `SELECT `+tokenColumns+` FROM tokens
		WHERE event_id = $1 AND student_id = $2 ORDER BY created_at LIMIT 1`, eventID, studentID))
}

// Redeem flips is_used for the token with scanCode. A used token yields ErrTokenAlreadyUsed.
func (r *Repository) Redeem(ctx context.Context, scanCode string, at time.Time) (*models.Token, error) {
	const q = `UPDATE tokens SET is_used = true, used_at = $2
		WHERE scan_code = $1 AND is_used = false
		RETURNING ` + tokenColumns
	t, err := scanToken(r.pool.QueryRow(ctx, q, scanCode, at))
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		return nil, fmt.Errorf("redeem token: %w", err)
	}
	var used bool
	if err := r.pool.QueryRow(ctx, `SELECT is_used FROM tokens WHERE scan_code = $1`, scanCode).Scan(&used); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	return nil, apperr.ErrTokenAlreadyUsed
}

// CountByEvent returns issued and used token counts for an event.
func (r *Repository) CountByEvent(ctx context.Context, eventID uuid.UUID) (issued, used int, err error) {
	const q = `SELECT COUNT(*), COUNT(*) FILTER (WHERE is_used) FROM tokens WHERE event_id = $1`
	err = r.pool.QueryRow(ctx, q, eventID).Scan(&issued, &used)
	return issued, used, err
}
