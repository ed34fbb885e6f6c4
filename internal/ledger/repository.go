// Package ledger persists payment attempts (transactions) and the gateway orders that precede them.
// Transactions are append-only: the only in-place change is promoting a not-yet-captured row.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alumni-connect/backend/internal/apperr"
	"github.com/alumni-connect/backend/internal/models"
)

// DBTX is satisfied by *pgxpool.Pool and pgx.Tx so writes can join a caller's transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const txColumns = `id, COALESCE(order_id, ''), COALESCE(payment_id, ''), amount, currency, status,
	COALESCE(method, ''), COALESCE(bank, ''), COALESCE(wallet, ''), COALESCE(vpa, ''),
	fee_minor, tax_minor, source, event_id, student_id, co_transaction_id, created_at`

// Repository handles transaction persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a ledger repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanTx(row pgx.Row) (*models.Transaction, error) {
	var t models.Transaction
	err := row.Scan(&t.ID, &t.OrderID, &t.PaymentID, &t.Amount, &t.Currency, &t.Status,
		&t.Method, &t.Bank, &t.Wallet, &t.VPA, &t.FeeMinor, &t.TaxMinor, &t.Source,
		&t.EventID, &t.StudentID, &t.CoTransactionID, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

func insert(ctx context.Context, db DBTX, t *models.Transaction, onConflict string) (*models.Transaction, error) {
	q := `INSERT INTO transactions (order_id, payment_id, amount, currency, status, method, bank, wallet, vpa,
			fee_minor, tax_minor, raw, source, event_id, student_id, co_transaction_id)
		VALUES (NULLIF($1, ''), NULLIF($2, ''), $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, ''), NULLIF($9, ''),
			$10, $11, $12, $13, $14, $15, $16)
		` + onConflict + `
		RETURNING ` + txColumns
	var raw any
	if len(t.Raw) > 0 {
		raw = t.Raw
	}
	return scanTx(db.QueryRow(ctx, q, t.OrderID, t.PaymentID, t.Amount, t.Currency, t.Status, t.Method, t.Bank,
		t.Wallet, t.VPA, t.FeeMinor, t.TaxMinor, raw, t.Source, t.EventID, t.StudentID, t.CoTransactionID))
}

// InsertGateway records a gateway payment. If a row for the same payment_id already exists it is
// returned unchanged with created=false.
func (r *Repository) InsertGateway(ctx context.Context, t *models.Transaction) (*models.Transaction, bool, error) {
	if t.PaymentID == "" {
		return nil, false, apperr.Validation("gateway transaction needs a payment id")
	}
	out, err := insert(ctx, r.pool, t, `ON CONFLICT (payment_id) DO NOTHING`)
	if err == nil {
		return out, true, nil
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		return nil, false, fmt.Errorf("insert transaction: %w", err)
	}
	existing, err := r.GetByPaymentID(ctx, t.PaymentID)
	if err != nil {
		return nil, false, fmt.Errorf("reload transaction: %w", err)
	}
	return existing, false, nil
}

// InsertManual records an admin-reconciled payment inside the caller's transaction.
func (r *Repository) InsertManual(ctx context.Context, db DBTX, t *models.Transaction) (*models.Transaction, error) {
	t.Source = models.SourceManual
	out, err := insert(ctx, db, t, "")
	if err != nil {
		return nil, fmt.Errorf("insert manual transaction: %w", err)
	}
	return out, nil
}

// Promote moves a created/pending transaction to a newer gateway status. Captured rows never change.
func (r *Repository) Promote(ctx context.Context, id uuid.UUID, status string, raw []byte) (*models.Transaction, error) {
	q := `UPDATE transactions SET status = $2, raw = COALESCE($3, raw)
		WHERE id = $1 AND status IN ('created', 'pending')
		RETURNING ` + txColumns
	var rawArg any
	if len(raw) > 0 {
		rawArg = raw
	}
	t, err := scanTx(r.pool.QueryRow(ctx, q, id, status, rawArg))
	if errors.Is(err, apperr.ErrNotFound) {
		return r.GetByID(ctx, id)
	}
	return t, err
}

// GetByID returns a transaction by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	return scanTx(r.pool.QueryRow(ctx, `SELECT `+txColumns+` FROM transactions WHERE id = $1`, id))
}

// GetByPaymentID returns the transaction for a gateway payment id.
func (r *Repository) GetByPaymentID(ctx context.Context, paymentID string) (*models.Transaction, error) {
	return scanTx(r.pool.QueryRow(ctx, `SELECT `+txColumns+` FROM transactions WHERE payment_id = $1`, paymentID))
}

// List returns transactions newest first, optionally filtered by event.
func (r *Repository) List(ctx context.Context, eventID *uuid.UUID, limit, offset int) ([]models.Transaction, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `SELECT `+txColumns+` FROM transactions
		WHERE ($1::uuid IS NULL OR event_id = $1)
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`, eventID, limit, offset)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

// ListOrphans returns successful registration transactions that have no token yet.
// These are the "payment succeeded but registration incomplete" cases awaiting follow-up.
func (r *Repository) ListOrphans(ctx context.Context) ([]models.Transaction, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+txColumns+` FROM transactions t
		WHERE t.status IN ('captured', 'paid', 'exception')
		  AND t.event_id IS NOT NULL AND t.student_id IS NOT NULL
		  AND NOT EXISTS (SELECT 1 FROM tokens k WHERE k.transaction_id = t.id)
		ORDER BY t.created_at`)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func collect(rows pgx.Rows) ([]models.Transaction, error) {
	defer rows.Close()
	var list []models.Transaction
	for rows.Next() {
		t, err := scanTx(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *t)
	}
	return list, rows.Err()
}
