package reconciliation

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/alumni-connect/backend/internal/apperr"
	"github.com/alumni-connect/backend/internal/ledger"
	"github.com/alumni-connect/backend/internal/models"
	"github.com/alumni-connect/backend/pkg/database"
)

const coColumns = `id, event_id, student_id, status, COALESCE(method, ''), COALESCE(receipt_storage_id, ''),
	COALESCE(receipt_key, ''), exception_confirmed, reconciled_by, transaction_id, note, created_at, updated_at`

// Settlement is one admin decision for a (event, student) pair.
type Settlement struct {
	EventID            uuid.UUID
	StudentID          uuid.UUID
	Status             string
	Method             string
	ReceiptStorageID   string
	ReceiptKey         string
	ExceptionConfirmed bool
	ReconciledBy       *uuid.UUID
	Note               string
	Amount             decimal.Decimal
	Currency           string
}

// Repository persists co-transactions.
type Repository struct {
	pool   *pgxpool.Pool
	ledger *ledger.Repository
}

// NewRepository creates a reconciliation repository. Manual transactions are written through lr.
func NewRepository(pool *pgxpool.Pool, lr *ledger.Repository) *Repository {
	return &Repository{pool: pool, ledger: lr}
}

func scanCo(row pgx.Row) (*models.CoTransaction, error) {
	var co models.CoTransaction
	err := row.Scan(&co.ID, &co.EventID, &co.StudentID, &co.Status, &co.Method, &co.ReceiptStorageID,
		&co.ReceiptKey, &co.ExceptionConfirmed, &co.ReconciledBy, &co.TransactionID, &co.Note, &co.CreatedAt, &co.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	return &co, nil
}

// EnsurePending creates the pending row for (eventID, studentID) if none exists.
func (r *Repository) EnsurePending(ctx context.Context, eventID, studentID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO co_transactions (event_id, student_id) VALUES ($1, $2)
		ON CONFLICT (event_id, student_id) DO NOTHING`, eventID, studentID)
	return err
}

// Settle moves the pending row to its terminal status and writes the manual transaction in one
// database transaction. A row that already left pending yields ErrAlreadyReconciled and nothing
// is written.
func (r *Repository) Settle(ctx context.Context, s *Settlement) (*models.CoTransaction, *models.Transaction, error) {
	if err := r.EnsurePending(ctx, s.EventID, s.StudentID); err != nil {
		return nil, nil, fmt.Errorf("ensure co-transaction: %w", err)
	}

	var (
		co *models.CoTransaction
		tx *models.Transaction
	)
	err := database.WithTx(ctx, r.pool, func(dbtx pgx.Tx) error {
		const cas = `UPDATE co_transactions SET status = $3, method = NULLIF($4, ''),
				receipt_storage_id = NULLIF($5, ''), receipt_key = NULLIF($6, ''),
				exception_confirmed = $7, reconciled_by = $8, note = $9, updated_at = NOW()
			WHERE event_id = $1 AND student_id = $2 AND status = 'pending'
			RETURNING ` + coColumns
		var err error
		co, err = scanCo(dbtx.QueryRow(ctx, cas, s.EventID, s.StudentID, s.Status, s.Method,
			s.ReceiptStorageID, s.ReceiptKey, s.ExceptionConfirmed, s.ReconciledBy, s.Note))
		if errors.Is(err, apperr.ErrNotFound) {
			return apperr.ErrAlreadyReconciled
		}
		if err != nil {
			return fmt.Errorf("settle co-transaction: %w", err)
		}

		tx, err = r.ledger.InsertManual(ctx, dbtx, &models.Transaction{
			Amount:          s.Amount,
			Currency:        s.Currency,
			Status:          s.Status,
			Method:          s.Method,
			EventID:         &s.EventID,
			StudentID:       &s.StudentID,
			CoTransactionID: &co.ID,
		})
		if err != nil {
			return err
		}
		if _, err := dbtx.Exec(ctx, `UPDATE co_transactions SET transaction_id = $2 WHERE id = $1`, co.ID, tx.ID); err != nil {
			return fmt.Errorf("link transaction: %w", err)
		}
		co.TransactionID = &tx.ID
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return co, tx, nil
}

// GetByID returns a co-transaction by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.CoTransaction, error) {
	return scanCo(r.pool.QueryRow(ctx, `SELECT `+coColumns+` FROM co_transactions WHERE id = $1`, id))
}

// ListByEvent returns the co-transactions of an event, newest first.
func (r *Repository) ListByEvent(ctx context.Context, eventID uuid.UUID) ([]models.CoTransaction, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+coColumns+` FROM co_transactions WHERE event_id = $1 ORDER BY updated_at DESC`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []models.CoTransaction{}
	for rows.Next() {
		co, err := scanCo(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *co)
	}
	return list, rows.Err()
}
