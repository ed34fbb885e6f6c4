package registrations

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alumni-connect/backend/internal/apperr"
	"github.com/alumni-connect/backend/internal/models"
)

// Registration states, in the order a self-service attempt moves through them.
const (
	StateRegistered       = "registered"
	StateOrderCreated     = "order_created"
	StatePaymentPending   = "payment_pending"
	StatePaymentFailed    = "payment_failed"
	StatePaymentConfirmed = "payment_confirmed"
	StateTokenIssued      = "token_issued"
)

// Status is the furthest point a student has reached for one event.
type Status struct {
	State         string     `json:"state"`
	TransactionID *uuid.UUID `json:"transaction_id,omitempty"`
	PaymentID     string     `json:"payment_id,omitempty"`
	TokenID       *uuid.UUID `json:"token_id,omitempty"`
	TokenUsed     bool       `json:"token_used"`
}

// Repository answers status lookups across transactions and tokens.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a registrations repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Status returns the best attempt for (eventID, studentID): a tokened transaction wins, then a
// successful one, then the newest. Without any transaction an open registration order reports
// order_created. Unknown students are ErrNotFound.
func (r *Repository) Status(ctx context.Context, eventID, studentID uuid.UUID) (*Status, error) {
	const presence = `SELECT EXISTS (SELECT 1 FROM students WHERE id = $2),
		EXISTS (SELECT 1 FROM payment_orders WHERE purpose = 'registration' AND event_id = $1 AND student_id = $2)`
	var known, ordered bool
	if err := r.pool.QueryRow(ctx, presence, eventID, studentID).Scan(&known, &ordered); err != nil {
		return nil, err
	}
	if !known {
		return nil, apperr.ErrNotFound
	}

	const q = `SELECT t.id, COALESCE(t.payment_id, ''), t.status, k.id, COALESCE(k.is_used, false)
		FROM transactions t
		LEFT JOIN tokens k ON k.transaction_id = t.id
		WHERE t.event_id = $1 AND t.student_id = $2
		ORDER BY (k.id IS NOT NULL) DESC, (t.status IN ('captured', 'paid', 'exception')) DESC, t.created_at DESC
		LIMIT 1`
	var (
		txID    uuid.UUID
		st      Status
		txState string
	)
	err := r.pool.QueryRow(ctx, q, eventID, studentID).Scan(&txID, &st.PaymentID, &txState, &st.TokenID, &st.TokenUsed)
	if errors.Is(err, pgx.ErrNoRows) {
		return &Status{State: StateBeforePayment(ordered)}, nil
	}
	if err != nil {
		return nil, err
	}
	st.TransactionID = &txID
	st.State = StateFor(txState, st.TokenID != nil)
	return &st, nil
}

// StateBeforePayment is the state of a student with no transaction for the event.
func StateBeforePayment(hasOrder bool) string {
	if hasOrder {
		return StateOrderCreated
	}
	return StateRegistered
}

// StateFor maps a transaction status and token presence to a registration state.
func StateFor(txStatus string, hasToken bool) string {
	switch {
	case hasToken:
		return StateTokenIssued
	case models.IsSuccessStatus(txStatus):
		return StatePaymentConfirmed
	case txStatus == models.TxStatusCreated || txStatus == models.TxStatusPending:
		return StatePaymentPending
	default:
		return StatePaymentFailed
	}
}
