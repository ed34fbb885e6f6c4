package dashboard

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Counts is the raw per-event aggregate read from the ledger, tokens and co-transactions.
type Counts struct {
	Registrations   int
	GatewayCaptured int
	ManualPaid      int
	Exceptions      int
	Failed          int
	PendingManual   int
	TokensIssued    int
	TokensUsed      int
	Revenue         decimal.Decimal
	FeesMinor       int64
}

// Repository runs the summary queries.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a dashboard repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Counts aggregates one event in a single round trip.
func (r *Repository) Counts(ctx context.Context, eventID uuid.UUID) (*Counts, error) {
	const q = `SELECT
		(SELECT COUNT(DISTINCT student_id) FROM (
			SELECT student_id FROM transactions WHERE event_id = $1 AND student_id IS NOT NULL
			UNION SELECT student_id FROM co_transactions WHERE event_id = $1) s),
		COUNT(*) FILTER (WHERE t.source = 'gateway' AND t.status = 'captured'),
		COUNT(*) FILTER (WHERE t.source = 'manual' AND t.status = 'paid'),
		COUNT(*) FILTER (WHERE t.status = 'exception'),
		COUNT(*) FILTER (WHERE t.status = 'failed'),
		(SELECT COUNT(*) FROM co_transactions WHERE event_id = $1 AND status = 'pending'),
		(SELECT COUNT(*) FROM tokens WHERE event_id = $1),
		(SELECT COUNT(*) FROM tokens WHERE event_id = $1 AND is_used),
		COALESCE(SUM(t.amount) FILTER (WHERE t.status IN ('captured', 'paid')), 0),
		COALESCE(SUM(t.fee_minor) FILTER (WHERE t.status = 'captured'), 0)
		FROM transactions t WHERE t.event_id = $1`
	var c Counts
	err := r.pool.QueryRow(ctx, q, eventID).Scan(&c.Registrations, &c.GatewayCaptured, &c.ManualPaid, &c.Exceptions,
		&c.Failed, &c.PendingManual, &c.TokensIssued, &c.TokensUsed, &c.Revenue, &c.FeesMinor)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
