package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alumni-connect/backend/internal/apperr"
	"github.com/alumni-connect/backend/internal/models"
)

// OrderRepository persists gateway orders so confirmation can recover event, student or donor context.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository creates an order repository.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create inserts an order row.
func (r *OrderRepository) Create(ctx context.Context, o *models.PaymentOrder) error {
	const q = `INSERT INTO payment_orders (order_id, purpose, event_id, student_id, donation_category_id,
			donor_name, donor_email, donor_phone, message, amount_minor, currency, receipt)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at`
	err := r.pool.QueryRow(ctx, q, o.OrderID, o.Purpose, o.EventID, o.StudentID, o.DonationCategoryID,
		o.DonorName, o.DonorEmail, o.DonorPhone, o.Message, o.AmountMinor, o.Currency, o.Receipt).Scan(&o.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert payment order: %w", err)
	}
	return nil
}

// Get returns an order by gateway order id.
func (r *OrderRepository) Get(ctx context.Context, orderID string) (*models.PaymentOrder, error) {
	const q = `SELECT order_id, purpose, event_id, student_id, donation_category_id, donor_name, donor_email,
			donor_phone, message, amount_minor, currency, receipt, created_at
		FROM payment_orders WHERE order_id = $1`
	var o models.PaymentOrder
	err := r.pool.QueryRow(ctx, q, orderID).Scan(&o.OrderID, &o.Purpose, &o.EventID, &o.StudentID,
		&o.DonationCategoryID, &o.DonorName, &o.DonorEmail, &o.DonorPhone, &o.Message, &o.AmountMinor,
		&o.Currency, &o.Receipt, &o.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	return &o, nil
}
