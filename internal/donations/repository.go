package donations

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/alumni-connect/backend/internal/apperr"
	"github.com/alumni-connect/backend/internal/models"
	"github.com/alumni-connect/backend/pkg/database"
)

const (
	categoryColumns = `id, name, description, min_amount, max_amount, is_popular, is_active, sort_order, created_at, updated_at`
	donationColumns = `id, category_id, transaction_id, donor_name, donor_email, donor_phone, amount, message, created_at`
)

// ErrCategoryNameTaken is returned when a category name is already in use.
var ErrCategoryNameTaken = fmt.Errorf("%w: category name already exists", apperr.ErrValidation)

// CategoryTotal aggregates confirmed donations for one category.
type CategoryTotal struct {
	CategoryID uuid.UUID       `json:"category_id"`
	Name       string          `json:"name"`
	Count      int             `json:"count"`
	Total      decimal.Decimal `json:"total"`
}

// Repository persists donation categories and donations.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a donations repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanCategory(row pgx.Row) (*models.DonationCategory, error) {
	var c models.DonationCategory
	err := row.Scan(&c.ID, &c.Name, &c.Description, &c.MinAmount, &c.MaxAmount, &c.IsPopular, &c.IsActive, &c.SortOrder, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func scanDonation(row pgx.Row) (*models.Donation, error) {
	var d models.Donation
	err := row.Scan(&d.ID, &d.CategoryID, &d.TransactionID, &d.DonorName, &d.DonorEmail, &d.DonorPhone, &d.Amount, &d.Message, &d.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}

// ListCategories returns categories by sort order, then name.
func (r *Repository) ListCategories(ctx context.Context, activeOnly bool) ([]models.DonationCategory, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+categoryColumns+` FROM donation_categories
		WHERE is_active OR NOT $1 ORDER BY sort_order, name`, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []models.DonationCategory{}
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *c)
	}
	return list, rows.Err()
}

// GetCategory returns a category by ID.
func (r *Repository) GetCategory(ctx context.Context, id uuid.UUID) (*models.DonationCategory, error) {
	return scanCategory(r.pool.QueryRow(ctx, `SELECT `+categoryColumns+` FROM donation_categories WHERE id = $1`, id))
}

// CreateCategory inserts c and fills its generated fields.
func (r *Repository) CreateCategory(ctx context.Context, c *models.DonationCategory) error {
	const q = `INSERT INTO donation_categories (name, description, min_amount, max_amount, is_popular, is_active, sort_order)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + categoryColumns
	out, err := scanCategory(r.pool.QueryRow(ctx, q, c.Name, c.Description, c.MinAmount, c.MaxAmount, c.IsPopular, c.IsActive, c.SortOrder))
	if err != nil {
		if database.IsUniqueViolation(err) {
			return ErrCategoryNameTaken
		}
		return err
	}
	*c = *out
	return nil
}

// UpdateCategory writes every mutable field of c.
func (r *Repository) UpdateCategory(ctx context.Context, c *models.DonationCategory) error {
	const q = `UPDATE donation_categories SET name = $2, description = $3, min_amount = $4, max_amount = $5,
			is_popular = $6, is_active = $7, sort_order = $8, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + categoryColumns
	out, err := scanCategory(r.pool.QueryRow(ctx, q, c.ID, c.Name, c.Description, c.MinAmount, c.MaxAmount, c.IsPopular, c.IsActive, c.SortOrder))
	if err != nil {
		if database.IsUniqueViolation(err) {
			return ErrCategoryNameTaken
		}
		return err
	}
	*c = *out
	return nil
}

// InsertDonation records d unless a donation already references its transaction, in which case
// the existing row is returned with created=false.
func (r *Repository) InsertDonation(ctx context.Context, d *models.Donation) (*models.Donation, bool, error) {
	const q = `INSERT INTO donations (category_id, transaction_id, donor_name, donor_email, donor_phone, amount, message)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (transaction_id) DO NOTHING
		RETURNING ` + donationColumns
	out, err := scanDonation(r.pool.QueryRow(ctx, q, d.CategoryID, d.TransactionID, d.DonorName, d.DonorEmail, d.DonorPhone, d.Amount, d.Message))
	if err == nil {
		return out, true, nil
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		return nil, false, fmt.Errorf("insert donation: %w", err)
	}
	existing, err := scanDonation(r.pool.QueryRow(ctx, `SELECT `+donationColumns+` FROM donations WHERE transaction_id = $1`, d.TransactionID))
	if err != nil {
		return nil, false, fmt.Errorf("reload donation: %w", err)
	}
	return existing, false, nil
}

// ListDonations returns donations newest first, optionally for one category.
func (r *Repository) ListDonations(ctx context.Context, categoryID *uuid.UUID, limit, offset int) ([]models.Donation, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `SELECT `+donationColumns+` FROM donations
		WHERE ($1::uuid IS NULL OR category_id = $1)
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`, categoryID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []models.Donation{}
	for rows.Next() {
		d, err := scanDonation(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *d)
	}
	return list, rows.Err()
}

// Totals returns donation count and sum per category, including categories with none.
func (r *Repository) Totals(ctx context.Context) ([]CategoryTotal, error) {
	rows, err := r.pool.Query(ctx, `SELECT c.id, c.name, COUNT(d.id), COALESCE(SUM(d.amount), 0)
		FROM donation_categories c
		LEFT JOIN donations d ON d.category_id = c.id
		GROUP BY c.id, c.name, c.sort_order
		ORDER BY c.sort_order, c.name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []CategoryTotal{}
	for rows.Next() {
		var t CategoryTotal
		if err := rows.Scan(&t.CategoryID, &t.Name, &t.Count, &t.Total); err != nil {
			return nil, err
		}
		list = append(list, t)
	}
	return list, rows.Err()
}
