// Package donations takes gifts against admin-managed categories. Payment runs through the same
// gateway pipeline as registrations; a confirmed payment yields one Donation and no token.
package donations

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/alumni-connect/backend/internal/apperr"
	"github.com/alumni-connect/backend/internal/feed"
	"github.com/alumni-connect/backend/internal/models"
	"github.com/alumni-connect/backend/internal/payments"
	"github.com/alumni-connect/backend/internal/students"
)

const maxMessageLen = 500

// Store persists categories and donations.
type Store interface {
	ListCategories(ctx context.Context, activeOnly bool) ([]models.DonationCategory, error)
	GetCategory(ctx context.Context, id uuid.UUID) (*models.DonationCategory, error)
	CreateCategory(ctx context.Context, c *models.DonationCategory) error
	UpdateCategory(ctx context.Context, c *models.DonationCategory) error
	InsertDonation(ctx context.Context, d *models.Donation) (*models.Donation, bool, error)
	ListDonations(ctx context.Context, categoryID *uuid.UUID, limit, offset int) ([]models.Donation, error)
	Totals(ctx context.Context) ([]CategoryTotal, error)
}

// Notifier sends the donation receipt email.
type Notifier interface {
	DonationReceipt(ctx context.Context, d *models.Donation, category string, tx *models.Transaction) error
}

// Publisher pushes a live update to connected admins.
type Publisher interface {
	Publish(ctx context.Context, kind string, data interface{})
}

// CategoryInput is the body for creating a category and, with pointers, for patching one.
type CategoryInput struct {
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	MinAmount   *decimal.Decimal `json:"min_amount"`
	MaxAmount   *decimal.Decimal `json:"max_amount"`
	ClearMin    bool             `json:"clear_min_amount"`
	ClearMax    bool             `json:"clear_max_amount"`
	IsPopular   *bool            `json:"is_popular"`
	IsActive    *bool            `json:"is_active"`
	SortOrder   *int             `json:"sort_order"`
}

// OrderRequest is the body for POST /donations/orders.
type OrderRequest struct {
	CategoryID string          `json:"category_id" binding:"required"`
	Amount     decimal.Decimal `json:"amount"`
	DonorName  string          `json:"donor_name"`
	DonorEmail string          `json:"donor_email"`
	DonorPhone string          `json:"donor_phone"`
	Message    string          `json:"message"`
}

// Service manages categories and the donation payment flow.
type Service struct {
	store    Store
	payments *payments.Service
	notifier Notifier
	pub      Publisher
	logger   *zap.Logger
}

// NewService creates the donations service. notifier and pub may be nil.
func NewService(store Store, pay *payments.Service, notifier Notifier, pub Publisher, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, payments: pay, notifier: notifier, pub: pub, logger: logger}
}

// Categories lists categories. Public callers pass activeOnly.
func (s *Service) Categories(ctx context.Context, activeOnly bool) ([]models.DonationCategory, error) {
	return s.store.ListCategories(ctx, activeOnly)
}

// CreateCategory adds a category. New categories are active unless IsActive says otherwise.
func (s *Service) CreateCategory(ctx context.Context, in CategoryInput) (*models.DonationCategory, error) {
	c := &models.DonationCategory{IsActive: true}
	if in.Name == nil {
		return nil, apperr.Validation("name is required")
	}
	if err := apply(c, in); err != nil {
		return nil, err
	}
	if err := s.store.CreateCategory(ctx, c); err != nil {
		return nil, err
	}
	s.logger.Info("donation category created", zap.String("category_id", c.ID.String()), zap.String("name", c.Name))
	return c, nil
}

// UpdateCategory patches a category. Toggling is an update of IsActive.
func (s *Service) UpdateCategory(ctx context.Context, id uuid.UUID, in CategoryInput) (*models.DonationCategory, error) {
	c, err := s.store.GetCategory(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := apply(c, in); err != nil {
		return nil, err
	}
	if err := s.store.UpdateCategory(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func apply(c *models.DonationCategory, in CategoryInput) error {
	if in.Name != nil {
		c.Name = strings.TrimSpace(*in.Name)
	}
	if c.Name == "" {
		return apperr.Validation("name is required")
	}
	if in.Description != nil {
		c.Description = strings.TrimSpace(*in.Description)
	}
	if in.ClearMin {
		c.MinAmount = decimal.NullDecimal{}
	} else if in.MinAmount != nil {
		c.MinAmount = decimal.NewNullDecimal(*in.MinAmount)
	}
	if in.ClearMax {
		c.MaxAmount = decimal.NullDecimal{}
	} else if in.MaxAmount != nil {
		c.MaxAmount = decimal.NewNullDecimal(*in.MaxAmount)
	}
	if c.MinAmount.Valid && !c.MinAmount.Decimal.IsPositive() {
		return apperr.Validation("min_amount must be positive")
	}
	if c.MaxAmount.Valid && !c.MaxAmount.Decimal.IsPositive() {
		return apperr.Validation("max_amount must be positive")
	}
	if c.MinAmount.Valid && c.MaxAmount.Valid && c.MinAmount.Decimal.GreaterThan(c.MaxAmount.Decimal) {
		return apperr.Validation("min_amount exceeds max_amount")
	}
	if in.IsPopular != nil {
		c.IsPopular = *in.IsPopular
	}
	if in.IsActive != nil {
		c.IsActive = *in.IsActive
	}
	if in.SortOrder != nil {
		c.SortOrder = *in.SortOrder
	}
	return nil
}

// CreateOrder validates a donation and opens a gateway order for it.
func (s *Service) CreateOrder(ctx context.Context, req OrderRequest) (*payments.Checkout, error) {
	categoryID, err := uuid.Parse(req.CategoryID)
	if err != nil {
		return nil, apperr.Validation("invalid category_id")
	}
	cat, err := s.store.GetCategory(ctx, categoryID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.Validation("unknown category %s", categoryID)
		}
		return nil, fmt.Errorf("load category: %w", err)
	}
	if !cat.IsActive {
		return nil, apperr.Validation("category %q is not accepting donations", cat.Name)
	}
	if !req.Amount.IsPositive() {
		return nil, apperr.Validation("amount must be positive")
	}
	if cat.MinAmount.Valid && req.Amount.LessThan(cat.MinAmount.Decimal) {
		return nil, apperr.Validation("amount is below the minimum of %s", cat.MinAmount.Decimal.StringFixed(2))
	}
	if cat.MaxAmount.Valid && req.Amount.GreaterThan(cat.MaxAmount.Decimal) {
		return nil, apperr.Validation("amount is above the maximum of %s", cat.MaxAmount.Decimal.StringFixed(2))
	}

	donor, err := normalizeDonor(req)
	if err != nil {
		return nil, err
	}

	return s.payments.CreateOrder(ctx, payments.Intent{
		Purpose:    models.PurposeDonation,
		Amount:     req.Amount,
		Notes:      map[string]string{"category_id": categoryID.String(), "donor_name": donor.DonorName},
		CategoryID: &categoryID,
		DonorName:  donor.DonorName,
		DonorEmail: donor.DonorEmail,
		DonorPhone: donor.DonorPhone,
		Message:    donor.Message,
	})
}

func normalizeDonor(req OrderRequest) (OrderRequest, error) {
	out := OrderRequest{
		DonorName: strings.Join(strings.Fields(req.DonorName), " "),
		Message:   strings.TrimSpace(req.Message),
	}
	if out.DonorName == "" {
		return out, apperr.Validation("donor_name is required")
	}
	if email := strings.TrimSpace(req.DonorEmail); email != "" {
		addr, err := mail.ParseAddress(email)
		if err != nil || addr.Address != email {
			return out, apperr.Validation("invalid donor_email %q", email)
		}
		out.DonorEmail = strings.ToLower(email)
	}
	if req.DonorPhone != "" {
		phone, err := students.NormalizePhone(req.DonorPhone)
		if err != nil {
			return out, err
		}
		out.DonorPhone = phone
	}
	if len(out.Message) > maxMessageLen {
		return out, apperr.Validation("message is longer than %d characters", maxMessageLen)
	}
	return out, nil
}

// Confirm verifies the checkout callback and records the donation. Repeated callbacks return the
// same Donation.
func (s *Service) Confirm(ctx context.Context, cb payments.Callback) (*models.Donation, error) {
	conf, err := s.payments.Confirm(ctx, models.PurposeDonation, cb)
	if err != nil {
		return nil, err
	}
	tx, order := conf.Transaction, conf.Order
	if order.DonationCategoryID == nil {
		return nil, fmt.Errorf("order %s has no category", order.OrderID)
	}

	d, created, err := s.store.InsertDonation(ctx, &models.Donation{
		CategoryID:    *order.DonationCategoryID,
		TransactionID: tx.ID,
		DonorName:     order.DonorName,
		DonorEmail:    order.DonorEmail,
		DonorPhone:    order.DonorPhone,
		Amount:        tx.Amount,
		Message:       order.Message,
	})
	if err != nil {
		s.logger.Error("donation captured but not recorded", zap.String("payment_id", tx.PaymentID), zap.Error(err))
		return nil, fmt.Errorf("record donation for payment %s: %w", tx.PaymentID, err)
	}
	if !created {
		return d, nil
	}

	s.logger.Info("donation received", zap.String("donation_id", d.ID.String()), zap.String("amount", d.Amount.StringFixed(2)))
	if s.pub != nil {
		s.pub.Publish(ctx, feed.KindDonationReceived, d)
	}
	if s.notifier != nil && d.DonorEmail != "" {
		name := ""
		if cat, err := s.store.GetCategory(ctx, d.CategoryID); err == nil {
			name = cat.Name
		}
		if err := s.notifier.DonationReceipt(ctx, d, name, tx); err != nil {
			s.logger.Warn("donation receipt not queued", zap.String("donation_id", d.ID.String()), zap.Error(err))
		}
	}
	return d, nil
}

// List returns recorded donations for admins.
func (s *Service) List(ctx context.Context, categoryID *uuid.UUID, limit, offset int) ([]models.Donation, error) {
	return s.store.ListDonations(ctx, categoryID, limit, offset)
}

// Totals returns per-category donation sums.
func (s *Service) Totals(ctx context.Context) ([]CategoryTotal, error) {
	return s.store.Totals(ctx)
}
