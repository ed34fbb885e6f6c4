// Package payments is the shared gateway capture pipeline: create an order, then turn a signed
// checkout callback into a recorded Transaction. Registrations and donations both build on it.
package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/alumni-connect/backend/internal/apperr"
	"github.com/alumni-connect/backend/internal/gateway"
	"github.com/alumni-connect/backend/internal/models"
)

// Gateway is the subset of the Razorpay client the pipeline needs.
type Gateway interface {
	KeyID() string
	CreateOrder(ctx context.Context, amount decimal.Decimal, currency, receipt string, notes map[string]string) (*gateway.Order, error)
	FetchPayment(ctx context.Context, paymentID string) (*gateway.Payment, error)
	VerifyPaymentSignature(orderID, paymentID, signature string) bool
}

// OrderStore persists gateway orders.
type OrderStore interface {
	Create(ctx context.Context, o *models.PaymentOrder) error
	Get(ctx context.Context, orderID string) (*models.PaymentOrder, error)
}

// Ledger records gateway transactions.
type Ledger interface {
	GetByPaymentID(ctx context.Context, paymentID string) (*models.Transaction, error)
	InsertGateway(ctx context.Context, t *models.Transaction) (*models.Transaction, bool, error)
	Promote(ctx context.Context, id uuid.UUID, status string, raw []byte) (*models.Transaction, error)
}

// Intent describes what an order is for. Amount is in major units.
type Intent struct {
	Purpose    string
	Amount     decimal.Decimal
	Receipt    string
	Notes      map[string]string
	EventID    *uuid.UUID
	StudentID  *uuid.UUID
	CategoryID *uuid.UUID
	DonorName  string
	DonorEmail string
	DonorPhone string
	Message    string
}

// Checkout is what the client needs to open the checkout widget. It never carries the key secret.
type Checkout struct {
	OrderID     string          `json:"order_id"`
	KeyID       string          `json:"key_id"`
	Amount      decimal.Decimal `json:"amount"`
	AmountMinor int64           `json:"amount_minor"`
	Currency    string          `json:"currency"`
}

// Callback is the payload the checkout widget hands back on success.
type Callback struct {
	OrderID   string `json:"razorpay_order_id"`
	PaymentID string `json:"razorpay_payment_id"`
	Signature string `json:"razorpay_signature"`
}

// Confirmation is the outcome of a verified callback.
type Confirmation struct {
	Transaction *models.Transaction
	Order       *models.PaymentOrder
	// Created is false when the payment had already been recorded by an earlier callback.
	Created bool
}

// Service runs order creation and callback confirmation.
type Service struct {
	gw       Gateway
	orders   OrderStore
	ledger   Ledger
	currency string
	logger   *zap.Logger
}

// NewService creates the capture pipeline for a single configured currency.
func NewService(gw Gateway, orders OrderStore, ledger Ledger, currency string, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{gw: gw, orders: orders, ledger: ledger, currency: strings.ToUpper(currency), logger: logger}
}

// Currency returns the configured order currency.
func (s *Service) Currency() string { return s.currency }

// CreateOrder creates a gateway order and persists it. No Transaction is written.
func (s *Service) CreateOrder(ctx context.Context, in Intent) (*Checkout, error) {
	if in.Purpose != models.PurposeRegistration && in.Purpose != models.PurposeDonation {
		return nil, apperr.Validation("unknown order purpose %q", in.Purpose)
	}
	minor, err := gateway.ToMinorUnits(in.Amount)
	if err != nil {
		return nil, err
	}
	receipt := in.Receipt
	if receipt == "" {
		receipt = in.Purpose[:3] + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:20]
	}

	order, err := s.gw.CreateOrder(ctx, in.Amount, s.currency, receipt, in.Notes)
	if err != nil {
		return nil, fmt.Errorf("create gateway order: %w", err)
	}

	po := &models.PaymentOrder{
		OrderID:            order.ID,
		Purpose:            in.Purpose,
		EventID:            in.EventID,
		StudentID:          in.StudentID,
		DonationCategoryID: in.CategoryID,
		DonorName:          in.DonorName,
		DonorEmail:         in.DonorEmail,
		DonorPhone:         in.DonorPhone,
		Message:            in.Message,
		AmountMinor:        minor,
		Currency:           s.currency,
		Receipt:            receipt,
	}
	if err := s.orders.Create(ctx, po); err != nil {
		return nil, fmt.Errorf("persist order %s: %w", order.ID, err)
	}
	s.logger.Info("order created", zap.String("order_id", order.ID), zap.String("purpose", in.Purpose), zap.Int64("amount_minor", minor))

	return &Checkout{
		OrderID:     order.ID,
		KeyID:       s.gw.KeyID(),
		Amount:      gateway.FromMinorUnits(minor),
		AmountMinor: minor,
		Currency:    s.currency,
	}, nil
}

// Confirm verifies a checkout callback and records the gateway's view of the payment.
//
// A bad signature returns ErrSignatureInvalid before anything is read or written. A payment that
// was already recorded is returned as-is, so duplicate callbacks converge on one Transaction.
// When the gateway reports a non-successful status the Transaction is still recorded and
// ErrPaymentNotCaptured is returned alongside the Confirmation.
func (s *Service) Confirm(ctx context.Context, purpose string, cb Callback) (*Confirmation, error) {
	if cb.OrderID == "" || cb.PaymentID == "" || cb.Signature == "" {
		return nil, apperr.Validation("razorpay_order_id, razorpay_payment_id and razorpay_signature are required")
	}
	if !s.gw.VerifyPaymentSignature(cb.OrderID, cb.PaymentID, cb.Signature) {
		s.logger.Warn("payment signature mismatch", zap.String("order_id", cb.OrderID), zap.String("payment_id", cb.PaymentID))
		return nil, apperr.ErrSignatureInvalid
	}

	order, err := s.orders.Get(ctx, cb.OrderID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.Validation("unknown order %s", cb.OrderID)
		}
		return nil, fmt.Errorf("load order: %w", err)
	}
	if order.Purpose != purpose {
		return nil, apperr.Validation("order %s is not a %s order", cb.OrderID, purpose)
	}

	existing, err := s.ledger.GetByPaymentID(ctx, cb.PaymentID)
	switch {
	case err == nil:
		return s.resume(ctx, order, existing)
	case !errors.Is(err, apperr.ErrNotFound):
		return nil, fmt.Errorf("lookup payment: %w", err)
	}

	p, err := s.gw.FetchPayment(ctx, cb.PaymentID)
	if err != nil {
		return nil, fmt.Errorf("fetch payment %s: %w", cb.PaymentID, err)
	}
	if p.OrderID != "" && p.OrderID != cb.OrderID {
		return nil, apperr.Validation("payment %s belongs to order %s", p.ID, p.OrderID)
	}
	if p.Amount != order.AmountMinor || !strings.EqualFold(p.Currency, order.Currency) {
		s.logger.Warn("gateway amount differs from order",
			zap.String("payment_id", p.ID), zap.Int64("paid_minor", p.Amount), zap.Int64("order_minor", order.AmountMinor))
	}

	tx, created, err := s.ledger.InsertGateway(ctx, &models.Transaction{
		OrderID:   cb.OrderID,
		PaymentID: cb.PaymentID,
		Amount:    gateway.FromMinorUnits(p.Amount),
		Currency:  strings.ToUpper(p.Currency),
		Status:    p.LedgerStatus(),
		Method:    p.Method,
		Bank:      p.Bank,
		Wallet:    p.Wallet,
		VPA:       p.VPA,
		FeeMinor:  p.Fee,
		TaxMinor:  p.Tax,
		Raw:       p.Raw,
		Source:    models.SourceGateway,
		EventID:   order.EventID,
		StudentID: order.StudentID,
	})
	if err != nil {
		return nil, fmt.Errorf("record payment %s: %w", cb.PaymentID, err)
	}
	s.logger.Info("payment recorded",
		zap.String("payment_id", tx.PaymentID), zap.String("transaction_id", tx.ID.String()),
		zap.String("status", tx.Status), zap.Bool("created", created))

	conf := &Confirmation{Transaction: tx, Order: order, Created: created}
	if !tx.Succeeded() {
		return conf, fmt.Errorf("%w: gateway status %s", apperr.ErrPaymentNotCaptured, tx.Status)
	}
	return conf, nil
}

// resume handles a callback for a payment we already hold. A row still waiting on capture is
// refreshed from the gateway once.
func (s *Service) resume(ctx context.Context, order *models.PaymentOrder, tx *models.Transaction) (*Confirmation, error) {
	conf := &Confirmation{Transaction: tx, Order: order}
	if tx.Succeeded() {
		return conf, nil
	}
	if tx.Status == models.TxStatusCreated || tx.Status == models.TxStatusPending {
		p, err := s.gw.FetchPayment(ctx, tx.PaymentID)
		if err != nil {
			return nil, fmt.Errorf("refresh payment %s: %w", tx.PaymentID, err)
		}
		if status := p.LedgerStatus(); status != tx.Status {
			updated, err := s.ledger.Promote(ctx, tx.ID, status, p.Raw)
			if err != nil {
				return nil, fmt.Errorf("promote transaction %s: %w", tx.ID, err)
			}
			conf.Transaction = updated
		}
	}
	if !conf.Transaction.Succeeded() {
		return conf, fmt.Errorf("%w: gateway status %s", apperr.ErrPaymentNotCaptured, conf.Transaction.Status)
	}
	return conf, nil
}
