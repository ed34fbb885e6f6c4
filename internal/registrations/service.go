// Package registrations drives the self-service flow: register the student, open a gateway order
// for the event fee, confirm the signed callback and hand back a token.
package registrations

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/alumni-connect/backend/internal/apperr"
	"github.com/alumni-connect/backend/internal/feed"
	"github.com/alumni-connect/backend/internal/models"
	"github.com/alumni-connect/backend/internal/payments"
	"github.com/alumni-connect/backend/internal/students"
	"github.com/alumni-connect/backend/internal/tokens"
	"github.com/alumni-connect/backend/pkg/queue"
)

// EventReader loads events.
type EventReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Event, error)
}

// Notifier sends the confirmation email for a new token.
type Notifier interface {
	RegistrationConfirmed(ctx context.Context, emailType string, ev *models.Event, st *models.Student, tok *models.Token, tx *models.Transaction) error
}

// Publisher pushes a live update to connected admins.
type Publisher interface {
	Publish(ctx context.Context, kind string, data interface{})
}

// Result is what a successful confirmation returns to the client.
type Result struct {
	TransactionID uuid.UUID `json:"transaction_id"`
	PaymentID     string    `json:"payment_id"`
	TokenID       uuid.UUID `json:"token_id"`
	ScanCode      string    `json:"scan_code"`
	ReceiptURL    string    `json:"receipt_url"`
}

// Service is the registration orchestrator.
type Service struct {
	students *students.Registry
	events   EventReader
	payments *payments.Service
	issuer   *tokens.Issuer
	notifier Notifier
	pub      Publisher
	logger   *zap.Logger
}

// NewService wires the orchestrator. notifier and pub may be nil.
func NewService(reg *students.Registry, events EventReader, pay *payments.Service, issuer *tokens.Issuer, notifier Notifier, pub Publisher, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{students: reg, events: events, payments: pay, issuer: issuer, notifier: notifier, pub: pub, logger: logger}
}

// Register validates and upserts the student. No money moves.
func (s *Service) Register(ctx context.Context, in students.Input) (*models.Student, error) {
	return s.students.Register(ctx, in)
}

// CreateOrder opens a gateway order for the event fee on behalf of studentID.
func (s *Service) CreateOrder(ctx context.Context, eventID, studentID uuid.UUID) (*payments.Checkout, error) {
	ev, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.ErrEventNotFound
		}
		return nil, fmt.Errorf("load event: %w", err)
	}
	if !ev.IsActive {
		return nil, apperr.Validation("event %q is not open for registration", ev.Name)
	}
	if _, err := s.students.Get(ctx, studentID); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.Validation("unknown student %s", studentID)
		}
		return nil, fmt.Errorf("load student: %w", err)
	}

	return s.payments.CreateOrder(ctx, payments.Intent{
		Purpose: models.PurposeRegistration,
		Amount:  ev.Fee,
		Notes: map[string]string{
			"event_id":   eventID.String(),
			"student_id": studentID.String(),
		},
		EventID:   &eventID,
		StudentID: &studentID,
	})
}

// Confirm verifies the checkout callback, records the payment and issues the token.
//
// Once the payment is recorded as successful, a failure to issue the token is reported as an
// *apperr.IncompleteError carrying the payment id. Calling Confirm again with the same callback
// finishes the registration.
func (s *Service) Confirm(ctx context.Context, cb payments.Callback) (*Result, error) {
	conf, err := s.payments.Confirm(ctx, models.PurposeRegistration, cb)
	if err != nil {
		return nil, err
	}
	tx, order := conf.Transaction, conf.Order
	if conf.Created {
		s.publish(ctx, feed.KindPaymentCaptured, tx)
	}

	if order.EventID == nil || order.StudentID == nil {
		return nil, s.incomplete(tx, errors.New("order carries no event or student"))
	}
	tok, created, err := s.issuer.Ensure(ctx, tx.ID, *order.EventID, *order.StudentID)
	if err != nil {
		return nil, s.incomplete(tx, err)
	}
	if created {
		s.publish(ctx, feed.KindTokenIssued, tok)
		s.notify(ctx, tok, tx)
	}

	return &Result{
		TransactionID: tx.ID,
		PaymentID:     tx.PaymentID,
		TokenID:       tok.ID,
		ScanCode:      tok.ScanCode,
		ReceiptURL:    "/tokens/" + tok.ID.String() + "/receipt",
	}, nil
}

func (s *Service) incomplete(tx *models.Transaction, cause error) error {
	s.logger.Error("payment captured but token not issued",
		zap.String("payment_id", tx.PaymentID), zap.String("transaction_id", tx.ID.String()), zap.Error(cause))
	return &apperr.IncompleteError{PaymentID: tx.PaymentID, TransactionID: tx.ID.String(), Err: cause}
}

func (s *Service) publish(ctx context.Context, kind string, data interface{}) {
	if s.pub != nil {
		s.pub.Publish(ctx, kind, data)
	}
}

// notify sends the confirmation email. Failures are logged; the token is already issued.
func (s *Service) notify(ctx context.Context, tok *models.Token, tx *models.Transaction) {
	if s.notifier == nil {
		return
	}
	ev, err := s.events.GetByID(ctx, tok.EventID)
	if err != nil {
		s.logger.Warn("confirmation email skipped: load event", zap.Error(err))
		return
	}
	st, err := s.students.Get(ctx, tok.StudentID)
	if err != nil {
		s.logger.Warn("confirmation email skipped: load student", zap.Error(err))
		return
	}
	if err := s.notifier.RegistrationConfirmed(ctx, queue.EmailRegistrationConfirmed, ev, st, tok, tx); err != nil {
		s.logger.Warn("confirmation email not queued", zap.String("token_id", tok.ID.String()), zap.Error(err))
	}
}
