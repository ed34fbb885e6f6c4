// Package reconciliation settles registrations paid outside the gateway. An admin marks a
// student as paid by UPI (with an uploaded receipt) or cash, or records an exception; the result is
// the same Transaction and Token a gateway payment would have produced.
package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/alumni-connect/backend/internal/apperr"
	"github.com/alumni-connect/backend/internal/feed"
	"github.com/alumni-connect/backend/internal/models"
	"github.com/alumni-connect/backend/internal/tokens"
	"github.com/alumni-connect/backend/internal/uploads"
	"github.com/alumni-connect/backend/pkg/queue"
)

// Store persists co-transactions.
type Store interface {
	Settle(ctx context.Context, s *Settlement) (*models.CoTransaction, *models.Transaction, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.CoTransaction, error)
	ListByEvent(ctx context.Context, eventID uuid.UUID) ([]models.CoTransaction, error)
}

// Receipts resolves confirmed uploads.
type Receipts interface {
	ResolveReceipt(ctx context.Context, storageID string) (*uploads.Handle, error)
	DownloadURL(ctx context.Context, key string) (string, time.Duration, error)
}

// EventReader loads events.
type EventReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Event, error)
}

// StudentReader loads students.
type StudentReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Student, error)
}

// TokenLookup finds a token already held by a student for an event.
type TokenLookup interface {
	GetByEventStudent(ctx context.Context, eventID, studentID uuid.UUID) (*models.Token, error)
}

// Notifier sends the confirmation email for a new token.
type Notifier interface {
	RegistrationConfirmed(ctx context.Context, emailType string, ev *models.Event, st *models.Student, tok *models.Token, tx *models.Transaction) error
}

// Publisher pushes a live update to connected admins.
type Publisher interface {
	Publish(ctx context.Context, kind string, data interface{})
}

// Request is the body for POST /admin/events/:id/reconciliations.
type Request struct {
	StudentID          string `json:"student_id" binding:"required"`
	Method             string `json:"method"`
	ReceiptStorageID   string `json:"receipt_storage_id"`
	Exception          bool   `json:"exception"`
	ExceptionConfirmed bool   `json:"exception_confirmed"`
	Note               string `json:"note"`
}

// Outcome is a settled registration.
type Outcome struct {
	CoTransaction *models.CoTransaction `json:"co_transaction"`
	TransactionID uuid.UUID             `json:"transaction_id"`
	TokenID       uuid.UUID             `json:"token_id"`
	ScanCode      string                `json:"scan_code"`
}

// Service is the manual reconciliation orchestrator.
type Service struct {
	store    Store
	receipts Receipts
	events   EventReader
	students StudentReader
	tokens   TokenLookup
	issuer   *tokens.Issuer
	notifier Notifier
	pub      Publisher
	currency string
	logger   *zap.Logger
}

// Deps groups the collaborators of Service.
type Deps struct {
	Store    Store
	Receipts Receipts
	Events   EventReader
	Students StudentReader
	Tokens   TokenLookup
	Issuer   *tokens.Issuer
	Notifier Notifier
	Pub      Publisher
	Currency string
}

// NewService creates the reconciliation orchestrator.
func NewService(d Deps, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:    d.Store,
		receipts: d.Receipts,
		events:   d.Events,
		students: d.Students,
		tokens:   d.Tokens,
		issuer:   d.Issuer,
		notifier: d.Notifier,
		pub:      d.Pub,
		currency: strings.ToUpper(d.Currency),
		logger:   logger,
	}
}

// Reconcile settles the registration of req.StudentID for eventID.
//
// Input and receipt checks run before anything is written. Settling is a compare-and-swap on the
// pending row, so a second call for the same pair returns ErrAlreadyReconciled and never writes a
// second Transaction or Token.
func (s *Service) Reconcile(ctx context.Context, eventID uuid.UUID, req Request, adminID uuid.UUID) (*Outcome, error) {
	studentID, err := uuid.Parse(req.StudentID)
	if err != nil {
		return nil, apperr.Validation("invalid student_id")
	}
	ev, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.ErrEventNotFound
		}
		return nil, fmt.Errorf("load event: %w", err)
	}
	st, err := s.students.GetByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.Validation("unknown student %s", studentID)
		}
		return nil, fmt.Errorf("load student: %w", err)
	}

	settle, err := s.settlement(ctx, ev, studentID, req)
	if err != nil {
		return nil, err
	}
	if adminID != uuid.Nil {
		settle.ReconciledBy = &adminID
	}

	if tok, err := s.tokens.GetByEventStudent(ctx, eventID, studentID); err == nil {
		s.logger.Info("reconcile skipped: student already holds a token",
			zap.String("student_id", studentID.String()), zap.String("token_id", tok.ID.String()))
		return nil, apperr.ErrAlreadyReconciled
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return nil, fmt.Errorf("lookup token: %w", err)
	}

	co, tx, err := s.store.Settle(ctx, settle)
	if err != nil {
		return nil, err
	}
	s.logger.Info("registration reconciled",
		zap.String("co_transaction_id", co.ID.String()), zap.String("status", co.Status),
		zap.String("method", co.Method), zap.String("transaction_id", tx.ID.String()))
	s.publish(ctx, feed.KindRegistrationReconciled, co)

	tok, created, err := s.issuer.Ensure(ctx, tx.ID, eventID, studentID)
	if err != nil {
		s.logger.Error("reconciled but token not issued", zap.String("transaction_id", tx.ID.String()), zap.Error(err))
		return nil, &apperr.IncompleteError{TransactionID: tx.ID.String(), Err: err}
	}
	if created {
		s.publish(ctx, feed.KindTokenIssued, tok)
		if s.notifier != nil {
			if err := s.notifier.RegistrationConfirmed(ctx, queue.EmailRegistrationReconciled, ev, st, tok, tx); err != nil {
				s.logger.Warn("reconciliation email not queued", zap.String("token_id", tok.ID.String()), zap.Error(err))
			}
		}
	}
	return &Outcome{CoTransaction: co, TransactionID: tx.ID, TokenID: tok.ID, ScanCode: tok.ScanCode}, nil
}

// settlement validates req and turns it into the row update. Receipt resolution happens here so an
// invalid upload is rejected before any write.
func (s *Service) settlement(ctx context.Context, ev *models.Event, studentID uuid.UUID, req Request) (*Settlement, error) {
	out := &Settlement{
		EventID:   ev.ID,
		StudentID: studentID,
		Note:      strings.TrimSpace(req.Note),
		Currency:  s.currency,
	}

	if req.Exception {
		if !req.ExceptionConfirmed {
			return nil, apperr.Validation("exception requires exception_confirmed")
		}
		out.Status = models.CoStatusException
		out.ExceptionConfirmed = true
		out.Amount = decimal.Zero
		return out, nil
	}

	out.Status = models.CoStatusPaid
	out.Amount = ev.Fee
	switch method := strings.ToLower(strings.TrimSpace(req.Method)); method {
	case models.MethodUPI:
		if req.ReceiptStorageID == "" {
			return nil, fmt.Errorf("%w: upi payments need a receipt", apperr.ErrInvalidReceipt)
		}
		h, err := s.receipts.ResolveReceipt(ctx, req.ReceiptStorageID)
		if err != nil {
			return nil, err
		}
		out.Method = method
		out.ReceiptStorageID = h.StorageID
		out.ReceiptKey = h.Key
	case models.MethodCash:
		if req.ReceiptStorageID != "" {
			return nil, apperr.Validation("receipts only apply to upi payments")
		}
		out.Method = method
	case "":
		return nil, apperr.Validation("method is required unless exception is set")
	default:
		return nil, apperr.Validation("unknown method %q", req.Method)
	}
	return out, nil
}

// List returns the co-transactions of an event.
func (s *Service) List(ctx context.Context, eventID uuid.UUID) ([]models.CoTransaction, error) {
	return s.store.ListByEvent(ctx, eventID)
}

// ReceiptURL returns a short-lived link to the receipt attached to a co-transaction.
func (s *Service) ReceiptURL(ctx context.Context, id uuid.UUID) (string, time.Duration, error) {
	co, err := s.store.GetByID(ctx, id)
	if err != nil {
		return "", 0, err
	}
	if co.ReceiptKey == "" {
		return "", 0, apperr.ErrNotFound
	}
	return s.receipts.DownloadURL(ctx, co.ReceiptKey)
}

func (s *Service) publish(ctx context.Context, kind string, data interface{}) {
	if s.pub != nil {
		s.pub.Publish(ctx, kind, data)
	}
}
