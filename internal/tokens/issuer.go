// Package tokens issues and redeems the single-use entry/food passes that prove a paid registration.
package tokens

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/alumni-connect/backend/internal/apperr"
	"github.com/alumni-connect/backend/internal/models"
	"github.com/alumni-connect/backend/pkg/utils"
)

const scanCodeBytes = 16

// Store persists tokens.
type Store interface {
	Insert(ctx context.Context, t *models.Token) (*models.Token, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Token, error)
	GetByTransactionID(ctx context.Context, transactionID uuid.UUID) (*models.Token, error)
	Redeem(ctx context.Context, scanCode string, at time.Time) (*models.Token, error)
}

// TransactionReader loads the transaction a token is issued against.
type TransactionReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error)
}

// Issuer is the only code path that creates tokens. Both the gateway and manual flows end here.
type Issuer struct {
	store  Store
	txs    TransactionReader
	now    func() time.Time
	logger *zap.Logger
}

// NewIssuer creates a token issuer.
func NewIssuer(store Store, txs TransactionReader, logger *zap.Logger) *Issuer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Issuer{store: store, txs: txs, now: time.Now, logger: logger}
}

// Issue returns the token for transactionID, creating it if needed. Calling it again for the same
// transaction returns the same token. The transaction must exist, be successful and belong to the
// given event and student.
func (i *Issuer) Issue(ctx context.Context, transactionID, eventID, studentID uuid.UUID) (*models.Token, error) {
	tok, _, err := i.Ensure(ctx, transactionID, eventID, studentID)
	return tok, err
}

// Ensure is Issue that also reports whether this call created the token.
func (i *Issuer) Ensure(ctx context.Context, transactionID, eventID, studentID uuid.UUID) (*models.Token, bool, error) {
	tx, err := i.txs.GetByID(ctx, transactionID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, false, apperr.Validation("transaction %s does not exist", transactionID)
		}
		return nil, false, fmt.Errorf("load transaction: %w", err)
	}
	if !tx.Succeeded() {
		return nil, false, apperr.Validation("transaction %s is %s, not a successful payment", transactionID, tx.Status)
	}
	if (tx.EventID != nil && *tx.EventID != eventID) || (tx.StudentID != nil && *tx.StudentID != studentID) {
		return nil, false, apperr.Validation("transaction %s does not belong to this event and student", transactionID)
	}

	existing, err := i.store.GetByTransactionID(ctx, transactionID)
	if err == nil {
		i.logger.Debug("token already issued", zap.String("transaction_id", transactionID.String()), zap.String("token_id", existing.ID.String()))
		return existing, false, nil
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		return nil, false, fmt.Errorf("lookup token: %w", err)
	}

	code, err := utils.RandomCode(scanCodeBytes)
	if err != nil {
		return nil, false, fmt.Errorf("generate scan code: %w", err)
	}
	tok, err := i.store.Insert(ctx, &models.Token{
		TransactionID: transactionID,
		EventID:       eventID,
		StudentID:     studentID,
		ScanCode:      code,
	})
	if errors.Is(err, apperr.ErrTokenAlreadyIssued) {
		i.logger.Debug("token issued concurrently", zap.String("transaction_id", transactionID.String()), zap.String("token_id", tok.ID.String()))
		return tok, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	i.logger.Info("token issued", zap.String("token_id", tok.ID.String()), zap.String("transaction_id", transactionID.String()))
	return tok, true, nil
}

// IssueForTransaction issues using the event and student recorded on the transaction itself.
// Used by the orphan follow-up path where only the transaction id is known.
func (i *Issuer) IssueForTransaction(ctx context.Context, transactionID uuid.UUID) (*models.Token, error) {
	tx, err := i.txs.GetByID(ctx, transactionID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.Validation("transaction %s does not exist", transactionID)
		}
		return nil, fmt.Errorf("load transaction: %w", err)
	}
	if tx.EventID == nil || tx.StudentID == nil {
		return nil, apperr.Validation("transaction %s is not a registration payment", transactionID)
	}
	return i.Issue(ctx, transactionID, *tx.EventID, *tx.StudentID)
}

// Redeem marks the token with scanCode used. There is no way back.
func (i *Issuer) Redeem(ctx context.Context, scanCode string) (*models.Token, error) {
	if scanCode == "" {
		return nil, apperr.Validation("scan code required")
	}
	tok, err := i.store.Redeem(ctx, scanCode, i.now().UTC())
	if err != nil {
		return nil, err
	}
	i.logger.Info("token redeemed", zap.String("token_id", tok.ID.String()), zap.String("event_id", tok.EventID.String()))
	return tok, nil
}

// Get returns a token by ID.
func (i *Issuer) Get(ctx context.Context, id uuid.UUID) (*models.Token, error) {
	return i.store.GetByID(ctx, id)
}
