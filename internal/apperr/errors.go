// Package apperr holds the domain error taxonomy shared by the payment, token and
// reconciliation flows. Callers wrap these with fmt.Errorf("...: %w") and match with errors.Is.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is malformed input. No side effect has happened.
	ErrValidation = errors.New("validation error")
	// ErrNotFound is a missing row.
	ErrNotFound = errors.New("not found")
	// ErrEventNotFound is returned when an order is requested for an unknown event.
	ErrEventNotFound = errors.New("event not found")
	// ErrGatewayUnavailable covers network and auth failures talking to the gateway. Retryable.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	// ErrSignatureInvalid means the checkout callback signature does not match. Not retryable without a new order.
	ErrSignatureInvalid = errors.New("payment signature invalid")
	// ErrPaymentNotCaptured means the gateway reports a non-successful status for the payment.
	ErrPaymentNotCaptured = errors.New("payment not captured")
	// ErrInvalidReceipt is an uploaded receipt failing size/type checks, or an unknown storage id.
	ErrInvalidReceipt = errors.New("invalid receipt")
	// ErrAlreadyReconciled is a second manual reconciliation for the same student and event.
	ErrAlreadyReconciled = errors.New("registration already reconciled")
	// ErrTokenAlreadyIssued is a token insert that lost to an existing token for the transaction.
	ErrTokenAlreadyIssued = errors.New("token already issued")
	// ErrTokenAlreadyUsed is a second redemption of the same token.
	ErrTokenAlreadyUsed = errors.New("token already used")
	// ErrRegistrationIncomplete means money was captured but the token could not be issued.
	ErrRegistrationIncomplete = errors.New("payment succeeded but registration incomplete")
)

// Validation returns an ErrValidation wrapping a formatted message.
func Validation(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// IncompleteError carries the payment id an admin needs to finish an orphaned registration.
type IncompleteError struct {
	PaymentID     string
	TransactionID string
	Err           error
}

func (e *IncompleteError) Error() string {
	return fmt.Sprintf("%s (payment %s): %v", ErrRegistrationIncomplete, e.PaymentID, e.Err)
}

// Unwrap exposes both the sentinel and the underlying cause to errors.Is.
func (e *IncompleteError) Unwrap() []error {
	return []error{ErrRegistrationIncomplete, e.Err}
}
