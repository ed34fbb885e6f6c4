package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Transaction status values. Gateway statuses plus the two manual terminal states.
const (
	TxStatusCreated   = "created"
	TxStatusPending   = "pending"
	TxStatusCaptured  = "captured"
	TxStatusFailed    = "failed"
	TxStatusRefunded  = "refunded"
	TxStatusPaid      = "paid"
	TxStatusException = "exception"
)

// Transaction sources.
const (
	SourceGateway = "gateway"
	SourceManual  = "manual"
)

// Order purposes.
const (
	PurposeRegistration = "registration"
	PurposeDonation     = "donation"
)

// IsSuccessStatus reports whether a transaction in status s may back a token.
func IsSuccessStatus(s string) bool {
	switch s {
	case TxStatusCaptured, TxStatusPaid, TxStatusException:
		return true
	}
	return false
}

// Transaction is one payment attempt. Amount is major units; fee and tax are minor units as the gateway reports them.
// Raw is kept for audit only and never drives logic.
type Transaction struct {
	ID              uuid.UUID       `json:"id"`
	OrderID         string          `json:"order_id,omitempty"`
	PaymentID       string          `json:"payment_id,omitempty"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	Status          string          `json:"status"`
	Method          string          `json:"method,omitempty"`
	Bank            string          `json:"bank,omitempty"`
	Wallet          string          `json:"wallet,omitempty"`
	VPA             string          `json:"vpa,omitempty"`
	FeeMinor        int64           `json:"fee"`
	TaxMinor        int64           `json:"tax"`
	Raw             json.RawMessage `json:"-"`
	Source          string          `json:"source"`
	EventID         *uuid.UUID      `json:"event_id,omitempty"`
	StudentID       *uuid.UUID      `json:"student_id,omitempty"`
	CoTransactionID *uuid.UUID      `json:"co_transaction_id,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// Succeeded reports whether the transaction can back a token.
func (t *Transaction) Succeeded() bool { return IsSuccessStatus(t.Status) }

// PaymentOrder is the server-side record of a gateway order. It exists before any Transaction
// and carries the context (event, student or donor) the confirmation step needs.
type PaymentOrder struct {
	OrderID            string     `json:"order_id"`
	Purpose            string     `json:"purpose"`
	EventID            *uuid.UUID `json:"event_id,omitempty"`
	StudentID          *uuid.UUID `json:"student_id,omitempty"`
	DonationCategoryID *uuid.UUID `json:"donation_category_id,omitempty"`
	DonorName          string     `json:"donor_name,omitempty"`
	DonorEmail         string     `json:"donor_email,omitempty"`
	DonorPhone         string     `json:"donor_phone,omitempty"`
	Message            string     `json:"message,omitempty"`
	AmountMinor        int64      `json:"amount_minor"`
	Currency           string     `json:"currency"`
	Receipt            string     `json:"receipt"`
	CreatedAt          time.Time  `json:"created_at"`
}
