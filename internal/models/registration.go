package models

import (
	"time"

	"github.com/google/uuid"
)

// CoTransaction status values. Only pending moves, and only once.
const (
	CoStatusPending   = "pending"
	CoStatusPaid      = "paid"
	CoStatusException = "exception"
)

// Manual payment methods.
const (
	MethodUPI  = "upi"
	MethodCash = "cash"
)

// CoTransaction is the admin-side registration record for payments collected outside the gateway.
// One row per (event, student).
type CoTransaction struct {
	ID                 uuid.UUID  `json:"id"`
	EventID            uuid.UUID  `json:"event_id"`
	StudentID          uuid.UUID  `json:"student_id"`
	Status             string     `json:"status"`
	Method             string     `json:"method,omitempty"`
	ReceiptStorageID   string     `json:"receipt_storage_id,omitempty"`
	ReceiptKey         string     `json:"-"`
	ExceptionConfirmed bool       `json:"exception_confirmed"`
	ReconciledBy       *uuid.UUID `json:"reconciled_by,omitempty"`
	TransactionID      *uuid.UUID `json:"transaction_id,omitempty"`
	Note               string     `json:"note,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// Token is the single-use entry/food pass issued for one successful transaction.
type Token struct {
	ID            uuid.UUID  `json:"id"`
	TransactionID uuid.UUID  `json:"transaction_id"`
	EventID       uuid.UUID  `json:"event_id"`
	StudentID     uuid.UUID  `json:"student_id"`
	ScanCode      string     `json:"scan_code"`
	IsUsed        bool       `json:"is_used"`
	UsedAt        *time.Time `json:"used_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}
