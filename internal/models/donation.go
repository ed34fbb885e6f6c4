package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DonationCategory groups donations (scholarships, infrastructure, ...). Min and max bound the amount when set.
type DonationCategory struct {
	ID          uuid.UUID           `json:"id"`
	Name        string              `json:"name"`
	Description string              `json:"description,omitempty"`
	MinAmount   decimal.NullDecimal `json:"min_amount"`
	MaxAmount   decimal.NullDecimal `json:"max_amount"`
	IsPopular   bool                `json:"is_popular"`
	IsActive    bool                `json:"is_active"`
	SortOrder   int                 `json:"sort_order"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

// Donation is a confirmed gift, one per transaction.
type Donation struct {
	ID            uuid.UUID       `json:"id"`
	CategoryID    uuid.UUID       `json:"category_id"`
	TransactionID uuid.UUID       `json:"transaction_id"`
	DonorName     string          `json:"donor_name"`
	DonorEmail    string          `json:"donor_email,omitempty"`
	DonorPhone    string          `json:"donor_phone,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	Message       string          `json:"message,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}
