package models

import (
	"time"

	"github.com/google/uuid"
)

// Student is an alumni profile. Upserted by email, or by phone plus name when no email is given.
type Student struct {
	ID             uuid.UUID  `json:"id"`
	FullName       string     `json:"full_name"`
	Email          string     `json:"email,omitempty"`
	Phone          string     `json:"phone,omitempty"`
	DateOfBirth    *time.Time `json:"date_of_birth,omitempty"`
	BatchYear      *int       `json:"batch_year,omitempty"`
	PhotoStorageID string     `json:"photo_storage_id,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}
