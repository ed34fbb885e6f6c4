// Package students keeps alumni profiles. Profiles are upserted by natural key so repeated
// registrations update one row instead of creating duplicates.
package students

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/alumni-connect/backend/internal/apperr"
	"github.com/alumni-connect/backend/internal/models"
)

const maxNameLen = 120

// Store persists students.
type Store interface {
	UpsertByEmail(ctx context.Context, s *models.Student) error
	UpsertByPhoneName(ctx context.Context, s *models.Student) error
	ClaimEmail(ctx context.Context, phone, fullName, email string) (bool, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Student, error)
	SetPhoto(ctx context.Context, id uuid.UUID, storageID string) error
}

// Input is what a registration form supplies.
type Input struct {
	FullName    string `json:"full_name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	DateOfBirth string `json:"date_of_birth"` // YYYY-MM-DD
	BatchYear   *int   `json:"batch_year"`
}

// Registry validates and upserts students.
type Registry struct {
	store  Store
	now    func() time.Time
	logger *zap.Logger
}

// NewRegistry creates a student registry.
func NewRegistry(store Store, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{store: store, now: time.Now, logger: logger}
}

// Normalize validates in and returns the canonical Student it describes.
func (r *Registry) Normalize(in Input) (*models.Student, error) {
	name := strings.Join(strings.Fields(in.FullName), " ")
	if name == "" {
		return nil, apperr.Validation("full_name is required")
	}
	if len(name) > maxNameLen {
		return nil, apperr.Validation("full_name is longer than %d characters", maxNameLen)
	}
	s := &models.Student{FullName: name}

	if email := strings.TrimSpace(in.Email); email != "" {
		addr, err := mail.ParseAddress(email)
		if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndexByte(email, '@')+1:], ".") {
			return nil, apperr.Validation("invalid email %q", email)
		}
		s.Email = strings.ToLower(email)
	}
	if in.Phone != "" {
		phone, err := NormalizePhone(in.Phone)
		if err != nil {
			return nil, err
		}
		s.Phone = phone
	}
	if s.Email == "" && s.Phone == "" {
		return nil, apperr.Validation("email or phone is required")
	}

	if dob := strings.TrimSpace(in.DateOfBirth); dob != "" {
		t, err := time.Parse("2006-01-02", dob)
		if err != nil {
			return nil, apperr.Validation("date_of_birth must be YYYY-MM-DD")
		}
		if !t.Before(r.now()) {
			return nil, apperr.Validation("date_of_birth must be in the past")
		}
		s.DateOfBirth = &t
	}
	if in.BatchYear != nil {
		y := *in.BatchYear
		if y < 1900 || y > r.now().Year()+6 {
			return nil, apperr.Validation("batch_year %d out of range", y)
		}
		s.BatchYear = &y
	}
	return s, nil
}

// NormalizePhone strips formatting and keeps an optional leading '+'. 10 to 15 digits are accepted.
func NormalizePhone(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	var b strings.Builder
	for i, r := range raw {
		switch {
		case unicode.IsDigit(r):
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '(' || r == ')' || r == '.':
		default:
			return "", apperr.Validation("invalid phone %q", raw)
		}
	}
	out := b.String()
	digits := strings.TrimPrefix(out, "+")
	if len(digits) < 10 || len(digits) > 15 {
		return "", apperr.Validation("invalid phone %q", raw)
	}
	return out, nil
}

// Register upserts the student described by in and returns the stored row.
// Email is the primary key when present. Phone plus name is used otherwise.
func (r *Registry) Register(ctx context.Context, in Input) (*models.Student, error) {
	s, err := r.Normalize(in)
	if err != nil {
		return nil, err
	}

	if s.Email != "" {
		if s.Phone != "" {
			// a phone-only profile for the same person gets the email attached instead of forking
			if _, err := r.store.ClaimEmail(ctx, s.Phone, s.FullName, s.Email); err != nil {
				return nil, fmt.Errorf("claim email: %w", err)
			}
		}
		if err := r.store.UpsertByEmail(ctx, s); err != nil {
			return nil, fmt.Errorf("upsert student: %w", err)
		}
	} else {
		if err := r.store.UpsertByPhoneName(ctx, s); err != nil {
			return nil, fmt.Errorf("upsert student: %w", err)
		}
	}
	r.logger.Debug("student upserted", zap.String("student_id", s.ID.String()))
	return s, nil
}

// Get returns a student by ID.
func (r *Registry) Get(ctx context.Context, id uuid.UUID) (*models.Student, error) {
	return r.store.GetByID(ctx, id)
}
