package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/alumni-connect/backend/internal/models"
)

func staff(role models.Role) *models.User {
	return &models.User{ID: uuid.New(), Email: string(role) + "@example.com", Role: role}
}

func TestGenerateValidate(t *testing.T) {
	svc := NewJWTService("test-secret", 1)
	u := staff(models.RoleAdmin)

	raw, err := svc.Generate(u)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	claims, err := svc.Validate(raw)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if claims.UserID != u.ID || claims.Email != u.Email || claims.Role != "admin" || claims.Subject != u.ID.String() {
		t.Errorf("claims = %+v", claims)
	}
}

func TestValidateRejects(t *testing.T) {
	svc := NewJWTService("test-secret", 1)
	raw, err := svc.Generate(staff(models.RoleVolunteer))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := NewJWTService("other-secret", 1).Validate(raw); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("wrong secret: %v", err)
	}

	later := NewJWTService("test-secret", 1)
	later.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if _, err := later.Validate(raw); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expired: %v", err)
	}

	if _, err := svc.Validate(raw + "x"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("tampered: %v", err)
	}
	if _, err := svc.Validate("not.a.jwt"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("garbage: %v", err)
	}

	unknownRole, err := svc.Generate(staff(models.Role("student")))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Validate(unknownRole); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("unknown role: %v", err)
	}

	foreign := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID:           uuid.New(),
		Role:             "admin",
		RegisteredClaims: jwt.RegisteredClaims{Issuer: "someone-else", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	})
	signed, err := foreign.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Validate(signed); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("foreign issuer: %v", err)
	}
}
