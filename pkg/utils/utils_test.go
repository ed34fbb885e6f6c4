package utils

import (
	"errors"
	"regexp"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestHashAndCheckPassword(t *testing.T) {
	PasswordCost = bcrypt.MinCost
	t.Cleanup(func() { PasswordCost = bcrypt.DefaultCost })

	hash, err := HashPassword("door-desk-2025")
	if err != nil {
		t.Fatal(err)
	}
	if cost, _ := bcrypt.Cost([]byte(hash)); cost != bcrypt.MinCost {
		t.Errorf("cost = %d, want %d", cost, bcrypt.MinCost)
	}
	if !CheckPassword("door-desk-2025", hash) {
		t.Error("expected password to match")
	}
	if CheckPassword("door-desk-2026", hash) {
		t.Error("expected mismatch")
	}
	if CheckPassword("door-desk-2025", "not-a-bcrypt-hash") {
		t.Error("malformed hash matched")
	}
}

func TestHashPasswordPolicy(t *testing.T) {
	tests := []struct {
		name     string
		password string
		want     error
	}{
		{"too short", "s3cret", ErrPasswordTooShort},
		{"short in runes", "pässwö", ErrPasswordTooShort},
		{"past bcrypt limit", strings.Repeat("a", 73), ErrPasswordTooLong},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := HashPassword(tt.password)
			if !errors.Is(err, tt.want) || !IsPasswordPolicyError(err) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestRandomCode(t *testing.T) {
	valid := regexp.MustCompile(`^[A-Z2-7]{26}$`)
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		code, err := RandomCode(16)
		if err != nil {
			t.Fatal(err)
		}
		if !valid.MatchString(code) {
			t.Fatalf("unexpected code %q", code)
		}
		if seen[code] {
			t.Fatalf("duplicate code %q", code)
		}
		seen[code] = true
	}
}
