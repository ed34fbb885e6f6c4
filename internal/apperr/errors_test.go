package apperr

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestValidationWraps(t *testing.T) {
	err := Validation("bad phone %q", "12")
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if !strings.Contains(err.Error(), `bad phone "12"`) {
		t.Errorf("message = %q", err.Error())
	}
}

func TestIncompleteErrorUnwrapsBoth(t *testing.T) {
	cause := errors.New("db down")
	err := fmt.Errorf("confirm: %w", &IncompleteError{PaymentID: "pay_1", Err: cause})

	if !errors.Is(err, ErrRegistrationIncomplete) {
		t.Error("expected ErrRegistrationIncomplete")
	}
	if !errors.Is(err, cause) {
		t.Error("expected cause to be reachable")
	}
	var inc *IncompleteError
	if !errors.As(err, &inc) || inc.PaymentID != "pay_1" {
		t.Errorf("errors.As failed: %+v", inc)
	}
}
