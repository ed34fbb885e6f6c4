package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/alumni-connect/backend/internal/apperr"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{apperr.Validation("x"), http.StatusBadRequest},
		{fmt.Errorf("confirm: %w", apperr.ErrSignatureInvalid), http.StatusBadRequest},
		{apperr.ErrInvalidReceipt, http.StatusBadRequest},
		{apperr.ErrEventNotFound, http.StatusNotFound},
		{apperr.ErrAlreadyReconciled, http.StatusConflict},
		{apperr.ErrTokenAlreadyUsed, http.StatusConflict},
		{apperr.ErrGatewayUnavailable, http.StatusServiceUnavailable},
		{apperr.ErrPaymentNotCaptured, http.StatusPaymentRequired},
		{&apperr.IncompleteError{PaymentID: "pay_1", Err: errors.New("x")}, http.StatusAccepted},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := StatusFor(tt.err); got != tt.want {
			t.Errorf("StatusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestErrorHidesInternalDetails(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	Error(c, errors.New("pq: password authentication failed"))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", w.Code)
	}
	var body Body
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Error != "internal error" {
		t.Errorf("error = %q", body.Error)
	}
}
