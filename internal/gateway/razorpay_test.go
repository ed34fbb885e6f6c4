package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alumni-connect/backend/internal/apperr"
	"github.com/alumni-connect/backend/internal/models"
)

const testSecret = "test_secret"

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(Config{
		KeyID:      "rzp_test_key",
		KeySecret:  testSecret,
		BaseURL:    srv.URL,
		Timeout:    2 * time.Second,
		RetryDelay: time.Millisecond,
	}, nil)
}

func TestVerifySignature(t *testing.T) {
	good := Sign("order_1", "pay_123", testSecret)
	tampered := "0" + good[1:]
	if good[0] == '0' {
		tampered = "1" + good[1:]
	}

	tests := []struct {
		name      string
		orderID   string
		paymentID string
		signature string
		want      bool
	}{
		{"valid", "order_1", "pay_123", good, true},
		{"uppercase hex accepted", "order_1", "pay_123", strings.ToUpper(good), true},
		{"tampered signature", "order_1", "pay_123", tampered, false},
		{"swapped ids", "pay_123", "order_1", good, false},
		{"other payment", "order_1", "pay_999", good, false},
		{"empty signature", "order_1", "pay_123", "", false},
		{"garbage", "order_1", "pay_123", "not-hex", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := VerifySignature(tt.orderID, tt.paymentID, tt.signature, testSecret); got != tt.want {
				t.Errorf("VerifySignature = %v, want %v", got, tt.want)
			}
		})
	}

	if VerifySignature("order_1", "pay_123", good, "other_secret") {
		t.Error("signature must not verify under a different secret")
	}
}

func TestToMinorUnits(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"500", 50000},
		{"499.99", 49999},
		{"0.015", 2},
		{"1250.5", 125050},
	}
	for _, tt := range tests {
		got, err := ToMinorUnits(decimal.RequireFromString(tt.in))
		if err != nil {
			t.Fatalf("ToMinorUnits(%s): %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ToMinorUnits(%s) = %d, want %d", tt.in, got, tt.want)
		}
	}
	if _, err := ToMinorUnits(decimal.Zero); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("zero amount: err = %v", err)
	}
	if !FromMinorUnits(50000).Equal(decimal.NewFromInt(500)) {
		t.Error("FromMinorUnits(50000) != 500")
	}
}

func TestCreateOrder(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/orders" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "rzp_test_key" || pass != testSecret {
			t.Errorf("basic auth = %q/%q", user, pass)
		}
		var body map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatal(err)
		}
		if body["amount"].(float64) != 50000 || body["currency"] != "INR" {
			t.Errorf("body = %v", body)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"order_abc","entity":"order","amount":50000,"currency":"INR","receipt":"r1","status":"created"}`))
	})

	order, err := c.CreateOrder(context.Background(), decimal.NewFromInt(500), "INR", "r1", map[string]string{"event_id": "e1"})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if order.ID != "order_abc" || order.Amount != 50000 {
		t.Errorf("order = %+v", order)
	}
}

func TestCreateOrderErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"auth failure", http.StatusUnauthorized, apperr.ErrGatewayUnavailable},
		{"server error", http.StatusBadGateway, apperr.ErrGatewayUnavailable},
		{"bad request", http.StatusBadRequest, apperr.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error":{"code":"X","description":"nope"}}`))
			})
			_, err := c.CreateOrder(context.Background(), decimal.NewFromInt(10), "INR", "r", nil)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestCreateOrderNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(Config{KeyID: "k", KeySecret: "s", BaseURL: url, Timeout: time.Second}, nil)
	_, err := c.CreateOrder(context.Background(), decimal.NewFromInt(10), "INR", "r", nil)
	if !errors.Is(err, apperr.ErrGatewayUnavailable) {
		t.Errorf("err = %v, want ErrGatewayUnavailable", err)
	}
}

func TestFetchPaymentRetriesTransientFailure(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/payments/pay_123" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"id":"pay_123","order_id":"order_abc","status":"captured","method":"upi","amount":50000,"currency":"INR","bank":null,"vpa":"asha@okaxis","fee":1180,"tax":180}`))
	})

	p, err := c.FetchPayment(context.Background(), "pay_123")
	if err != nil {
		t.Fatalf("FetchPayment: %v", err)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
	if p.Status != "captured" || p.Amount != 50000 || p.VPA != "asha@okaxis" || p.Fee != 1180 {
		t.Errorf("payment = %+v", p)
	}
	if p.LedgerStatus() != models.TxStatusCaptured {
		t.Errorf("ledger status = %s", p.LedgerStatus())
	}
	if !strings.Contains(string(p.Raw), `"vpa":"asha@okaxis"`) {
		t.Error("raw payload not retained")
	}
}

func TestFetchPaymentDoesNotRetryRejectedCredentials(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		var calls int32
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"code":"BAD_REQUEST_ERROR","description":"Authentication failed"}}`))
		})

		_, err := c.FetchPayment(context.Background(), "pay_1")
		if !errors.Is(err, apperr.ErrGatewayUnavailable) {
			t.Errorf("%d: err = %v, want ErrGatewayUnavailable", status, err)
		}
		if n := atomic.LoadInt32(&calls); n != 1 {
			t.Errorf("%d: calls = %d, want 1", status, n)
		}
	}
}

func TestFetchPaymentGivesUpAfterMaxAttempts(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	})

	if _, err := c.FetchPayment(context.Background(), "pay_1"); !errors.Is(err, apperr.ErrGatewayUnavailable) {
		t.Errorf("err = %v, want ErrGatewayUnavailable", err)
	}
	if n := atomic.LoadInt32(&calls); n != fetchMaxAttempts {
		t.Errorf("calls = %d, want %d", n, fetchMaxAttempts)
	}
}

func TestLedgerStatus(t *testing.T) {
	for in, want := range map[string]string{
		"captured":   models.TxStatusCaptured,
		"authorized": models.TxStatusPending,
		"failed":     models.TxStatusFailed,
		"refunded":   models.TxStatusRefunded,
		"created":    models.TxStatusCreated,
	} {
		p := Payment{Status: in}
		if got := p.LedgerStatus(); got != want {
			t.Errorf("LedgerStatus(%s) = %s, want %s", in, got, want)
		}
	}
}
