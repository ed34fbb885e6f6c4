package registrations

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/alumni-connect/backend/internal/apperr"
	"github.com/alumni-connect/backend/pkg/response"
)

type staticStatus struct {
	st  *Status
	err error
}

func (s staticStatus) Status(context.Context, uuid.UUID, uuid.UUID) (*Status, error) {
	return s.st, s.err
}

func newRouter(f *fixture, status StatusReader) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewHandler(f.svc, status, nil)
	r := gin.New()
	r.POST("/registrations", h.Register)
	r.POST("/events/:id/orders", h.CreateOrder)
	r.POST("/registrations/confirm", h.Confirm)
	r.GET("/events/:id/registrations/:student_id", h.Status)
	return r
}

func post(r *gin.Engine, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) (response.Body, map[string]interface{}) {
	t.Helper()
	var body response.Body
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	data, _ := body.Data.(map[string]interface{})
	return body, data
}

func TestHandlerFullFlow(t *testing.T) {
	f := newFixture(t)
	r := newRouter(f, nil)

	w := post(r, "/registrations", `{"full_name":"Asha Rao","email":"asha@example.com"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("register: %d %s", w.Code, w.Body.String())
	}
	_, data := decode(t, w)
	studentID, _ := data["student_id"].(string)

	w = post(r, "/events/"+f.event.ID.String()+"/orders", fmt.Sprintf(`{"student_id":%q}`, studentID))
	if w.Code != http.StatusCreated {
		t.Fatalf("order: %d %s", w.Code, w.Body.String())
	}
	_, data = decode(t, w)
	orderID, _ := data["order_id"].(string)
	if data["key_id"] != "rzp_test_key" || data["amount_minor"] != float64(50000) {
		t.Errorf("checkout = %v", data)
	}
	if strings.Contains(w.Body.String(), secret) {
		t.Error("checkout leaks the key secret")
	}

	payID, sig := f.gw.Pay(orderID, "captured", "upi")
	w = post(r, "/registrations/confirm", fmt.Sprintf(`{"razorpay_order_id":%q,"razorpay_payment_id":%q,"razorpay_signature":%q}`, orderID, payID, sig))
	if w.Code != http.StatusOK {
		t.Fatalf("confirm: %d %s", w.Code, w.Body.String())
	}
	_, data = decode(t, w)
	if data["payment_id"] != payID || data["token_id"] == "" {
		t.Errorf("confirm data = %v", data)
	}
}

func TestHandlerErrors(t *testing.T) {
	f := newFixture(t)
	r := newRouter(f, nil)
	st := f.registerAsha(t)

	if w := post(r, "/registrations", `{"full_name":"No Contact"}`); w.Code != http.StatusBadRequest {
		t.Errorf("missing contact: %d", w.Code)
	}
	if w := post(r, "/events/not-a-uuid/orders", `{"student_id":"x"}`); w.Code != http.StatusBadRequest {
		t.Errorf("bad event id: %d", w.Code)
	}
	if w := post(r, "/events/"+uuid.NewString()+"/orders", fmt.Sprintf(`{"student_id":%q}`, st.ID)); w.Code != http.StatusNotFound {
		t.Errorf("unknown event: %d", w.Code)
	}
	w := post(r, "/registrations/confirm", `{"razorpay_order_id":"order_1","razorpay_payment_id":"pay_1","razorpay_signature":"bad"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad signature: %d", w.Code)
	}

	f.gw.CreateErr = errors.New("dial tcp: refused")
	if w := post(r, "/events/"+f.event.ID.String()+"/orders", fmt.Sprintf(`{"student_id":%q}`, st.ID)); w.Code != http.StatusInternalServerError {
		t.Errorf("gateway error: %d", w.Code)
	}
}

func TestHandlerIncompleteIs202(t *testing.T) {
	f := newFixture(t)
	r := newRouter(f, nil)
	st := f.registerAsha(t)
	co, err := f.svc.CreateOrder(context.Background(), f.event.ID, st.ID)
	if err != nil {
		t.Fatal(err)
	}
	payID, sig := f.gw.Pay(co.OrderID, "captured", "card")
	f.db.Tokens.InsertErr = errors.New("insert failed")

	w := post(r, "/registrations/confirm", fmt.Sprintf(`{"razorpay_order_id":%q,"razorpay_payment_id":%q,"razorpay_signature":%q}`, co.OrderID, payID, sig))
	if w.Code != http.StatusAccepted {
		t.Fatalf("code = %d, body = %s", w.Code, w.Body.String())
	}
	body, data := decode(t, w)
	if body.Success || data["payment_id"] != payID {
		t.Errorf("body = %+v", body)
	}
}

func TestHandlerStatus(t *testing.T) {
	f := newFixture(t)
	tokID := uuid.New()
	r := newRouter(f, staticStatus{st: &Status{State: StateTokenIssued, TokenID: &tokID}})

	req := httptest.NewRequest(http.MethodGet, "/events/"+f.event.ID.String()+"/registrations/"+uuid.NewString(), nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("code = %d", w.Code)
	}
	_, data := decode(t, w)
	if data["state"] != StateTokenIssued || data["token_id"] != tokID.String() {
		t.Errorf("data = %v", data)
	}
}

func TestHandlerStatusOrderCreated(t *testing.T) {
	f := newFixture(t)
	r := newRouter(f, staticStatus{st: &Status{State: StateBeforePayment(true)}})

	req := httptest.NewRequest(http.MethodGet, "/events/"+f.event.ID.String()+"/registrations/"+uuid.NewString(), nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("code = %d", w.Code)
	}
	_, data := decode(t, w)
	if data["state"] != StateOrderCreated {
		t.Errorf("state = %v, want %s", data["state"], StateOrderCreated)
	}
	if _, ok := data["transaction_id"]; ok {
		t.Errorf("order without payment should carry no transaction: %v", data)
	}
}

func TestHandlerStatusUnknownStudent(t *testing.T) {
	f := newFixture(t)
	r := newRouter(f, staticStatus{err: apperr.ErrNotFound})

	req := httptest.NewRequest(http.MethodGet, "/events/"+f.event.ID.String()+"/registrations/"+uuid.NewString(), nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("code = %d, want 404 (%s)", w.Code, w.Body.String())
	}
	body, _ := decode(t, w)
	if body.Success {
		t.Errorf("body = %+v", body)
	}
}
