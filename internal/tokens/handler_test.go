package tokens

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alumni-connect/backend/internal/models"
	"github.com/alumni-connect/backend/internal/testutil"
	"github.com/alumni-connect/backend/pkg/response"
)

type fixture struct {
	db     *testutil.DB
	pub    *testutil.Publisher
	router *gin.Engine
	token  *models.Token
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := testutil.NewDB()
	pub := &testutil.Publisher{}

	ev := db.Events.Seed("Alumni Reunion 2025", decimal.NewFromInt(500))
	st := &models.Student{FullName: "Asha Rao", Email: "asha@example.com"}
	if err := db.Students.UpsertByEmail(context.Background(), st); err != nil {
		t.Fatal(err)
	}
	tx := db.Ledger.Put(models.Transaction{
		PaymentID: "pay_asha",
		Amount:    decimal.NewFromInt(500),
		Currency:  "INR",
		Status:    models.TxStatusCaptured,
		Method:    "upi",
		EventID:   &ev.ID,
		StudentID: &st.ID,
	})
	issuer := NewIssuer(db.Tokens, db.Ledger, nil)
	tok, err := issuer.Issue(context.Background(), tx.ID, ev.ID, st.ID)
	if err != nil {
		t.Fatal(err)
	}

	h := NewHandler(issuer, db.Ledger, db.Events, db.Students, pub, "https://alumni.example.org", nil)
	r := gin.New()
	r.GET("/tokens/:id/receipt", h.GetReceipt)
	r.GET("/tokens/:id/receipt/qr", h.GetReceiptQR)
	r.GET("/tokens/:id/receipt/pdf", h.GetReceiptPDF)
	r.POST("/admin/tokens/redeem", h.Redeem)
	return &fixture{db: db, pub: pub, router: r, token: tok}
}

func (f *fixture) do(method, path string, body string) *httptest.ResponseRecorder {
	var rd *bytes.Reader
	if body != "" {
		rd = bytes.NewReader([]byte(body))
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestGetReceipt(t *testing.T) {
	f := newFixture(t)
	w := f.do(http.MethodGet, "/tokens/"+f.token.ID.String()+"/receipt", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	var body struct {
		Data Receipt `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	r := body.Data
	if r.StudentName != "Asha Rao" || r.EventName != "Alumni Reunion 2025" {
		t.Errorf("receipt = %+v", r)
	}
	if r.ScanURL != "https://alumni.example.org/scan/"+f.token.ScanCode {
		t.Errorf("scan url = %q", r.ScanURL)
	}
	if !r.Amount.Equal(decimal.NewFromInt(500)) {
		t.Errorf("amount = %s", r.Amount)
	}
}

func TestGetReceiptUnknownAndMalformed(t *testing.T) {
	f := newFixture(t)
	if w := f.do(http.MethodGet, "/tokens/"+uuid.NewString()+"/receipt", ""); w.Code != http.StatusNotFound {
		t.Errorf("unknown token status = %d", w.Code)
	}
	if w := f.do(http.MethodGet, "/tokens/nope/receipt", ""); w.Code != http.StatusBadRequest {
		t.Errorf("malformed id status = %d", w.Code)
	}
}

func TestReceiptRenderings(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/tokens/"+f.token.ID.String()+"/receipt/qr", "")
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "image/png" {
		t.Fatalf("qr status=%d type=%q", w.Code, w.Header().Get("Content-Type"))
	}
	if !bytes.HasPrefix(w.Body.Bytes(), []byte("\x89PNG")) {
		t.Error("qr body is not a png")
	}

	w = f.do(http.MethodGet, "/tokens/"+f.token.ID.String()+"/receipt/pdf", "")
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "application/pdf" {
		t.Fatalf("pdf status=%d type=%q", w.Code, w.Header().Get("Content-Type"))
	}
	if !bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF")) {
		t.Error("pdf body does not start with %PDF")
	}
	if !strings.Contains(w.Header().Get("Content-Disposition"), f.token.ID.String()) {
		t.Errorf("content-disposition = %q", w.Header().Get("Content-Disposition"))
	}
}

func TestRedeemEndpoint(t *testing.T) {
	f := newFixture(t)
	body := `{"scan_code":"` + f.token.ScanCode + `"}`

	if w := f.do(http.MethodPost, "/admin/tokens/redeem", body); w.Code != http.StatusOK {
		t.Fatalf("first redeem status = %d body=%s", w.Code, w.Body.String())
	}
	w := f.do(http.MethodPost, "/admin/tokens/redeem", body)
	if w.Code != http.StatusConflict {
		t.Fatalf("second redeem status = %d", w.Code)
	}
	var resp response.Body
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Success {
		t.Error("second redeem reported success")
	}
	if kinds := f.pub.Kinds(); len(kinds) != 1 || kinds[0] != "token_redeemed" {
		t.Errorf("published = %v", kinds)
	}
	if w := f.do(http.MethodPost, "/admin/tokens/redeem", `{"scan_code":"UNKNOWN"}`); w.Code != http.StatusNotFound {
		t.Errorf("unknown scan code status = %d", w.Code)
	}
}
