package ledger

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alumni-connect/backend/internal/feed"
	"github.com/alumni-connect/backend/internal/models"
	"github.com/alumni-connect/backend/internal/testutil"
	"github.com/alumni-connect/backend/internal/tokens"
)

func newRouter(db *testutil.DB, pub *testutil.Publisher) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewHandler(db.Ledger, tokens.NewIssuer(db.Tokens, db.Ledger, nil), pub, nil)
	r := gin.New()
	r.GET("/admin/transactions", h.List)
	r.GET("/admin/transactions/orphans", h.Orphans)
	r.POST("/admin/transactions/:id/token", h.IssueToken)
	return r
}

func get(r *gin.Engine, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

func TestOrphanFollowUp(t *testing.T) {
	db := testutil.NewDB()
	pub := &testutil.Publisher{}
	r := newRouter(db, pub)
	ev, st := uuid.New(), uuid.New()
	tx := db.Ledger.Put(models.Transaction{
		PaymentID: "pay_orphan",
		Amount:    decimal.NewFromInt(500),
		Currency:  "INR",
		Status:    models.TxStatusCaptured,
		Source:    models.SourceGateway,
		EventID:   &ev,
		StudentID: &st,
	})

	w := get(r, http.MethodGet, "/admin/transactions/orphans")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "pay_orphan") {
		t.Fatalf("orphans: %d %s", w.Code, w.Body.String())
	}

	w = get(r, http.MethodPost, "/admin/transactions/"+tx.ID.String()+"/token")
	if w.Code != http.StatusOK {
		t.Fatalf("issue: %d %s", w.Code, w.Body.String())
	}
	if kinds := pub.Kinds(); len(kinds) != 1 || kinds[0] != feed.KindTokenIssued {
		t.Errorf("published = %v", kinds)
	}

	w = get(r, http.MethodGet, "/admin/transactions/orphans")
	if strings.Contains(w.Body.String(), "pay_orphan") {
		t.Errorf("transaction still orphaned: %s", w.Body.String())
	}
	if w := get(r, http.MethodPost, "/admin/transactions/"+tx.ID.String()+"/token"); w.Code != http.StatusOK || db.Tokens.Count() != 1 {
		t.Errorf("reissue: %d, tokens = %d", w.Code, db.Tokens.Count())
	}
}

func TestIssueTokenRejectsFailedTransaction(t *testing.T) {
	db := testutil.NewDB()
	r := newRouter(db, &testutil.Publisher{})
	ev, st := uuid.New(), uuid.New()
	tx := db.Ledger.Put(models.Transaction{PaymentID: "pay_failed", Status: models.TxStatusFailed, EventID: &ev, StudentID: &st})

	if w := get(r, http.MethodPost, "/admin/transactions/"+tx.ID.String()+"/token"); w.Code != http.StatusBadRequest {
		t.Errorf("failed tx: %d", w.Code)
	}
	if w := get(r, http.MethodPost, "/admin/transactions/nope/token"); w.Code != http.StatusBadRequest {
		t.Errorf("bad id: %d", w.Code)
	}
}

func TestListFiltersByEvent(t *testing.T) {
	db := testutil.NewDB()
	r := newRouter(db, &testutil.Publisher{})
	a, b := uuid.New(), uuid.New()
	db.Ledger.Put(models.Transaction{PaymentID: "pay_a", Status: models.TxStatusCaptured, EventID: &a})
	db.Ledger.Put(models.Transaction{PaymentID: "pay_b", Status: models.TxStatusCaptured, EventID: &b})

	w := get(r, http.MethodGet, "/admin/transactions?event_id="+a.String())
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "pay_a") || strings.Contains(w.Body.String(), "pay_b") {
		t.Errorf("filtered list: %d %s", w.Code, w.Body.String())
	}
	if w := get(r, http.MethodGet, "/admin/transactions?event_id=x"); w.Code != http.StatusBadRequest {
		t.Errorf("bad event id: %d", w.Code)
	}
}
