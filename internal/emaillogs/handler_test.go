package emaillogs

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/alumni-connect/backend/internal/models"
)

type stubLister struct {
	eventID uuid.UUID
	status  string
	logs    []*models.EmailLog
}

func (s *stubLister) ListByEvent(_ context.Context, eventID uuid.UUID, status string) ([]*models.EmailLog, error) {
	s.eventID, s.status = eventID, status
	return s.logs, nil
}

func TestListByEvent(t *testing.T) {
	gin.SetMode(gin.TestMode)
	stub := &stubLister{}
	r := gin.New()
	r.GET("/admin/events/:id/emails", NewHandler(stub, nil).ListByEvent)
	id := uuid.New()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/events/"+id.String()+"/emails?status=failed", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"data":[]`) {
		t.Errorf("list: %d %s", w.Code, w.Body.String())
	}
	if stub.eventID != id || stub.status != models.EmailLogStatusFailed {
		t.Errorf("queried %v %q", stub.eventID, stub.status)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/events/"+id.String()+"/emails?status=bounced", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad status filter: %d", w.Code)
	}
}
