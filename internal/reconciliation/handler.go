package reconciliation

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/alumni-connect/backend/internal/apperr"
	"github.com/alumni-connect/backend/internal/middleware"
	"github.com/alumni-connect/backend/pkg/response"
)

// Handler exposes reconciliation to admins.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates a reconciliation handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

// Reconcile handles POST /admin/events/:id/reconciliations.
func (h *Handler) Reconcile(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	var req Request
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	adminID, _ := middleware.UserID(c)

	out, err := h.svc.Reconcile(c.Request.Context(), eventID, req, adminID)
	if err != nil {
		var inc *apperr.IncompleteError
		if errors.As(err, &inc) {
			response.Accepted(c, gin.H{"transaction_id": inc.TransactionID}, apperr.ErrRegistrationIncomplete.Error())
			return
		}
		if response.StatusFor(err) >= 500 {
			h.logger.Error("reconcile failed", zap.String("event_id", eventID.String()), zap.Error(err))
		}
		response.Error(c, err)
		return
	}
	response.Created(c, out)
}

// List handles GET /admin/events/:id/reconciliations.
func (h *Handler) List(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	list, err := h.svc.List(c.Request.Context(), eventID)
	if err != nil {
		h.logger.Error("list reconciliations failed", zap.Error(err))
		response.Error(c, err)
		return
	}
	response.OK(c, list)
}

// ReceiptURL handles GET /admin/reconciliations/:id/receipt-url.
func (h *Handler) ReceiptURL(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid id")
		return
	}
	url, ttl, err := h.svc.ReceiptURL(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			response.NotFound(c, "no receipt for this reconciliation")
			return
		}
		h.logger.Error("presign receipt failed", zap.String("id", id.String()), zap.Error(err))
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"url": url, "expires_at": time.Now().Add(ttl).UTC()})
}
