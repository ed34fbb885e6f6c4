package uploads

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/alumni-connect/backend/internal/middleware"
	"github.com/alumni-connect/backend/pkg/response"
)

// Handler handles receipt upload endpoints.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates an uploads handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

// Issue handles POST /admin/uploads.
func (h *Handler) Issue(c *gin.Context) {
	var req Request
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	userID, _ := middleware.UserID(c)
	ticket, err := h.svc.Issue(c.Request.Context(), req, userID)
	if err != nil {
		h.logger.Warn("issue upload failed", zap.Error(err))
		response.Error(c, err)
		return
	}
	response.Created(c, ticket)
}

// Complete handles POST /admin/uploads/:storage_id/complete.
func (h *Handler) Complete(c *gin.Context) {
	handle, err := h.svc.Complete(c.Request.Context(), c.Param("storage_id"))
	if err != nil {
		h.logger.Warn("complete upload failed", zap.Error(err), zap.String("storage_id", c.Param("storage_id")))
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{
		"storage_id":   handle.StorageID,
		"content_type": handle.ContentType,
		"size":         handle.Size,
		"confirmed":    handle.Confirmed,
	})
}
