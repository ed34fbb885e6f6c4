package registrations

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/alumni-connect/backend/internal/apperr"
	"github.com/alumni-connect/backend/internal/payments"
	"github.com/alumni-connect/backend/internal/students"
	"github.com/alumni-connect/backend/pkg/response"
)

// StatusReader answers where a student is in the flow for an event.
type StatusReader interface {
	Status(ctx context.Context, eventID, studentID uuid.UUID) (*Status, error)
}

// OrderRequest is the body for POST /events/:id/orders.
type OrderRequest struct {
	StudentID string `json:"student_id" binding:"required"`
}

// Handler handles registration HTTP endpoints.
type Handler struct {
	svc    *Service
	status StatusReader
	logger *zap.Logger
}

// NewHandler creates a registrations handler. status may be nil, which disables the status route.
func NewHandler(svc *Service, status StatusReader, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, status: status, logger: logger}
}

// Register handles POST /registrations.
func (h *Handler) Register(c *gin.Context) {
	var in students.Input
	if err := c.ShouldBindJSON(&in); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	st, err := h.svc.Register(c.Request.Context(), in)
	if err != nil {
		h.fail(c, "register student failed", err)
		return
	}
	response.Created(c, gin.H{"student_id": st.ID, "student": st})
}

// CreateOrder handles POST /events/:id/orders.
func (h *Handler) CreateOrder(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	var req OrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	studentID, err := uuid.Parse(req.StudentID)
	if err != nil {
		response.BadRequest(c, "invalid student_id")
		return
	}
	co, err := h.svc.CreateOrder(c.Request.Context(), eventID, studentID)
	if err != nil {
		h.fail(c, "create order failed", err, zap.String("event_id", eventID.String()))
		return
	}
	response.Created(c, co)
}

// Confirm handles POST /registrations/confirm.
func (h *Handler) Confirm(c *gin.Context) {
	var cb payments.Callback
	if err := c.ShouldBindJSON(&cb); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	res, err := h.svc.Confirm(c.Request.Context(), cb)
	if err != nil {
		var inc *apperr.IncompleteError
		if errors.As(err, &inc) {
			response.Accepted(c, gin.H{"payment_id": inc.PaymentID, "transaction_id": inc.TransactionID}, apperr.ErrRegistrationIncomplete.Error())
			return
		}
		h.fail(c, "confirm registration failed", err, zap.String("order_id", cb.OrderID))
		return
	}
	response.OK(c, res)
}

// Status handles GET /events/:id/registrations/:student_id.
func (h *Handler) Status(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	studentID, err := uuid.Parse(c.Param("student_id"))
	if err != nil {
		response.BadRequest(c, "invalid student id")
		return
	}
	st, err := h.status.Status(c.Request.Context(), eventID, studentID)
	if err != nil {
		h.fail(c, "registration status failed", err)
		return
	}
	response.OK(c, st)
}

func (h *Handler) fail(c *gin.Context, msg string, err error, fields ...zap.Field) {
	if response.StatusFor(err) >= 500 {
		h.logger.Error(msg, append(fields, zap.Error(err))...)
	}
	response.Error(c, err)
}
