package donations

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/alumni-connect/backend/internal/payments"
	"github.com/alumni-connect/backend/pkg/response"
)

// Handler handles donation HTTP endpoints.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates a donations handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

// ListCategories handles GET /donation-categories.
func (h *Handler) ListCategories(c *gin.Context) {
	h.listCategories(c, true)
}

// ListAllCategories handles GET /admin/donation-categories, including inactive ones.
func (h *Handler) ListAllCategories(c *gin.Context) {
	h.listCategories(c, false)
}

func (h *Handler) listCategories(c *gin.Context, activeOnly bool) {
	list, err := h.svc.Categories(c.Request.Context(), activeOnly)
	if err != nil {
		h.fail(c, "list categories failed", err)
		return
	}
	response.OK(c, list)
}

// CreateCategory handles POST /admin/donation-categories.
func (h *Handler) CreateCategory(c *gin.Context) {
	var in CategoryInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	cat, err := h.svc.CreateCategory(c.Request.Context(), in)
	if err != nil {
		h.fail(c, "create category failed", err)
		return
	}
	response.Created(c, cat)
}

// UpdateCategory handles PATCH /admin/donation-categories/:id.
func (h *Handler) UpdateCategory(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid category id")
		return
	}
	var in CategoryInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	cat, err := h.svc.UpdateCategory(c.Request.Context(), id, in)
	if err != nil {
		h.fail(c, "update category failed", err)
		return
	}
	response.OK(c, cat)
}

// CreateOrder handles POST /donations/orders.
func (h *Handler) CreateOrder(c *gin.Context) {
	var req OrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	co, err := h.svc.CreateOrder(c.Request.Context(), req)
	if err != nil {
		h.fail(c, "create donation order failed", err)
		return
	}
	response.Created(c, co)
}

// Confirm handles POST /donations/confirm.
func (h *Handler) Confirm(c *gin.Context) {
	var cb payments.Callback
	if err := c.ShouldBindJSON(&cb); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	d, err := h.svc.Confirm(c.Request.Context(), cb)
	if err != nil {
		h.fail(c, "confirm donation failed", err)
		return
	}
	response.OK(c, d)
}

// List handles GET /admin/donations?category_id=&limit=&offset=.
func (h *Handler) List(c *gin.Context) {
	var categoryID *uuid.UUID
	if raw := c.Query("category_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			response.BadRequest(c, "invalid category_id")
			return
		}
		categoryID = &id
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	list, err := h.svc.List(c.Request.Context(), categoryID, limit, offset)
	if err != nil {
		h.fail(c, "list donations failed", err)
		return
	}
	response.OK(c, list)
}

// Totals handles GET /admin/donations/totals.
func (h *Handler) Totals(c *gin.Context) {
	totals, err := h.svc.Totals(c.Request.Context())
	if err != nil {
		h.fail(c, "donation totals failed", err)
		return
	}
	response.OK(c, totals)
}

func (h *Handler) fail(c *gin.Context, msg string, err error) {
	if response.StatusFor(err) >= 500 {
		h.logger.Error(msg, zap.Error(err))
	}
	response.Error(c, err)
}
