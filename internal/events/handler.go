// Package events exposes the event catalogue. The payment flows only read from it.
package events

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/alumni-connect/backend/internal/apperr"
	"github.com/alumni-connect/backend/internal/models"
	"github.com/alumni-connect/backend/pkg/response"
)

// Store persists events.
type Store interface {
	Create(ctx context.Context, e *models.Event) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Event, error)
	List(ctx context.Context, activeOnly bool) ([]models.Event, error)
	Update(ctx context.Context, e *models.Event) error
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

// CreateRequest is the body for POST /admin/events.
type CreateRequest struct {
	Name         string          `json:"name" binding:"required"`
	Description  string          `json:"description"`
	Venue        string          `json:"venue"`
	StartsAt     string          `json:"starts_at" binding:"required"`
	EndsAt       *string         `json:"ends_at"`
	Fee          decimal.Decimal `json:"fee"`
	FoodIncluded bool            `json:"food_included"`
}

// UpdateRequest is the body for PATCH /admin/events/:id. Nil fields are left unchanged.
type UpdateRequest struct {
	Name         *string          `json:"name"`
	Description  *string          `json:"description"`
	Venue        *string          `json:"venue"`
	StartsAt     *string          `json:"starts_at"`
	EndsAt       *string          `json:"ends_at"`
	Fee          *decimal.Decimal `json:"fee"`
	FoodIncluded *bool            `json:"food_included"`
	IsActive     *bool            `json:"is_active"`
}

// Handler handles event HTTP endpoints.
type Handler struct {
	store  Store
	logger *zap.Logger
}

// NewHandler creates an events handler.
func NewHandler(store Store, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, logger: logger}
}

func validateFee(fee decimal.Decimal) error {
	if fee.IsNegative() {
		return apperr.Validation("fee must not be negative")
	}
	if !fee.Equal(fee.Round(2)) {
		return apperr.Validation("fee has more than two decimal places")
	}
	return nil
}

// Create handles POST /admin/events.
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	startsAt, err := parseTime(req.StartsAt)
	if err != nil {
		response.BadRequest(c, "invalid starts_at")
		return
	}
	var endsAt *time.Time
	if req.EndsAt != nil {
		t, err := parseTime(*req.EndsAt)
		if err != nil || t.Before(startsAt) {
			response.BadRequest(c, "invalid ends_at")
			return
		}
		endsAt = &t
	}
	if err := validateFee(req.Fee); err != nil {
		response.Error(c, err)
		return
	}

	e := &models.Event{
		Name:         req.Name,
		Description:  req.Description,
		Venue:        req.Venue,
		StartsAt:     startsAt,
		EndsAt:       endsAt,
		Fee:          req.Fee,
		FoodIncluded: req.FoodIncluded,
		IsActive:     true,
	}
	if err := h.store.Create(c.Request.Context(), e); err != nil {
		h.logger.Error("create event failed", zap.Error(err))
		response.Internal(c, "failed to create event")
		return
	}
	response.Created(c, e)
}

// GetByID handles GET /events/:id.
func (h *Handler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	e, err := h.store.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			response.NotFound(c, "event not found")
			return
		}
		h.logger.Error("get event failed", zap.Error(err), zap.String("event_id", id.String()))
		response.Internal(c, "failed to load event")
		return
	}
	response.OK(c, e)
}

// List handles GET /events (active only) and GET /admin/events (all).
func (h *Handler) List(activeOnly bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := h.store.List(c.Request.Context(), activeOnly)
		if err != nil {
			h.logger.Error("list events failed", zap.Error(err))
			response.Internal(c, "failed to list events")
			return
		}
		if list == nil {
			list = []models.Event{}
		}
		response.OK(c, list)
	}
}

// Update handles PATCH /admin/events/:id.
func (h *Handler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request")
		return
	}
	e, err := h.store.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			response.NotFound(c, "event not found")
			return
		}
		response.Internal(c, "failed to load event")
		return
	}
	if req.Name != nil {
		e.Name = *req.Name
	}
	if req.Description != nil {
		e.Description = *req.Description
	}
	if req.Venue != nil {
		e.Venue = *req.Venue
	}
	if req.StartsAt != nil {
		t, err := parseTime(*req.StartsAt)
		if err != nil {
			response.BadRequest(c, "invalid starts_at")
			return
		}
		e.StartsAt = t
	}
	if req.EndsAt != nil {
		t, err := parseTime(*req.EndsAt)
		if err != nil {
			response.BadRequest(c, "invalid ends_at")
			return
		}
		e.EndsAt = &t
	}
	if e.EndsAt != nil && e.EndsAt.Before(e.StartsAt) {
		response.BadRequest(c, "ends_at is before starts_at")
		return
	}
	if req.Fee != nil {
		if err := validateFee(*req.Fee); err != nil {
			response.Error(c, err)
			return
		}
		e.Fee = *req.Fee
	}
	if req.FoodIncluded != nil {
		e.FoodIncluded = *req.FoodIncluded
	}
	if req.IsActive != nil {
		e.IsActive = *req.IsActive
	}
	if err := h.store.Update(c.Request.Context(), e); err != nil {
		h.logger.Error("update event failed", zap.Error(err), zap.String("event_id", id.String()))
		response.Internal(c, "failed to update event")
		return
	}
	response.OK(c, e)
}
