// Package dashboard serves the per-event admin summary.
package dashboard

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/alumni-connect/backend/internal/apperr"
	"github.com/alumni-connect/backend/internal/gateway"
	"github.com/alumni-connect/backend/internal/models"
	"github.com/alumni-connect/backend/pkg/response"
)

// CountStore reads raw aggregates.
type CountStore interface {
	Counts(ctx context.Context, eventID uuid.UUID) (*Counts, error)
}

// EventReader loads events.
type EventReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Event, error)
}

// Summary is the JSON shape of GET /admin/events/:id/summary.
type Summary struct {
	EventID          uuid.UUID       `json:"event_id"`
	EventName        string          `json:"event_name"`
	Registrations    int             `json:"registrations"`
	Paid             int             `json:"paid"`
	GatewayPaid      int             `json:"gateway_paid"`
	ManualPaid       int             `json:"manual_paid"`
	Exceptions       int             `json:"exceptions"`
	FailedPayments   int             `json:"failed_payments"`
	PendingManual    int             `json:"pending_manual"`
	TokensIssued     int             `json:"tokens_issued"`
	TokensUsed       int             `json:"tokens_used"`
	Revenue          decimal.Decimal `json:"revenue"`
	GatewayFees      decimal.Decimal `json:"gateway_fees"`
	AttendanceRate   *float64        `json:"attendance_rate,omitempty"`
	OrphanedPayments int             `json:"orphaned_payments"`
}

// Handler handles GET /admin/events/:id/summary.
type Handler struct {
	counts CountStore
	events EventReader
	logger *zap.Logger
}

// NewHandler creates a dashboard handler.
func NewHandler(counts CountStore, events EventReader, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{counts: counts, events: events, logger: logger}
}

// Build turns raw counts into the summary view.
func Build(ev *models.Event, c *Counts) Summary {
	s := Summary{
		EventID:        ev.ID,
		EventName:      ev.Name,
		Registrations:  c.Registrations,
		GatewayPaid:    c.GatewayCaptured,
		ManualPaid:     c.ManualPaid,
		Paid:           c.GatewayCaptured + c.ManualPaid,
		Exceptions:     c.Exceptions,
		FailedPayments: c.Failed,
		PendingManual:  c.PendingManual,
		TokensIssued:   c.TokensIssued,
		TokensUsed:     c.TokensUsed,
		Revenue:        c.Revenue,
		GatewayFees:    gateway.FromMinorUnits(c.FeesMinor),
	}
	if settled := s.Paid + s.Exceptions; settled > s.TokensIssued {
		s.OrphanedPayments = settled - s.TokensIssued
	}
	if c.TokensIssued > 0 {
		rate := float64(c.TokensUsed) / float64(c.TokensIssued) * 100
		s.AttendanceRate = &rate
	}
	return s
}

// GetByEvent handles GET /admin/events/:id/summary.
func (h *Handler) GetByEvent(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	ctx := c.Request.Context()

	ev, err := h.events.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			response.NotFound(c, "event not found")
			return
		}
		h.logger.Error("load event failed", zap.Error(err))
		response.Internal(c, "failed to load event")
		return
	}
	counts, err := h.counts.Counts(ctx, id)
	if err != nil {
		h.logger.Error("event summary failed", zap.String("event_id", id.String()), zap.Error(err))
		response.Internal(c, "failed to load summary")
		return
	}
	response.OK(c, Build(ev, counts))
}
