package tokens

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/alumni-connect/backend/internal/apperr"
	"github.com/alumni-connect/backend/internal/feed"
	"github.com/alumni-connect/backend/internal/middleware"
	"github.com/alumni-connect/backend/internal/models"
	"github.com/alumni-connect/backend/pkg/response"
)

// EventReader loads events for receipts.
type EventReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Event, error)
}

// StudentReader loads students for receipts.
type StudentReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Student, error)
}

// Publisher pushes a live update to connected admins.
type Publisher interface {
	Publish(ctx context.Context, kind string, data interface{})
}

// RedeemRequest is the body for POST /admin/tokens/redeem.
type RedeemRequest struct {
	ScanCode string `json:"scan_code" binding:"required"`
}

// Handler serves receipts and the venue scanning endpoint.
type Handler struct {
	issuer   *Issuer
	txs      TransactionReader
	events   EventReader
	students StudentReader
	pub      Publisher
	baseURL  string
	logger   *zap.Logger
}

// NewHandler creates a tokens handler. baseURL prefixes the scan URL encoded in QR codes.
func NewHandler(issuer *Issuer, txs TransactionReader, events EventReader, students StudentReader, pub Publisher, baseURL string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{issuer: issuer, txs: txs, events: events, students: students, pub: pub, baseURL: baseURL, logger: logger}
}

// ScanURL is what the QR code on a pass resolves to.
func ScanURL(baseURL, scanCode string) string {
	return fmt.Sprintf("%s/scan/%s", baseURL, scanCode)
}

// BuildReceipt assembles the printable view of a token.
func (h *Handler) BuildReceipt(ctx context.Context, tokenID uuid.UUID) (*Receipt, error) {
	tok, err := h.issuer.Get(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	ev, err := h.events.GetByID(ctx, tok.EventID)
	if err != nil {
		return nil, fmt.Errorf("load event: %w", err)
	}
	st, err := h.students.GetByID(ctx, tok.StudentID)
	if err != nil {
		return nil, fmt.Errorf("load student: %w", err)
	}
	tx, err := h.txs.GetByID(ctx, tok.TransactionID)
	if err != nil {
		return nil, fmt.Errorf("load transaction: %w", err)
	}
	return &Receipt{
		TokenID:      tok.ID,
		ScanCode:     tok.ScanCode,
		ScanURL:      ScanURL(h.baseURL, tok.ScanCode),
		IsUsed:       tok.IsUsed,
		UsedAt:       tok.UsedAt,
		EventName:    ev.Name,
		EventStarts:  ev.StartsAt,
		Venue:        ev.Venue,
		FoodIncluded: ev.FoodIncluded,
		StudentName:  st.FullName,
		Amount:       tx.Amount,
		Currency:     tx.Currency,
		PaymentID:    tx.PaymentID,
		Method:       tx.Method,
		Status:       tx.Status,
	}, nil
}

func (h *Handler) receipt(c *gin.Context) (*Receipt, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid token id")
		return nil, false
	}
	r, err := h.BuildReceipt(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			response.NotFound(c, "token not found")
			return nil, false
		}
		h.logger.Error("build receipt failed", zap.Error(err), zap.String("token_id", id.String()))
		response.Internal(c, "failed to load receipt")
		return nil, false
	}
	return r, true
}

// GetReceipt handles GET /tokens/:id/receipt.
func (h *Handler) GetReceipt(c *gin.Context) {
	if r, ok := h.receipt(c); ok {
		response.OK(c, r)
	}
}

// GetReceiptQR handles GET /tokens/:id/receipt/qr.
func (h *Handler) GetReceiptQR(c *gin.Context) {
	r, ok := h.receipt(c)
	if !ok {
		return
	}
	png, err := RenderQR(r, 320)
	if err != nil {
		h.logger.Error("render qr failed", zap.Error(err))
		response.Internal(c, "failed to render qr")
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

// GetReceiptPDF handles GET /tokens/:id/receipt/pdf.
func (h *Handler) GetReceiptPDF(c *gin.Context) {
	r, ok := h.receipt(c)
	if !ok {
		return
	}
	pdf, err := RenderPDF(r)
	if err != nil {
		h.logger.Error("render pdf failed", zap.Error(err))
		response.Internal(c, "failed to render pdf")
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`inline; filename="pass-%s.pdf"`, r.TokenID))
	c.Data(http.StatusOK, "application/pdf", pdf)
}

// Redeem handles POST /admin/tokens/redeem (admin or volunteer at the venue desk).
func (h *Handler) Redeem(c *gin.Context) {
	var req RedeemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	tok, err := h.issuer.Redeem(c.Request.Context(), req.ScanCode)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			response.NotFound(c, "unknown scan code")
			return
		}
		if !errors.Is(err, apperr.ErrTokenAlreadyUsed) {
			h.logger.Error("redeem failed", zap.Error(err))
		}
		response.Error(c, err)
		return
	}
	role, _ := middleware.Role(c)
	h.logger.Info("token redeemed", zap.String("token_id", tok.ID.String()), zap.String("by_role", string(role)))
	if h.pub != nil {
		h.pub.Publish(c.Request.Context(), feed.KindTokenRedeemed, gin.H{"token_id": tok.ID, "event_id": tok.EventID, "redeemed_by": role})
	}
	response.OK(c, tok)
}
