package ledger

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/alumni-connect/backend/internal/feed"
	"github.com/alumni-connect/backend/internal/models"
	"github.com/alumni-connect/backend/pkg/response"
)

// Reader lists transactions.
type Reader interface {
	List(ctx context.Context, eventID *uuid.UUID, limit, offset int) ([]models.Transaction, error)
	ListOrphans(ctx context.Context) ([]models.Transaction, error)
}

// TokenIssuer finishes an orphaned registration.
type TokenIssuer interface {
	IssueForTransaction(ctx context.Context, transactionID uuid.UUID) (*models.Token, error)
}

// Publisher pushes a live update to connected admins.
type Publisher interface {
	Publish(ctx context.Context, kind string, data interface{})
}

// Handler exposes the ledger to admins.
type Handler struct {
	reader Reader
	issuer TokenIssuer
	pub    Publisher
	logger *zap.Logger
}

// NewHandler creates a ledger handler. pub may be nil.
func NewHandler(reader Reader, issuer TokenIssuer, pub Publisher, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{reader: reader, issuer: issuer, pub: pub, logger: logger}
}

// List handles GET /admin/transactions?event_id=&limit=&offset=.
func (h *Handler) List(c *gin.Context) {
	var eventID *uuid.UUID
	if raw := c.Query("event_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			response.BadRequest(c, "invalid event_id")
			return
		}
		eventID = &id
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if offset < 0 {
		offset = 0
	}
	list, err := h.reader.List(c.Request.Context(), eventID, limit, offset)
	if err != nil {
		h.logger.Error("list transactions failed", zap.Error(err))
		response.Internal(c, "failed to list transactions")
		return
	}
	if list == nil {
		list = []models.Transaction{}
	}
	response.OK(c, list)
}

// Orphans handles GET /admin/transactions/orphans: successful registration payments with no token.
func (h *Handler) Orphans(c *gin.Context) {
	list, err := h.reader.ListOrphans(c.Request.Context())
	if err != nil {
		h.logger.Error("list orphans failed", zap.Error(err))
		response.Internal(c, "failed to list orphaned transactions")
		return
	}
	if list == nil {
		list = []models.Transaction{}
	}
	response.OK(c, list)
}

// IssueToken handles POST /admin/transactions/:id/token.
func (h *Handler) IssueToken(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid transaction id")
		return
	}
	tok, err := h.issuer.IssueForTransaction(c.Request.Context(), id)
	if err != nil {
		if response.StatusFor(err) >= 500 {
			h.logger.Error("issue token for orphan failed", zap.String("transaction_id", id.String()), zap.Error(err))
		}
		response.Error(c, err)
		return
	}
	h.logger.Info("orphaned transaction tokened", zap.String("transaction_id", id.String()), zap.String("token_id", tok.ID.String()))
	if h.pub != nil {
		h.pub.Publish(c.Request.Context(), feed.KindTokenIssued, tok)
	}
	response.OK(c, tok)
}
