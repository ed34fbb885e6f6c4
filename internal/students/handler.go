package students

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/alumni-connect/backend/internal/apperr"
	"github.com/alumni-connect/backend/internal/models"
	"github.com/alumni-connect/backend/pkg/response"
	"github.com/alumni-connect/backend/pkg/storage"
)

// PhotoUploader stores student photos server-side.
type PhotoUploader interface {
	Upload(ctx context.Context, bucket, key, contentType string, body io.Reader, contentLength int64) (string, error)
	PhotosBucket() string
}

// Searcher finds students for the admin picker.
type Searcher interface {
	Search(ctx context.Context, q string, limit int) ([]models.Student, error)
}

// Handler handles student HTTP endpoints other than registration.
type Handler struct {
	registry *Registry
	search   Searcher
	photos   PhotoUploader
	logger   *zap.Logger
}

// NewHandler creates a students handler.
func NewHandler(registry *Registry, search Searcher, photos PhotoUploader, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{registry: registry, search: search, photos: photos, logger: logger}
}

// Get handles GET /admin/students/:id.
func (h *Handler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid student id")
		return
	}
	s, err := h.registry.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			response.NotFound(c, "student not found")
			return
		}
		h.logger.Error("get student failed", zap.Error(err))
		response.Internal(c, "failed to load student")
		return
	}
	response.OK(c, s)
}

// Search handles GET /admin/students?q=.
func (h *Handler) Search(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	list, err := h.search.Search(c.Request.Context(), c.Query("q"), limit)
	if err != nil {
		h.logger.Error("search students failed", zap.Error(err))
		response.Internal(c, "failed to search students")
		return
	}
	if list == nil {
		list = []models.Student{}
	}
	response.OK(c, list)
}

// UploadPhoto handles POST /students/:id/photo (multipart field "photo").
func (h *Handler) UploadPhoto(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid student id")
		return
	}
	fh, err := c.FormFile("photo")
	if err != nil {
		response.BadRequest(c, "photo file required")
		return
	}
	if fh.Size > storage.MaxPhotoFileSize {
		response.BadRequest(c, "photo must be 5MB or smaller")
		return
	}
	f, err := fh.Open()
	if err != nil {
		response.BadRequest(c, "unreadable upload")
		return
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, storage.MaxPhotoFileSize+1))
	if err != nil {
		response.BadRequest(c, "unreadable upload")
		return
	}
	ct := http.DetectContentType(data)
	if !storage.ValidatePhotoFile(ct, int64(len(data))) {
		response.BadRequest(c, "photo must be a JPEG, PNG or WebP image up to 5MB")
		return
	}

	ctx := c.Request.Context()
	if _, err := h.registry.Get(ctx, id); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			response.NotFound(c, "student not found")
			return
		}
		response.Internal(c, "failed to load student")
		return
	}
	key := storage.PhotoKey(id.String(), ct)
	if _, err := h.photos.Upload(ctx, h.photos.PhotosBucket(), key, storage.NormalizeContentType(ct), bytes.NewReader(data), int64(len(data))); err != nil {
		h.logger.Error("photo upload failed", zap.Error(err), zap.String("student_id", id.String()))
		response.Internal(c, "failed to store photo")
		return
	}
	if err := h.registry.store.SetPhoto(ctx, id, key); err != nil {
		h.logger.Error("set photo failed", zap.Error(err), zap.String("student_id", id.String()))
		response.Internal(c, "failed to save photo")
		return
	}
	response.OK(c, gin.H{"student_id": id, "photo_storage_id": key})
}
