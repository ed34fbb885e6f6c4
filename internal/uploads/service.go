// Package uploads issues server-side upload handles for payment receipts. A storage id is only
// usable after the server generated it and confirmed the object landed in S3 within limits.
package uploads

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/alumni-connect/backend/internal/apperr"
	"github.com/alumni-connect/backend/pkg/storage"
)

const (
	keyPrefix = "upload:receipt:"
	// confirmedTTL keeps a confirmed handle resolvable long enough for an admin to finish reconciling.
	confirmedTTL = 24 * time.Hour
)

// ObjectStore is the S3 surface the upload flow uses.
type ObjectStore interface {
	GeneratePresignedUploadURL(ctx context.Context, bucket, key, contentType string, expires time.Duration) (string, error)
	GeneratePresignedDownloadURL(ctx context.Context, bucket, key string, expires time.Duration) (string, error)
	HeadObject(ctx context.Context, bucket, key string) (*storage.ObjectInfo, error)
	DeleteObject(ctx context.Context, bucket, key string) error
	ReceiptsBucket() string
	PresignExpire() time.Duration
}

// Handle is the server's record of an issued upload.
type Handle struct {
	StorageID   string    `json:"storage_id"`
	Key         string    `json:"key"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	IssuedBy    uuid.UUID `json:"issued_by"`
	IssuedAt    time.Time `json:"issued_at"`
	Confirmed   bool      `json:"confirmed"`
}

// Ticket is returned to the client so it can PUT the file directly to S3.
type Ticket struct {
	StorageID string            `json:"storage_id"`
	UploadURL string            `json:"upload_url"`
	Method    string            `json:"method"`
	Headers   map[string]string `json:"headers"`
	ExpiresAt time.Time         `json:"expires_at"`
}

// Request describes the file the client intends to upload.
type Request struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type" binding:"required"`
	Size        int64  `json:"size" binding:"required"`
}

// Service issues, confirms and resolves receipt upload handles.
type Service struct {
	rdb      *redis.Client
	objects  ObjectStore
	maxBytes int64
	now      func() time.Time
	logger   *zap.Logger
}

// NewService creates the upload service. maxBytes caps receipt size.
func NewService(rdb *redis.Client, objects ObjectStore, maxBytes int64, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxBytes <= 0 {
		maxBytes = storage.MaxReceiptFileSize
	}
	return &Service{rdb: rdb, objects: objects, maxBytes: maxBytes, now: time.Now, logger: logger}
}

// Validate rejects receipts that are too large or not an allowed image/PDF type.
func (s *Service) Validate(contentType string, size int64) error {
	if size > s.maxBytes {
		return fmt.Errorf("%w: file is %d bytes, limit is %d", apperr.ErrInvalidReceipt, size, s.maxBytes)
	}
	if !storage.ValidateReceiptFile(contentType, size, s.maxBytes) {
		return fmt.Errorf("%w: %q is not an accepted receipt type (jpeg, png, webp, pdf)", apperr.ErrInvalidReceipt, contentType)
	}
	return nil
}

// Issue validates the declared file and returns a presigned PUT for a fresh storage id.
func (s *Service) Issue(ctx context.Context, req Request, issuedBy uuid.UUID) (*Ticket, error) {
	if err := s.Validate(req.ContentType, req.Size); err != nil {
		return nil, err
	}
	ct := storage.NormalizeContentType(req.ContentType)
	now := s.now()
	h := Handle{
		StorageID:   uuid.NewString(),
		ContentType: ct,
		Size:        req.Size,
		IssuedBy:    issuedBy,
		IssuedAt:    now.UTC(),
	}
	h.Key = storage.ReceiptKey(h.StorageID, ct, now)

	ttl := s.objects.PresignExpire()
	url, err := s.objects.GeneratePresignedUploadURL(ctx, s.objects.ReceiptsBucket(), h.Key, ct, ttl)
	if err != nil {
		return nil, fmt.Errorf("presign receipt upload: %w", err)
	}
	// the handle outlives the URL slightly so a PUT finishing at the deadline can still be confirmed
	if err := s.save(ctx, &h, ttl+5*time.Minute); err != nil {
		return nil, err
	}
	s.logger.Info("receipt upload issued", zap.String("storage_id", h.StorageID), zap.String("issued_by", issuedBy.String()))

	return &Ticket{
		StorageID: h.StorageID,
		UploadURL: url,
		Method:    "PUT",
		Headers:   map[string]string{"Content-Type": ct},
		ExpiresAt: now.Add(ttl).UTC(),
	}, nil
}

// Complete checks the uploaded object against the limits and marks the handle confirmed. An
// object that fails the check is removed from the bucket.
func (s *Service) Complete(ctx context.Context, storageID string) (*Handle, error) {
	h, err := s.load(ctx, storageID)
	if err != nil {
		return nil, err
	}
	if h.Confirmed {
		return h, nil
	}
	info, err := s.objects.HeadObject(ctx, s.objects.ReceiptsBucket(), h.Key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, fmt.Errorf("%w: nothing was uploaded for %s", apperr.ErrInvalidReceipt, storageID)
		}
		return nil, fmt.Errorf("head receipt: %w", err)
	}
	if err := s.Validate(info.ContentType, info.Size); err != nil {
		s.logger.Warn("uploaded receipt rejected", zap.String("storage_id", storageID), zap.Int64("size", info.Size), zap.String("content_type", info.ContentType))
		if delErr := s.objects.DeleteObject(ctx, s.objects.ReceiptsBucket(), h.Key); delErr != nil {
			s.logger.Warn("failed to delete rejected receipt", zap.String("key", h.Key), zap.Error(delErr))
		}
		return nil, err
	}
	h.Size = info.Size
	h.ContentType = storage.NormalizeContentType(info.ContentType)
	h.Confirmed = true
	if err := s.save(ctx, h, confirmedTTL); err != nil {
		return nil, err
	}
	return h, nil
}

// ResolveReceipt returns the confirmed handle for storageID. Unknown, expired or unconfirmed ids
// are ErrInvalidReceipt.
func (s *Service) ResolveReceipt(ctx context.Context, storageID string) (*Handle, error) {
	h, err := s.load(ctx, storageID)
	if err != nil {
		return nil, err
	}
	if !h.Confirmed {
		return nil, fmt.Errorf("%w: upload %s has not been completed", apperr.ErrInvalidReceipt, storageID)
	}
	if err := s.Validate(h.ContentType, h.Size); err != nil {
		return nil, err
	}
	return h, nil
}

// DownloadURL returns a presigned GET for a stored receipt key.
func (s *Service) DownloadURL(ctx context.Context, key string) (string, time.Duration, error) {
	ttl := s.objects.PresignExpire()
	url, err := s.objects.GeneratePresignedDownloadURL(ctx, s.objects.ReceiptsBucket(), key, ttl)
	if err != nil {
		return "", 0, fmt.Errorf("presign receipt download: %w", err)
	}
	return url, ttl, nil
}

func (s *Service) load(ctx context.Context, storageID string) (*Handle, error) {
	if _, err := uuid.Parse(storageID); err != nil {
		return nil, fmt.Errorf("%w: malformed storage id", apperr.ErrInvalidReceipt)
	}
	raw, err := s.rdb.Get(ctx, keyPrefix+strings.ToLower(storageID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: unknown or expired storage id %s", apperr.ErrInvalidReceipt, storageID)
		}
		return nil, fmt.Errorf("load upload handle: %w", err)
	}
	var h Handle
	if err := json.Unmarshal(raw, &h); err != nil {
		return nil, fmt.Errorf("decode upload handle: %w", err)
	}
	return &h, nil
}

func (s *Service) save(ctx context.Context, h *Handle, ttl time.Duration) error {
	raw, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("encode upload handle: %w", err)
	}
	if err := s.rdb.Set(ctx, keyPrefix+h.StorageID, raw, ttl).Err(); err != nil {
		return fmt.Errorf("save upload handle: %w", err)
	}
	return nil
}
