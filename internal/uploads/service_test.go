package uploads

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/alumni-connect/backend/internal/apperr"
	"github.com/alumni-connect/backend/pkg/storage"
)

const mb = 1024 * 1024

type fakeObjects struct {
	mu      sync.Mutex
	objects map[string]storage.ObjectInfo
	deleted []string
	headErr error
}

func (f *fakeObjects) GeneratePresignedUploadURL(_ context.Context, bucket, key, _ string, _ time.Duration) (string, error) {
	return "https://" + bucket + ".s3.test/" + key + "?X-Amz-Signature=put", nil
}

func (f *fakeObjects) GeneratePresignedDownloadURL(_ context.Context, bucket, key string, _ time.Duration) (string, error) {
	return "https://" + bucket + ".s3.test/" + key + "?X-Amz-Signature=get", nil
}

func (f *fakeObjects) HeadObject(_ context.Context, _, key string) (*storage.ObjectInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.headErr != nil {
		return nil, f.headErr
	}
	info, ok := f.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return &info, nil
}

func (f *fakeObjects) DeleteObject(_ context.Context, _, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	f.deleted = append(f.deleted, key)
	return nil
}

func (f *fakeObjects) put(key string, info storage.ObjectInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = info
}

func (f *fakeObjects) ReceiptsBucket() string        { return "receipts" }
func (f *fakeObjects) PresignExpire() time.Duration { return 15 * time.Minute }

func newTestService(t *testing.T) (*Service, *fakeObjects, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	objs := &fakeObjects{objects: map[string]storage.ObjectInfo{}}
	return NewService(rdb, objs, 5*mb, nil), objs, mr
}

func TestValidateReceiptLimits(t *testing.T) {
	svc, _, _ := newTestService(t)
	tests := []struct {
		name string
		ct   string
		size int64
		ok   bool
	}{
		{"6MB rejected", "image/png", 6 * mb, false},
		{"text/plain rejected", "text/plain", 1024, false},
		{"2MB png accepted", "image/png", 2 * mb, true},
		{"pdf accepted", "application/pdf", mb, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.Validate(tt.ct, tt.size)
			if tt.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.ok && !errors.Is(err, apperr.ErrInvalidReceipt) {
				t.Fatalf("err = %v, want ErrInvalidReceipt", err)
			}
		})
	}
}

func TestIssueRejectsBeforeAnyWrite(t *testing.T) {
	svc, _, mr := newTestService(t)
	_, err := svc.Issue(context.Background(), Request{ContentType: "image/png", Size: 6 * mb}, uuid.New())
	if !errors.Is(err, apperr.ErrInvalidReceipt) {
		t.Fatalf("err = %v", err)
	}
	if keys := mr.Keys(); len(keys) != 0 {
		t.Errorf("handles written for rejected upload: %v", keys)
	}
}

func TestIssueCompleteResolve(t *testing.T) {
	svc, objs, _ := newTestService(t)
	ctx := context.Background()

	ticket, err := svc.Issue(ctx, Request{Filename: "upi.png", ContentType: "image/png", Size: 2 * mb}, uuid.New())
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if ticket.Method != "PUT" || ticket.UploadURL == "" {
		t.Fatalf("ticket = %+v", ticket)
	}

	if _, err := svc.ResolveReceipt(ctx, ticket.StorageID); !errors.Is(err, apperr.ErrInvalidReceipt) {
		t.Fatalf("unconfirmed handle resolved: %v", err)
	}
	if _, err := svc.Complete(ctx, ticket.StorageID); !errors.Is(err, apperr.ErrInvalidReceipt) {
		t.Fatalf("complete without object: %v", err)
	}

	h, err := svc.load(ctx, ticket.StorageID)
	if err != nil {
		t.Fatal(err)
	}
	objs.put(h.Key, storage.ObjectInfo{Size: 2 * mb, ContentType: "image/png"})

	if _, err := svc.Complete(ctx, ticket.StorageID); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	resolved, err := svc.ResolveReceipt(ctx, ticket.StorageID)
	if err != nil {
		t.Fatalf("ResolveReceipt: %v", err)
	}
	if !resolved.Confirmed || resolved.Key != h.Key {
		t.Errorf("resolved = %+v", resolved)
	}
}

func TestCompleteRejectsOversizedActualObject(t *testing.T) {
	svc, objs, _ := newTestService(t)
	ctx := context.Background()

	ticket, err := svc.Issue(ctx, Request{ContentType: "image/jpeg", Size: mb}, uuid.New())
	if err != nil {
		t.Fatal(err)
	}
	h, _ := svc.load(ctx, ticket.StorageID)
	objs.put(h.Key, storage.ObjectInfo{Size: 6 * mb, ContentType: "image/jpeg"})

	if _, err := svc.Complete(ctx, ticket.StorageID); !errors.Is(err, apperr.ErrInvalidReceipt) {
		t.Fatalf("err = %v, want ErrInvalidReceipt", err)
	}
	if _, err := svc.ResolveReceipt(ctx, ticket.StorageID); !errors.Is(err, apperr.ErrInvalidReceipt) {
		t.Fatal("oversized upload must not resolve")
	}
	if len(objs.deleted) != 1 || objs.deleted[0] != h.Key {
		t.Errorf("deleted = %v, want [%s]", objs.deleted, h.Key)
	}
	if _, err := objs.HeadObject(ctx, "receipts", h.Key); !errors.Is(err, storage.ErrObjectNotFound) {
		t.Errorf("rejected object still in bucket: %v", err)
	}
}

func TestResolveUnknownStorageID(t *testing.T) {
	svc, _, _ := newTestService(t)
	for _, id := range []string{uuid.NewString(), "../../etc/passwd", ""} {
		if _, err := svc.ResolveReceipt(context.Background(), id); !errors.Is(err, apperr.ErrInvalidReceipt) {
			t.Errorf("ResolveReceipt(%q) err = %v", id, err)
		}
	}
}

func TestHandleExpires(t *testing.T) {
	svc, _, mr := newTestService(t)
	ctx := context.Background()
	ticket, err := svc.Issue(ctx, Request{ContentType: "image/webp", Size: mb}, uuid.New())
	if err != nil {
		t.Fatal(err)
	}
	mr.FastForward(time.Hour)
	if _, err := svc.Complete(ctx, ticket.StorageID); !errors.Is(err, apperr.ErrInvalidReceipt) {
		t.Fatalf("expired handle: err = %v", err)
	}
}
