package storage

import (
	"testing"
	"time"
)

func TestValidateReceiptFile(t *testing.T) {
	const mb = 1024 * 1024
	tests := []struct {
		name string
		ct   string
		size int64
		want bool
	}{
		{"png 2MB", "image/png", 2 * mb, true},
		{"pdf at limit", "application/pdf", 5 * mb, true},
		{"jpeg with params", "image/JPEG; charset=binary", mb, true},
		{"6MB png", "image/png", 6 * mb, false},
		{"text/plain", "text/plain", 1024, false},
		{"gif not allowed", "image/gif", 1024, false},
		{"empty file", "image/png", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidateReceiptFile(tt.ct, tt.size, 5*mb); got != tt.want {
				t.Errorf("ValidateReceiptFile(%q, %d) = %v, want %v", tt.ct, tt.size, got, tt.want)
			}
		})
	}
}

func TestValidatePhotoFileRejectsPDF(t *testing.T) {
	if ValidatePhotoFile("application/pdf", 1024) {
		t.Error("pdf must not be accepted as a photo")
	}
	if !ValidatePhotoFile("image/jpg", 1024) {
		t.Error("image/jpg should normalise to image/jpeg")
	}
}

func TestReceiptKey(t *testing.T) {
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	got := ReceiptKey("abc", "image/png", now)
	if got != "receipts/2025/abc.png" {
		t.Errorf("ReceiptKey = %q", got)
	}
	if got := PhotoKey("s1", "image/webp"); got != "photos/s1.webp" {
		t.Errorf("PhotoKey = %q", got)
	}
}
