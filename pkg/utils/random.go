package utils

import (
	"crypto/rand"
	"encoding/base32"
)

var scanEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// RandomCode returns an unguessable uppercase code from n random bytes (16 bytes -> 26 chars).
// The alphabet avoids lowercase so codes survive manual entry at a venue desk.
func RandomCode(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return scanEncoding.EncodeToString(b), nil
}
