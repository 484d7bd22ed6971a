package util //nolint:revive // package name util hosts small shared helpers

import (
	"crypto/rand"
	"encoding/base64"
)

// RandomString returns a cryptographically secure URL-safe random string of exactly length chars.
func RandomString(length int) (string, error) {
	if length <= 0 {
		return "", nil
	}
	// 3 bytes encode to 4 chars; round up so the encoding is never short.
	b := make([]byte, (length*3+3)/4)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b)[:length], nil
}
