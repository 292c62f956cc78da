// File: internal/platform/crypto/generator.go
package crypto

import (
	"crypto/rand"
	"encoding/base64"
)

// GenerateSecureRandomString creates a cryptographically secure random string.
// n is the number of bytes of randomness; the URL-safe encoding is longer than n.
func GenerateSecureRandomString(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
