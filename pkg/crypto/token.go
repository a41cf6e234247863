package crypto

import (
	"crypto/rand"
	"encoding/base64"
)

// TokenBytes is the entropy of a session token (256 bits)
const TokenBytes = 32

// GenerateSessionToken generates an opaque URL-safe session token from a
// cryptographically secure random source
func GenerateSessionToken() (string, error) {
	raw := make([]byte, TokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}
