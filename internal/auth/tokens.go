package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

const refreshTokenBytes = 48

// NewRefreshToken returns a random URL-safe refresh token and its hash.
func NewRefreshToken() (raw, hash string, err error) {
	b := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", "", fmt.Errorf("generating random bytes: %w", err)
	}
	raw = base64.RawURLEncoding.EncodeToString(b)
	return raw, HashToken(raw), nil
}

// HashToken returns the lowercase hex SHA-256 digest of a refresh token.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// TokenMatches compares a raw token against a stored hash in constant time.
func TokenMatches(raw, hash string) bool {
	return subtle.ConstantTimeCompare([]byte(HashToken(raw)), []byte(hash)) == 1
}
