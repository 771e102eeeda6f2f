package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// ResetTokenTTL is how long a password reset link stays valid.
const ResetTokenTTL = 10 * time.Minute

// NewResetToken returns a 64-char hex token for the user and the digest to store.
func NewResetToken() (token, digest string, err error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("failed to generate reset token: %w", err)
	}
	token = hex.EncodeToString(buf)
	return token, DigestResetToken(token), nil
}

// DigestResetToken is the SHA-256 hex of token. Only digests are persisted.
func DigestResetToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
