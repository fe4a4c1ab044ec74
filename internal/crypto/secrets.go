// Package crypto provides the hashing and random-secret primitives for the
// portal verification flow. Verification codes and device secrets are only
// ever stored as one-way SHA-256 digests, and digest comparison is constant
// time so an attacker cannot learn a stored hash byte-by-byte from response
// latency.
package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"math/big"
)

// HashSecret returns the lowercase hex SHA-256 digest of secret.
// Used for verification codes and device secrets; the raw secret must never
// be persisted or logged.
func HashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// ConstantTimeEquals compares two digests in time independent of where they
// first differ. The length check runs first and leaks only the lengths, which
// are public for fixed-size digests.
func ConstantTimeEquals(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// RandomCode returns a 6-digit numeric code drawn uniformly from
// [100000, 999999] using the crypto/rand source.
func RandomCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("failed to generate verification code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

// RandomDeviceSecret returns a 256-bit secure-random value, hex-encoded
// (64 characters).
func RandomDeviceSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate device secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
