// verification.go defines the two short-lived artifact kinds written by the
// portal verification flow: emailed challenge codes and remembered-device
// secrets. Only one-way hashes are persisted — the raw secrets never touch
// the database.
package models

import "time"

// VerificationCode is one outstanding or spent email-code challenge.
// At most one active (unused, unexpired) row exists per (hub, email); a new
// request-code call replaces the prior row via upsert.
type VerificationCode struct {
	ID        string
	HubID     string
	Email     string
	CodeHash  string // SHA-256 hex of the 6-digit code
	Attempts  int
	Used      bool
	ExpiresAt time.Time
	CreatedAt time.Time
}

// DeviceToken is a "remember this device" grant issued after a successful
// code verification. Devices are multi-use until expiry or revocation.
type DeviceToken struct {
	ID        string
	HubID     string
	Email     string
	TokenHash string // SHA-256 hex of the 256-bit device secret
	ExpiresAt time.Time
	CreatedAt time.Time
}
