// Package models defines the database model types for the client hub portal.
// Each type corresponds to a database table. Models are pure data types —
// business logic belongs in the portal service layer, query logic in the
// repositories layer.
package models

import "time"

// Access methods gate how an external client proves the right to view a hub.
const (
	// AccessMethodEmail requires a one-time emailed code bound to a portal contact.
	AccessMethodEmail = "email"
	// AccessMethodPassword requires the hub's shared password.
	AccessMethodPassword = "password"
	// AccessMethodOpen requires no proof beyond the hub link.
	AccessMethodOpen = "open"
)

// ValidAccessMethod reports whether m is one of the three supported gating strategies.
func ValidAccessMethod(m string) bool {
	return m == AccessMethodEmail || m == AccessMethodPassword || m == AccessMethodOpen
}

// Hub is a tenant-scoped client collaboration space with exactly one access policy.
type Hub struct {
	ID                 string
	TenantID           string
	Name               string
	AccessMethod       string
	PasswordHash       *string // Bcrypt hash; set only when AccessMethod is "password"
	ClientEmail        *string // Legacy single contact email kept for older hubs
	IsPublished        bool
	InviteBackfillDone bool // Set once the invite→staff-member reconciliation has run
	CreatedAt          time.Time
	UpdatedAt          time.Time
}
