package models

import "time"

// Invite statuses.
const (
	InviteStatusPending  = "pending"
	InviteStatusAccepted = "accepted"
	InviteStatusRevoked  = "revoked"
)

// HubInvite is a pending or resolved teammate-access request for a hub.
// Pending invites for an email are deleted by the revocation flows.
type HubInvite struct {
	ID            string
	HubID         string
	Email         string
	Role          string
	Status        string
	InvitedBy     string
	InvitedByName string
	CreatedAt     time.Time
}
