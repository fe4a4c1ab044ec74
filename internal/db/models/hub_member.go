package models

import "time"

// Member roles and statuses.
const (
	MemberRoleStaff  = "staff"
	MemberRoleClient = "client"

	MemberStatusActive  = "active"
	MemberStatusRemoved = "removed"
)

// HubMember is a reader of a hub: either an agency staff member or a
// lightweight client record upserted on successful portal verification.
type HubMember struct {
	ID        string
	HubID     string
	UserID    *string // Set for staff members backed by an account
	Email     string
	Name      string
	Role      string
	Status    string
	CreatedAt time.Time
}
