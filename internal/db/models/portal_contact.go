// portal_contact.go defines the authorization record granting an email address
// access to a hub. Contacts are the authority check consulted on every
// verification success path.
package models

import "time"

// PortalContact grants a client email address access to a hub.
// Emails are stored case-normalized (trimmed, lowercased).
type PortalContact struct {
	ID        string
	HubID     string
	Email     string
	Name      string
	CreatedAt time.Time
}
