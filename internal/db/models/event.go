package models

import "time"

// SyntheticActorPrefix marks actor ids generated by the portal itself
// (e.g. "portal-login"). Synthetic actors are excluded from the staff
// audience because they do not correspond to a human reader.
const SyntheticActorPrefix = "portal-"

// Event is an audit record of an action taken in a hub, including portal
// logins recorded on successful verification.
type Event struct {
	ID         string    `db:"id" json:"id"`
	HubID      string    `db:"hub_id" json:"hubId"`
	ActorID    string    `db:"actor_id" json:"actorId"`
	ActorEmail string    `db:"actor_email" json:"actorEmail"`
	ActorName  string    `db:"actor_name" json:"actorName"`
	Action     string    `db:"action" json:"action"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
}
