package models

// Identity is a bare (email, name) pair surfaced by audience queries over
// historical messages and events.
type Identity struct {
	Email string `db:"email" json:"email"`
	Name  string `db:"name" json:"name"`
}
