package models

import "time"

// Message is one entry in a hub's message feed.
type Message struct {
	ID          string    `db:"id" json:"id"`
	HubID       string    `db:"hub_id" json:"hubId"`
	SenderEmail string    `db:"sender_email" json:"senderEmail"`
	SenderName  string    `db:"sender_name" json:"senderName"`
	Body        string    `db:"body" json:"body"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
}
