package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/clienthub/clienthub/internal/db/models"
)

// MessageRepository handles message feed database operations. It uses sqlx
// because the audience queries map cleanly onto struct scanning.
type MessageRepository struct {
	db *sqlx.DB
}

// NewMessageRepository creates a new MessageRepository.
func NewMessageRepository(db *sqlx.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// CreateMessage appends a message to a hub's feed.
func (r *MessageRepository) CreateMessage(ctx context.Context, msg *models.Message) error {
	msg.ID = uuid.New().String()
	msg.CreatedAt = time.Now()

	query := `
		INSERT INTO messages (id, hub_id, sender_email, sender_name, body, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.ExecContext(ctx, query,
		msg.ID, msg.HubID, msg.SenderEmail, msg.SenderName, msg.Body, msg.CreatedAt)
	return err
}

// ListMessages returns up to limit most recent messages for a hub, oldest first.
func (r *MessageRepository) ListMessages(ctx context.Context, hubID string, limit int) ([]models.Message, error) {
	if limit < 1 || limit > 200 {
		limit = 50
	}
	query := `
		SELECT id, hub_id, sender_email, sender_name, body, created_at
		FROM (
			SELECT id, hub_id, sender_email, sender_name, body, created_at
			FROM messages
			WHERE hub_id = $1
			ORDER BY created_at DESC
			LIMIT $2
		) recent
		ORDER BY created_at
	`
	var messages []models.Message
	if err := r.db.SelectContext(ctx, &messages, query, hubID, limit); err != nil {
		return nil, err
	}
	return messages, nil
}

// ListSenderIdentities returns the distinct historical message senders for a
// hub, with the most recent non-empty display name per email.
func (r *MessageRepository) ListSenderIdentities(ctx context.Context, hubID string) ([]models.Identity, error) {
	query := `
		SELECT DISTINCT ON (sender_email) sender_email AS email, sender_name AS name
		FROM messages
		WHERE hub_id = $1 AND sender_email <> ''
		ORDER BY sender_email, created_at DESC
	`
	var identities []models.Identity
	if err := r.db.SelectContext(ctx, &identities, query, hubID); err != nil {
		return nil, err
	}
	return identities, nil
}
