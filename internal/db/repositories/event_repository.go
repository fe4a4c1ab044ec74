package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/clienthub/clienthub/internal/db/models"
)

// EventRepository handles hub event database operations.
type EventRepository struct {
	db *sqlx.DB
}

// NewEventRepository creates a new EventRepository.
func NewEventRepository(db *sqlx.DB) *EventRepository {
	return &EventRepository{db: db}
}

// RecordEvent appends an event to a hub's history.
func (r *EventRepository) RecordEvent(ctx context.Context, event *models.Event) error {
	event.ID = uuid.New().String()
	event.CreatedAt = time.Now()

	query := `
		INSERT INTO events (id, hub_id, actor_id, actor_email, actor_name, action, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.ExecContext(ctx, query,
		event.ID, event.HubID, event.ActorID, event.ActorEmail, event.ActorName,
		event.Action, event.CreatedAt)
	return err
}

// ListActorIdentities returns the distinct historical event actors for a hub,
// excluding synthetic portal actors, with the most recent non-empty display
// name per email.
func (r *EventRepository) ListActorIdentities(ctx context.Context, hubID string) ([]models.Identity, error) {
	query := `
		SELECT DISTINCT ON (actor_email) actor_email AS email, actor_name AS name
		FROM events
		WHERE hub_id = $1
		  AND actor_email <> ''
		  AND actor_id NOT LIKE 'portal-%'
		ORDER BY actor_email, created_at DESC
	`
	var identities []models.Identity
	if err := r.db.SelectContext(ctx, &identities, query, hubID); err != nil {
		return nil, err
	}
	return identities, nil
}
