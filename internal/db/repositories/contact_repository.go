package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/clienthub/clienthub/internal/db/models"
)

// ErrDuplicateContact is returned when a contact with the same email already
// exists on the hub.
var ErrDuplicateContact = errors.New("contact already exists for this hub")

// ContactRepository handles portal contact database operations.
type ContactRepository struct {
	db *sql.DB
}

// NewContactRepository creates a new ContactRepository.
func NewContactRepository(db *sql.DB) *ContactRepository {
	return &ContactRepository{db: db}
}

// CreateContact inserts a new portal contact for a hub.
func (r *ContactRepository) CreateContact(ctx context.Context, contact *models.PortalContact) error {
	contact.ID = uuid.New().String()
	contact.CreatedAt = time.Now()

	query := `
		INSERT INTO portal_contacts (id, hub_id, email, name, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.db.ExecContext(ctx, query,
		contact.ID, contact.HubID, contact.Email, contact.Name, contact.CreatedAt)

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return ErrDuplicateContact
	}
	return err
}

// GetContact retrieves a contact by (hub, email). Email must already be
// normalized by the caller.
func (r *ContactRepository) GetContact(ctx context.Context, hubID, email string) (*models.PortalContact, error) {
	query := `
		SELECT id, hub_id, email, name, created_at
		FROM portal_contacts
		WHERE hub_id = $1 AND email = $2
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, hubID, email))
}

// GetContactByID retrieves a contact by its primary key.
func (r *ContactRepository) GetContactByID(ctx context.Context, contactID string) (*models.PortalContact, error) {
	query := `
		SELECT id, hub_id, email, name, created_at
		FROM portal_contacts
		WHERE id = $1
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, contactID))
}

// ListContacts returns all contacts for a hub ordered by creation time.
func (r *ContactRepository) ListContacts(ctx context.Context, hubID string) ([]models.PortalContact, error) {
	query := `
		SELECT id, hub_id, email, name, created_at
		FROM portal_contacts
		WHERE hub_id = $1
		ORDER BY created_at
	`
	rows, err := r.db.QueryContext(ctx, query, hubID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contacts []models.PortalContact
	for rows.Next() {
		var c models.PortalContact
		if err := rows.Scan(&c.ID, &c.HubID, &c.Email, &c.Name, &c.CreatedAt); err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

// DeleteContactWithRevocation removes a contact and, in the same transaction,
// deletes their device tokens, verification codes, and pending invites. If any
// step fails the whole removal rolls back.
func (r *ContactRepository) DeleteContactWithRevocation(ctx context.Context, contact *models.PortalContact) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin contact removal: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM portal_contacts WHERE id = $1`, contact.ID); err != nil {
		return fmt.Errorf("delete contact: %w", err)
	}
	if err := revokeArtifactsTx(ctx, tx, contact.HubID, contact.Email); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit contact removal: %w", err)
	}
	return nil
}

func (r *ContactRepository) scanOne(row *sql.Row) (*models.PortalContact, error) {
	c := &models.PortalContact{}
	err := row.Scan(&c.ID, &c.HubID, &c.Email, &c.Name, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}
