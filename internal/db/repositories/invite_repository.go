package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clienthub/clienthub/internal/db/models"
)

// InviteRepository handles hub invite database operations.
type InviteRepository struct {
	db *sql.DB
}

// NewInviteRepository creates a new InviteRepository.
func NewInviteRepository(db *sql.DB) *InviteRepository {
	return &InviteRepository{db: db}
}

// CreateInvite records a pending teammate-access request.
func (r *InviteRepository) CreateInvite(ctx context.Context, invite *models.HubInvite) error {
	invite.ID = uuid.New().String()
	invite.Status = models.InviteStatusPending
	invite.CreatedAt = time.Now()

	query := `
		INSERT INTO hub_invites (id, hub_id, email, role, status, invited_by, invited_by_name, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.ExecContext(ctx, query,
		invite.ID, invite.HubID, invite.Email, invite.Role, invite.Status,
		invite.InvitedBy, invite.InvitedByName, invite.CreatedAt)
	return err
}

// GetInviteByID retrieves an invite by its primary key.
func (r *InviteRepository) GetInviteByID(ctx context.Context, inviteID string) (*models.HubInvite, error) {
	query := `
		SELECT id, hub_id, email, role, status, invited_by, invited_by_name, created_at
		FROM hub_invites
		WHERE id = $1
	`
	i := &models.HubInvite{}
	err := r.db.QueryRowContext(ctx, query, inviteID).Scan(
		&i.ID, &i.HubID, &i.Email, &i.Role, &i.Status, &i.InvitedBy, &i.InvitedByName, &i.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return i, nil
}

// ListInvites returns all invites for a hub ordered by creation time.
func (r *InviteRepository) ListInvites(ctx context.Context, hubID string) ([]models.HubInvite, error) {
	query := `
		SELECT id, hub_id, email, role, status, invited_by, invited_by_name, created_at
		FROM hub_invites
		WHERE hub_id = $1
		ORDER BY created_at
	`
	rows, err := r.db.QueryContext(ctx, query, hubID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invites []models.HubInvite
	for rows.Next() {
		var i models.HubInvite
		if err := rows.Scan(&i.ID, &i.HubID, &i.Email, &i.Role, &i.Status, &i.InvitedBy, &i.InvitedByName, &i.CreatedAt); err != nil {
			return nil, err
		}
		invites = append(invites, i)
	}
	return invites, rows.Err()
}

// RevokeInviteWithRevocation marks an invite revoked and, in the same
// transaction, deletes the invitee's verification artifacts and any other
// pending invites for the same email.
func (r *InviteRepository) RevokeInviteWithRevocation(ctx context.Context, invite *models.HubInvite) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin invite revocation: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE hub_invites SET status = 'revoked' WHERE id = $1`, invite.ID); err != nil {
		return fmt.Errorf("revoke invite: %w", err)
	}
	if err := revokeArtifactsTx(ctx, tx, invite.HubID, invite.Email); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit invite revocation: %w", err)
	}
	return nil
}
