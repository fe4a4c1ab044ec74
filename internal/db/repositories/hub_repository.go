// Package repositories implements the data access layer (repository pattern)
// for the client hub portal. Each repository type encapsulates all database
// queries for a domain entity. Handlers and services never issue SQL directly —
// all database access goes through this layer, which makes query logic testable
// in isolation and keeps the multi-row revocation transactions in one place.
package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/clienthub/clienthub/internal/db/models"
)

// HubRepository handles hub database operations.
type HubRepository struct {
	db *sql.DB
}

// NewHubRepository creates a new HubRepository.
func NewHubRepository(db *sql.DB) *HubRepository {
	return &HubRepository{db: db}
}

const hubColumns = `id, tenant_id, name, access_method, password_hash, client_email,
		is_published, invite_backfill_done, created_at, updated_at`

func scanHub(row *sql.Row) (*models.Hub, error) {
	hub := &models.Hub{}
	err := row.Scan(
		&hub.ID,
		&hub.TenantID,
		&hub.Name,
		&hub.AccessMethod,
		&hub.PasswordHash,
		&hub.ClientEmail,
		&hub.IsPublished,
		&hub.InviteBackfillDone,
		&hub.CreatedAt,
		&hub.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return hub, nil
}

// GetHubByID retrieves a hub by ID regardless of publication state.
func (r *HubRepository) GetHubByID(ctx context.Context, hubID string) (*models.Hub, error) {
	query := `SELECT ` + hubColumns + ` FROM hubs WHERE id = $1`
	return scanHub(r.db.QueryRowContext(ctx, query, hubID))
}

// GetPublishedHub retrieves a hub by ID only if it is published. The public
// endpoints use this so unpublished hubs are indistinguishable from missing ones.
func (r *HubRepository) GetPublishedHub(ctx context.Context, hubID string) (*models.Hub, error) {
	query := `SELECT ` + hubColumns + ` FROM hubs WHERE id = $1 AND is_published = TRUE`
	return scanHub(r.db.QueryRowContext(ctx, query, hubID))
}

// UpdateAccessMethod performs the transactional access-policy transition.
//
// Switching to "open" clears the password hash. Switching away from "email"
// deletes every outstanding device token and verification code for the hub in
// the same transaction, so a partially-applied transition cannot leave stale
// grants behind. Switching to "email" deletes nothing.
//
// passwordHash must be non-nil when method is "password" and is ignored otherwise.
func (r *HubRepository) UpdateAccessMethod(ctx context.Context, hubID, method string, passwordHash *string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin access method update: %w", err)
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRowContext(ctx,
		`SELECT access_method FROM hubs WHERE id = $1 FOR UPDATE`, hubID,
	).Scan(&current)
	if err == sql.ErrNoRows {
		return sql.ErrNoRows
	}
	if err != nil {
		return fmt.Errorf("lock hub for access method update: %w", err)
	}

	var newHash *string
	if method == models.AccessMethodPassword {
		newHash = passwordHash
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE hubs SET access_method = $2, password_hash = $3, updated_at = $4 WHERE id = $1`,
		hubID, method, newHash, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("update access method: %w", err)
	}

	if current == models.AccessMethodEmail && method != models.AccessMethodEmail {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM device_tokens WHERE hub_id = $1`, hubID); err != nil {
			return fmt.Errorf("revoke device tokens on policy change: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM verification_codes WHERE hub_id = $1`, hubID); err != nil {
			return fmt.Errorf("revoke verification codes on policy change: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit access method update: %w", err)
	}
	return nil
}
