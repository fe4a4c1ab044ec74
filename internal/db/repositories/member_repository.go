package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clienthub/clienthub/internal/db/models"
)

// MemberRepository handles hub member database operations.
type MemberRepository struct {
	db *sql.DB
}

// NewMemberRepository creates a new MemberRepository.
func NewMemberRepository(db *sql.DB) *MemberRepository {
	return &MemberRepository{db: db}
}

// UpsertClientMember records an active client member after a successful portal
// verification. Re-verifying the same email refreshes the record instead of
// duplicating it, and revives a previously removed one.
func (r *MemberRepository) UpsertClientMember(ctx context.Context, hubID, email, name string) error {
	query := `
		INSERT INTO hub_members (id, hub_id, email, name, role, status, created_at)
		VALUES ($1, $2, $3, $4, 'client', 'active', $5)
		ON CONFLICT (hub_id, email, role) DO UPDATE
		SET status = 'active',
		    name = CASE WHEN EXCLUDED.name <> '' THEN EXCLUDED.name ELSE hub_members.name END
	`
	_, err := r.db.ExecContext(ctx, query,
		uuid.New().String(), hubID, email, name, time.Now())
	return err
}

// GetMemberByID retrieves a member by its primary key.
func (r *MemberRepository) GetMemberByID(ctx context.Context, memberID string) (*models.HubMember, error) {
	query := `
		SELECT id, hub_id, user_id, email, name, role, status, created_at
		FROM hub_members
		WHERE id = $1
	`
	m := &models.HubMember{}
	err := r.db.QueryRowContext(ctx, query, memberID).Scan(
		&m.ID, &m.HubID, &m.UserID, &m.Email, &m.Name, &m.Role, &m.Status, &m.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// ListActiveStaff returns the hub's active staff members.
func (r *MemberRepository) ListActiveStaff(ctx context.Context, hubID string) ([]models.HubMember, error) {
	query := `
		SELECT id, hub_id, user_id, email, name, role, status, created_at
		FROM hub_members
		WHERE hub_id = $1 AND role = 'staff' AND status = 'active'
		ORDER BY created_at
	`
	rows, err := r.db.QueryContext(ctx, query, hubID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []models.HubMember
	for rows.Next() {
		var m models.HubMember
		if err := rows.Scan(&m.ID, &m.HubID, &m.UserID, &m.Email, &m.Name, &m.Role, &m.Status, &m.CreatedAt); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// GetMemberNameByEmail returns the display name of any member with the given
// email on the hub, or "" when none is known. Used for best-effort audience
// annotation.
func (r *MemberRepository) GetMemberNameByEmail(ctx context.Context, hubID, email string) (string, error) {
	var name string
	err := r.db.QueryRowContext(ctx,
		`SELECT name FROM hub_members WHERE hub_id = $1 AND email = $2 AND name <> '' LIMIT 1`,
		hubID, email,
	).Scan(&name)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return name, nil
}

// RemoveMemberWithRevocation marks a member removed and, in the same
// transaction, revokes their verification artifacts and pending invites.
func (r *MemberRepository) RemoveMemberWithRevocation(ctx context.Context, member *models.HubMember) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin member removal: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE hub_members SET status = 'removed' WHERE id = $1`, member.ID); err != nil {
		return fmt.Errorf("remove member: %w", err)
	}
	if err := revokeArtifactsTx(ctx, tx, member.HubID, member.Email); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit member removal: %w", err)
	}
	return nil
}

// BackfillStaffFromInvites reconciles legacy invite actors — staff who sent
// invites before the member table existed — into hub_members, and marks the
// hub as backfilled, all in one transaction. Older hubs converge the first
// time their audience is requested, without a migration step.
func (r *MemberRepository) BackfillStaffFromInvites(ctx context.Context, hubID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin invite backfill: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO hub_members (id, hub_id, email, name, role, status, created_at)
		SELECT DISTINCT ON (i.invited_by)
		       gen_random_uuid(), i.hub_id, i.invited_by, i.invited_by_name, 'staff', 'active', i.created_at
		FROM hub_invites i
		WHERE i.hub_id = $1
		  AND i.invited_by <> ''
		  AND NOT EXISTS (
			SELECT 1 FROM hub_members m
			WHERE m.hub_id = i.hub_id AND m.email = i.invited_by AND m.role = 'staff'
		  )
		ORDER BY i.invited_by, i.created_at
	`
	if _, err := tx.ExecContext(ctx, query, hubID); err != nil {
		return fmt.Errorf("backfill staff from invites: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE hubs SET invite_backfill_done = TRUE WHERE id = $1`, hubID); err != nil {
		return fmt.Errorf("mark invite backfill done: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit invite backfill: %w", err)
	}
	return nil
}
