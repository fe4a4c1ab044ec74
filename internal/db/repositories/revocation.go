// revocation.go holds the shared revocation step used by the contact, member,
// and invite repositories. Removing a person's access must atomically delete
// their device tokens, verification codes, and pending invites alongside the
// membership change itself — a contact that is gone while their device token
// still works is a security defect, not an acceptable edge case.
package repositories

import (
	"context"
	"database/sql"
	"fmt"
)

// revokeArtifactsTx deletes all device tokens, verification codes, and pending
// invites for (hubID, email) inside the caller's transaction. The caller is
// responsible for committing or rolling back.
func revokeArtifactsTx(ctx context.Context, tx *sql.Tx, hubID, email string) error {
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM device_tokens WHERE hub_id = $1 AND email = $2`, hubID, email); err != nil {
		return fmt.Errorf("revoke device tokens: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM verification_codes WHERE hub_id = $1 AND email = $2`, hubID, email); err != nil {
		return fmt.Errorf("revoke verification codes: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM hub_invites WHERE hub_id = $1 AND email = $2 AND status = 'pending'`, hubID, email); err != nil {
		return fmt.Errorf("revoke pending invites: %w", err)
	}
	return nil
}
