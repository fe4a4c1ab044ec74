// verification_repository.go persists the two short-lived portal artifacts:
// emailed challenge codes (one active row per hub+email, replaced by upsert)
// and remembered-device tokens. Expiry is enforced at read time by the
// verification service; the sweeper's bulk deletes here are an optimization,
// not a correctness dependency.
package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/clienthub/clienthub/internal/db/models"
)

// VerificationRepository handles verification code and device token storage.
type VerificationRepository struct {
	db *sql.DB
}

// NewVerificationRepository creates a new VerificationRepository.
func NewVerificationRepository(db *sql.DB) *VerificationRepository {
	return &VerificationRepository{db: db}
}

// UpsertCode stores a fresh challenge code for (hub, email), replacing any
// prior row. Attempts and the used flag reset so the new code starts clean —
// two successive request-code calls leave exactly one active artifact.
func (r *VerificationRepository) UpsertCode(ctx context.Context, code *models.VerificationCode) error {
	code.ID = uuid.New().String()
	code.CreatedAt = time.Now()

	query := `
		INSERT INTO verification_codes (id, hub_id, email, code_hash, attempts, used, expires_at, created_at)
		VALUES ($1, $2, $3, $4, 0, FALSE, $5, $6)
		ON CONFLICT (hub_id, email) DO UPDATE
		SET code_hash = EXCLUDED.code_hash,
		    attempts = 0,
		    used = FALSE,
		    expires_at = EXCLUDED.expires_at,
		    created_at = EXCLUDED.created_at
	`
	_, err := r.db.ExecContext(ctx, query,
		code.ID, code.HubID, code.Email, code.CodeHash, code.ExpiresAt, code.CreatedAt)
	return err
}

// GetCode retrieves the single code row for (hub, email), spent or not.
// The caller decides whether it is still usable (used, expired, locked out).
func (r *VerificationRepository) GetCode(ctx context.Context, hubID, email string) (*models.VerificationCode, error) {
	query := `
		SELECT id, hub_id, email, code_hash, attempts, used, expires_at, created_at
		FROM verification_codes
		WHERE hub_id = $1 AND email = $2
	`
	code := &models.VerificationCode{}
	err := r.db.QueryRowContext(ctx, query, hubID, email).Scan(
		&code.ID,
		&code.HubID,
		&code.Email,
		&code.CodeHash,
		&code.Attempts,
		&code.Used,
		&code.ExpiresAt,
		&code.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return code, nil
}

// IncrementAttempts adds one failed attempt to a code row and returns the new count.
func (r *VerificationRepository) IncrementAttempts(ctx context.Context, codeID string) (int, error) {
	var attempts int
	err := r.db.QueryRowContext(ctx,
		`UPDATE verification_codes SET attempts = attempts + 1 WHERE id = $1 RETURNING attempts`,
		codeID,
	).Scan(&attempts)
	return attempts, err
}

// MarkUsed marks a code as spent after a successful verification.
func (r *VerificationRepository) MarkUsed(ctx context.Context, codeID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE verification_codes SET used = TRUE WHERE id = $1`, codeID)
	return err
}

// CreateDeviceToken stores a new remembered-device grant.
func (r *VerificationRepository) CreateDeviceToken(ctx context.Context, token *models.DeviceToken) error {
	token.ID = uuid.New().String()
	token.CreatedAt = time.Now()

	query := `
		INSERT INTO device_tokens (id, hub_id, email, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.ExecContext(ctx, query,
		token.ID, token.HubID, token.Email, token.TokenHash, token.ExpiresAt, token.CreatedAt)
	return err
}

// GetDeviceToken looks up an unexpired device token by its hash. The caller
// supplies now so expiry decisions share one clock with the rest of the flow.
func (r *VerificationRepository) GetDeviceToken(ctx context.Context, hubID, email, tokenHash string, now time.Time) (*models.DeviceToken, error) {
	query := `
		SELECT id, hub_id, email, token_hash, expires_at, created_at
		FROM device_tokens
		WHERE hub_id = $1 AND email = $2 AND token_hash = $3 AND expires_at > $4
	`
	token := &models.DeviceToken{}
	err := r.db.QueryRowContext(ctx, query, hubID, email, tokenHash, now).Scan(
		&token.ID,
		&token.HubID,
		&token.Email,
		&token.TokenHash,
		&token.ExpiresAt,
		&token.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return token, nil
}

// DeleteExpired removes all verification codes and device tokens past their
// expiry. Called by the cleanup sweeper.
func (r *VerificationRepository) DeleteExpired(ctx context.Context, now time.Time) (codes, devices int64, err error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM verification_codes WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, 0, err
	}
	codes, _ = res.RowsAffected()

	res, err = r.db.ExecContext(ctx,
		`DELETE FROM device_tokens WHERE expires_at <= $1`, now)
	if err != nil {
		return codes, 0, err
	}
	devices, _ = res.RowsAffected()

	return codes, devices, nil
}
