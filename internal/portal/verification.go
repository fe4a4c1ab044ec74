// Package portal implements the access-verification core of the hub portal:
// the verification state machine that lets an account-less client prove the
// right to view a hub, the audience resolver that describes who can read a
// hub's feed, and the lazily-triggered cleanup sweeper.
//
// The verification endpoints collapse every failure cause — wrong code,
// expired, spent, locked out, policy mismatch, revoked contact — into a single
// valid:false. That uniformity is a security control against state probing,
// not an omission; only internal log lines and metrics distinguish causes.
package portal

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/clienthub/clienthub/internal/auth"
	"github.com/clienthub/clienthub/internal/config"
	"github.com/clienthub/clienthub/internal/crypto"
	"github.com/clienthub/clienthub/internal/db/models"
	"github.com/clienthub/clienthub/internal/db/repositories"
	"github.com/clienthub/clienthub/internal/mail"
	"github.com/clienthub/clienthub/internal/safego"
	"github.com/clienthub/clienthub/internal/telemetry"
)

// Internal verification outcome causes. Never surfaced to callers.
const (
	causeSuccess        = "success"
	causeMismatch       = "mismatch"
	causeExpired        = "expired"
	causeLockedOut      = "locked_out"
	causeUsed           = "used"
	causeNoArtifact     = "no_artifact"
	causeMalformed      = "malformed"
	causePolicyMismatch = "policy_mismatch"
	causeContactRevoked = "contact_revoked"
)

var (
	emailPattern  = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	codePattern   = regexp.MustCompile(`^[0-9]{6}$`)
	devicePattern = regexp.MustCompile(`^[0-9a-f]{64}$`)
)

// NormalizeEmail trims surrounding whitespace and lowercases an address.
// Every email stored or compared by the portal goes through this first.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidEmail reports whether email (already normalized) looks like an address.
func ValidEmail(email string) bool {
	return email != "" && len(email) <= 254 && emailPattern.MatchString(email)
}

// VerifyResult is the outcome of a verification operation. Token and
// DeviceToken are set only when Valid is true; DeviceToken carries the raw
// device secret exactly once, for the caller to store locally.
type VerifyResult struct {
	Valid       bool
	Token       string
	DeviceToken string
}

var invalidResult = &VerifyResult{Valid: false}

// Service is the portal verification state machine. All operations are safe
// for concurrent use; state lives in the database.
type Service struct {
	hubs      *repositories.HubRepository
	contacts  *repositories.ContactRepository
	artifacts *repositories.VerificationRepository
	members   *repositories.MemberRepository
	events    *repositories.EventRepository
	mailer    mail.Mailer
	cooldown  Cooldown
	sweeper   *Sweeper

	codeTTL     time.Duration
	deviceTTL   time.Duration
	maxAttempts int

	now func() time.Time
}

// NewService creates the verification state machine.
func NewService(
	cfg *config.Config,
	hubs *repositories.HubRepository,
	contacts *repositories.ContactRepository,
	artifacts *repositories.VerificationRepository,
	members *repositories.MemberRepository,
	events *repositories.EventRepository,
	mailer mail.Mailer,
	cooldown Cooldown,
	sweeper *Sweeper,
) *Service {
	return &Service{
		hubs:        hubs,
		contacts:    contacts,
		artifacts:   artifacts,
		members:     members,
		events:      events,
		mailer:      mailer,
		cooldown:    cooldown,
		sweeper:     sweeper,
		codeTTL:     cfg.Portal.CodeTTL,
		deviceTTL:   cfg.Portal.DeviceTTL,
		maxAttempts: cfg.Portal.MaxCodeAttempts,
		now:         time.Now,
	}
}

// RequestCode handles a code-issuance request. It returns ErrSendCooldown when
// the per-(hub,email) cooldown rejects the request, and otherwise nil — the
// caller always responds {sent:true} whether or not a code was actually
// issued, so an unknown email, an unpublished hub, and a password-gated hub
// are indistinguishable from success.
func (s *Service) RequestCode(ctx context.Context, hubID, rawEmail string) error {
	email := NormalizeEmail(rawEmail)

	// The cooldown applies before any eligibility decision so its rejections
	// carry no information about whether the email is known.
	if !s.cooldown.Allow(ctx, "code-send:"+hubID+":"+email) {
		return ErrSendCooldown
	}

	// Look up hub and contact unconditionally so response latency does not
	// depend on what exists.
	hub, err := s.hubs.GetPublishedHub(ctx, hubID)
	if err != nil {
		return err
	}
	contact, err := s.contacts.GetContact(ctx, hubID, email)
	if err != nil {
		return err
	}

	// Generate the code and hash on every path, again for timing uniformity.
	code, err := crypto.RandomCode()
	if err != nil {
		return err
	}
	artifact := &models.VerificationCode{
		HubID:     hubID,
		Email:     email,
		CodeHash:  crypto.HashSecret(code),
		ExpiresAt: s.now().Add(s.codeTTL),
	}

	eligible := hub != nil && contact != nil && hub.AccessMethod == models.AccessMethodEmail
	if eligible {
		if err := s.artifacts.UpsertCode(ctx, artifact); err != nil {
			return err
		}
		telemetry.VerificationCodesIssuedTotal.Inc()

		hubName := hub.Name
		displayName := contact.Name
		safego.Go(func() {
			if err := s.mailer.SendVerificationCode(email, code, hubName); err != nil {
				slog.Error("failed to dispatch verification code email",
					"hub_id", hubID, "error", err)
			}
		})
		slog.Info("verification code issued", "hub_id", hubID, "recipient", displayName)
	} else {
		slog.Debug("code request ignored", "hub_id", hubID,
			"hub_known", hub != nil, "contact_known", contact != nil)
	}

	s.sweeper.MaybeSweep()
	return nil
}

// VerifyCode validates a submitted challenge code. All failures return
// Valid:false with no further detail.
func (s *Service) VerifyCode(ctx context.Context, hubID, rawEmail, code string) (*VerifyResult, error) {
	email := NormalizeEmail(rawEmail)
	if !ValidEmail(email) || !codePattern.MatchString(code) {
		s.reject("code", causeMalformed, hubID)
		return invalidResult, nil
	}

	hub, err := s.hubs.GetPublishedHub(ctx, hubID)
	if err != nil {
		return nil, err
	}
	// Fail closed the instant a hub leaves email gating: outstanding codes
	// become worthless without their rows being touched.
	if hub == nil || hub.AccessMethod != models.AccessMethodEmail {
		s.reject("code", causePolicyMismatch, hubID)
		return invalidResult, nil
	}

	artifact, err := s.artifacts.GetCode(ctx, hubID, email)
	if err != nil {
		return nil, err
	}
	switch {
	case artifact == nil:
		s.reject("code", causeNoArtifact, hubID)
		return invalidResult, nil
	case artifact.Used:
		s.reject("code", causeUsed, hubID)
		return invalidResult, nil
	case !s.now().Before(artifact.ExpiresAt):
		s.reject("code", causeExpired, hubID)
		return invalidResult, nil
	case artifact.Attempts >= s.maxAttempts:
		s.reject("code", causeLockedOut, hubID)
		return invalidResult, nil
	}

	if !crypto.ConstantTimeEquals(crypto.HashSecret(code), artifact.CodeHash) {
		attempts, err := s.artifacts.IncrementAttempts(ctx, artifact.ID)
		if err != nil {
			return nil, err
		}
		slog.Info("verification code mismatch", "hub_id", hubID, "attempts", attempts)
		telemetry.VerificationOutcomesTotal.WithLabelValues("code", causeMismatch).Inc()
		return invalidResult, nil
	}

	// The contact may have been revoked between code request and code verify.
	// Deny without marking the artifact used: the artifact itself is intact,
	// access simply no longer exists.
	contact, err := s.contacts.GetContact(ctx, hubID, email)
	if err != nil {
		return nil, err
	}
	if contact == nil {
		s.reject("code", causeContactRevoked, hubID)
		return invalidResult, nil
	}

	if err := s.artifacts.MarkUsed(ctx, artifact.ID); err != nil {
		return nil, err
	}

	name := contact.Name
	if name == "" {
		name = email
	}
	token, err := auth.GeneratePortalToken(hubID, email, name)
	if err != nil {
		return nil, err
	}

	deviceSecret, err := crypto.RandomDeviceSecret()
	if err != nil {
		return nil, err
	}
	device := &models.DeviceToken{
		HubID:     hubID,
		Email:     email,
		TokenHash: crypto.HashSecret(deviceSecret),
		ExpiresAt: s.now().Add(s.deviceTTL),
	}
	if err := s.artifacts.CreateDeviceToken(ctx, device); err != nil {
		return nil, err
	}

	s.recordLogin(ctx, hubID, email, name, "portal_code_login")
	telemetry.VerificationOutcomesTotal.WithLabelValues("code", causeSuccess).Inc()
	s.sweeper.MaybeSweep()

	return &VerifyResult{Valid: true, Token: token, DeviceToken: deviceSecret}, nil
}

// VerifyDevice validates a remembered-device secret and issues a fresh
// session assertion. Devices are multi-use: the row stays valid until expiry
// or revocation, and no attempt counter applies because the secret is
// high-entropy and not human-enterable.
func (s *Service) VerifyDevice(ctx context.Context, hubID, rawEmail, deviceToken string) (*VerifyResult, error) {
	email := NormalizeEmail(rawEmail)
	if !ValidEmail(email) || !devicePattern.MatchString(deviceToken) {
		s.reject("device", causeMalformed, hubID)
		return invalidResult, nil
	}

	hub, err := s.hubs.GetPublishedHub(ctx, hubID)
	if err != nil {
		return nil, err
	}
	if hub == nil || hub.AccessMethod != models.AccessMethodEmail {
		s.reject("device", causePolicyMismatch, hubID)
		return invalidResult, nil
	}

	device, err := s.artifacts.GetDeviceToken(ctx, hubID, email, crypto.HashSecret(deviceToken), s.now())
	if err != nil {
		return nil, err
	}
	if device == nil {
		s.reject("device", causeNoArtifact, hubID)
		return invalidResult, nil
	}

	contact, err := s.contacts.GetContact(ctx, hubID, email)
	if err != nil {
		return nil, err
	}
	if contact == nil {
		s.reject("device", causeContactRevoked, hubID)
		return invalidResult, nil
	}

	name := contact.Name
	if name == "" {
		name = email
	}
	token, err := auth.GeneratePortalToken(hubID, email, name)
	if err != nil {
		return nil, err
	}

	s.recordLogin(ctx, hubID, email, name, "portal_device_login")
	telemetry.VerificationOutcomesTotal.WithLabelValues("device", causeSuccess).Inc()
	s.sweeper.MaybeSweep()

	return &VerifyResult{Valid: true, Token: token}, nil
}

// VerifyPassword validates the hub's shared password for password-gated hubs.
// Unlike email gating there is no contact requirement — holding the secret is
// the proof — but the caller still identifies with an email for the session.
func (s *Service) VerifyPassword(ctx context.Context, hubID, rawEmail, name, password string) (*VerifyResult, error) {
	email := NormalizeEmail(rawEmail)
	if !ValidEmail(email) || password == "" {
		s.reject("password", causeMalformed, hubID)
		return invalidResult, nil
	}

	hub, err := s.hubs.GetPublishedHub(ctx, hubID)
	if err != nil {
		return nil, err
	}
	if hub == nil || hub.AccessMethod != models.AccessMethodPassword || hub.PasswordHash == nil {
		s.reject("password", causePolicyMismatch, hubID)
		return invalidResult, nil
	}

	if bcrypt.CompareHashAndPassword([]byte(*hub.PasswordHash), []byte(password)) != nil {
		s.reject("password", causeMismatch, hubID)
		return invalidResult, nil
	}

	displayName := strings.TrimSpace(name)
	if displayName == "" {
		displayName = email
	}
	token, err := auth.GeneratePortalToken(hubID, email, displayName)
	if err != nil {
		return nil, err
	}

	s.recordLogin(ctx, hubID, email, displayName, "portal_password_login")
	telemetry.VerificationOutcomesTotal.WithLabelValues("password", causeSuccess).Inc()

	return &VerifyResult{Valid: true, Token: token}, nil
}

// recordLogin upserts the active client member record and writes a login
// event. Both are best-effort: a bookkeeping failure must not take down a
// verification that already succeeded.
func (s *Service) recordLogin(ctx context.Context, hubID, email, name, action string) {
	if err := s.members.UpsertClientMember(ctx, hubID, email, name); err != nil {
		slog.Error("failed to upsert client member", "hub_id", hubID, "error", err)
	}
	event := &models.Event{
		HubID:      hubID,
		ActorID:    models.SyntheticActorPrefix + email,
		ActorEmail: email,
		ActorName:  name,
		Action:     action,
	}
	if err := s.events.RecordEvent(ctx, event); err != nil {
		slog.Error("failed to record login event", "hub_id", hubID, "error", err)
	}
}

func (s *Service) reject(operation, cause, hubID string) {
	slog.Info("verification rejected", "operation", operation, "cause", cause, "hub_id", hubID)
	telemetry.VerificationOutcomesTotal.WithLabelValues(operation, cause).Inc()
}
