// audience.go resolves who can read a hub's message feed. The resolver
// describes, it does not enforce: staff can always read by policy, and for
// password/open hubs the client list is advisory because the secret or link
// grants broader access than any stored contact list.
package portal

import (
	"context"
	"log/slog"
	"sync"

	"github.com/clienthub/clienthub/internal/db/models"
	"github.com/clienthub/clienthub/internal/db/repositories"
)

// Reader provenance tags.
const (
	SourceContact = "contact"
	SourceLegacy  = "legacy"
	SourceMember  = "member"
	SourceMessage = "message"
	SourceEvent   = "event"
)

// Advisory notes shown with the client audience, worded per access method.
const (
	noteEmail    = "Only these contacts can access this hub."
	notePassword = "These are known contacts, but anyone with the hub password can access."
	noteOpen     = "These are known contacts, but anyone with the link can access."
)

// backfillMemoLimit bounds the in-process backfill memo. Dropping the memo is
// harmless: the persisted per-hub flag short-circuits the next lookup.
const backfillMemoLimit = 1024

// Reader is one known identity in an audience.
type Reader struct {
	Email  string `json:"email"`
	Name   string `json:"name"`
	Source string `json:"source"`
}

// ClientAudience is the resolved set of known client readers. IsExact is true
// only for email-gated hubs, where the contact list provably bounds access.
type ClientAudience struct {
	KnownReaders []Reader `json:"knownReaders"`
	IsExact      bool     `json:"isExact"`
	Note         string   `json:"note"`
}

// StaffAudience is the resolved set of known staff readers. Informational
// only — all staff can always read.
type StaffAudience struct {
	KnownReaders []Reader `json:"knownReaders"`
}

// Audience is the full audience snapshot for a hub, computed fresh per request.
type Audience struct {
	Client ClientAudience `json:"clientAudience"`
	Staff  StaffAudience  `json:"staffAudience"`
}

// AudienceService computes audience snapshots.
type AudienceService struct {
	hubs     *repositories.HubRepository
	contacts *repositories.ContactRepository
	members  *repositories.MemberRepository
	messages *repositories.MessageRepository
	events   *repositories.EventRepository

	mu         sync.Mutex
	backfilled map[string]struct{}
}

// NewAudienceService creates an AudienceService.
func NewAudienceService(
	hubs *repositories.HubRepository,
	contacts *repositories.ContactRepository,
	members *repositories.MemberRepository,
	messages *repositories.MessageRepository,
	events *repositories.EventRepository,
) *AudienceService {
	return &AudienceService{
		hubs:       hubs,
		contacts:   contacts,
		members:    members,
		messages:   messages,
		events:     events,
		backfilled: make(map[string]struct{}),
	}
}

// GetAudience computes the audience snapshot for a hub.
func (s *AudienceService) GetAudience(ctx context.Context, hub *models.Hub) (*Audience, error) {
	s.ensureInviteBackfill(ctx, hub)

	client, err := s.clientAudience(ctx, hub)
	if err != nil {
		return nil, err
	}
	staff, err := s.staffAudience(ctx, hub)
	if err != nil {
		return nil, err
	}

	return &Audience{Client: *client, Staff: *staff}, nil
}

func (s *AudienceService) clientAudience(ctx context.Context, hub *models.Hub) (*ClientAudience, error) {
	contacts, err := s.contacts.ListContacts(ctx, hub.ID)
	if err != nil {
		return nil, err
	}

	readers := make([]Reader, 0, len(contacts)+1)
	seen := make(map[string]struct{}, len(contacts)+1)

	for _, c := range contacts {
		email := NormalizeEmail(c.Email)
		if _, dup := seen[email]; dup {
			continue
		}
		seen[email] = struct{}{}
		readers = append(readers, Reader{
			Email:  email,
			Name:   s.displayName(ctx, hub.ID, email, c.Name),
			Source: SourceContact,
		})
	}

	// Older hubs carry a single legacy contact email on the hub row itself.
	if hub.ClientEmail != nil {
		email := NormalizeEmail(*hub.ClientEmail)
		if _, dup := seen[email]; !dup && email != "" {
			seen[email] = struct{}{}
			readers = append(readers, Reader{
				Email:  email,
				Name:   s.displayName(ctx, hub.ID, email, ""),
				Source: SourceLegacy,
			})
		}
	}

	audience := &ClientAudience{
		KnownReaders: readers,
		IsExact:      hub.AccessMethod == models.AccessMethodEmail,
	}
	switch hub.AccessMethod {
	case models.AccessMethodEmail:
		audience.Note = noteEmail
	case models.AccessMethodPassword:
		audience.Note = notePassword
	default:
		audience.Note = noteOpen
	}
	return audience, nil
}

func (s *AudienceService) staffAudience(ctx context.Context, hub *models.Hub) (*StaffAudience, error) {
	staff, err := s.members.ListActiveStaff(ctx, hub.ID)
	if err != nil {
		return nil, err
	}
	senders, err := s.messages.ListSenderIdentities(ctx, hub.ID)
	if err != nil {
		return nil, err
	}
	actors, err := s.events.ListActorIdentities(ctx, hub.ID)
	if err != nil {
		return nil, err
	}

	readers := make([]Reader, 0, len(staff)+len(senders)+len(actors))
	seen := make(map[string]struct{})

	add := func(email, name, source string) {
		email = NormalizeEmail(email)
		if email == "" {
			return
		}
		if _, dup := seen[email]; dup {
			return
		}
		seen[email] = struct{}{}
		readers = append(readers, Reader{Email: email, Name: name, Source: source})
	}

	for _, m := range staff {
		add(m.Email, m.Name, SourceMember)
	}
	for _, id := range senders {
		add(id.Email, id.Name, SourceMessage)
	}
	for _, id := range actors {
		add(id.Email, id.Name, SourceEvent)
	}

	return &StaffAudience{KnownReaders: readers}, nil
}

// displayName picks the first non-empty of the explicit record name and any
// known member display name. Lookup failures degrade to the email itself.
func (s *AudienceService) displayName(ctx context.Context, hubID, email, recordName string) string {
	if recordName != "" {
		return recordName
	}
	name, err := s.members.GetMemberNameByEmail(ctx, hubID, email)
	if err != nil {
		slog.Debug("member name lookup failed", "hub_id", hubID, "error", err)
		return ""
	}
	return name
}

// ensureInviteBackfill runs the one-time reconciliation of legacy invite
// actors into the staff member table, at most once per hub. The persisted
// invite_backfill_done flag makes the pass idempotent across processes; the
// in-process memo only saves the flag lookup on hot hubs. Failures are logged
// and retried on a later request — the audience can still resolve without
// the backfill.
func (s *AudienceService) ensureInviteBackfill(ctx context.Context, hub *models.Hub) {
	key := hub.TenantID + ":" + hub.ID

	s.mu.Lock()
	if _, done := s.backfilled[key]; done {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	if !hub.InviteBackfillDone {
		if err := s.members.BackfillStaffFromInvites(ctx, hub.ID); err != nil {
			slog.Warn("invite backfill failed", "hub_id", hub.ID, "error", err)
			return
		}
		slog.Info("invite backfill completed", "hub_id", hub.ID)
	}

	s.mu.Lock()
	if len(s.backfilled) >= backfillMemoLimit {
		s.backfilled = make(map[string]struct{})
	}
	s.backfilled[key] = struct{}{}
	s.mu.Unlock()
}
