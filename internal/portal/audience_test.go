package portal

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/clienthub/clienthub/internal/db/models"
	"github.com/clienthub/clienthub/internal/db/repositories"
)

var memberCols = []string{"id", "hub_id", "user_id", "email", "name", "role", "status", "created_at"}

var identityCols = []string{"email", "name"}

func newTestAudienceService(t *testing.T) (*AudienceService, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	sqlxDB := sqlx.NewDb(db, "sqlmock")
	svc := NewAudienceService(
		repositories.NewHubRepository(db),
		repositories.NewContactRepository(db),
		repositories.NewMemberRepository(db),
		repositories.NewMessageRepository(sqlxDB),
		repositories.NewEventRepository(sqlxDB),
	)
	return svc, mock
}

func testHub(method string, backfilled bool) *models.Hub {
	return &models.Hub{
		ID:                 "hub-1",
		TenantID:           "tenant-1",
		Name:               "Acme Redesign",
		AccessMethod:       method,
		IsPublished:        true,
		InviteBackfillDone: backfilled,
	}
}

// expectEmptyStaffQueries covers the three staff-audience sources with no rows.
func expectEmptyStaffQueries(mock sqlmock.Sqlmock) {
	mock.ExpectQuery("SELECT.*FROM hub_members.*role = 'staff'").
		WillReturnRows(sqlmock.NewRows(memberCols))
	mock.ExpectQuery("SELECT DISTINCT ON \\(sender_email\\)").
		WillReturnRows(sqlmock.NewRows(identityCols))
	mock.ExpectQuery("SELECT DISTINCT ON \\(actor_email\\)").
		WillReturnRows(sqlmock.NewRows(identityCols))
}

// ---------------------------------------------------------------------------
// IsExact per access method
// ---------------------------------------------------------------------------

func TestGetAudience_ExactOnlyForEmailGating(t *testing.T) {
	cases := []struct {
		method string
		exact  bool
	}{
		{"email", true},
		{"password", false},
		{"open", false},
	}
	for _, tc := range cases {
		t.Run(tc.method, func(t *testing.T) {
			svc, mock := newTestAudienceService(t)
			mock.ExpectQuery("SELECT.*FROM portal_contacts").
				WillReturnRows(sqlmock.NewRows(contactCols))
			expectEmptyStaffQueries(mock)

			audience, err := svc.GetAudience(context.Background(), testHub(tc.method, true))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if audience.Client.IsExact != tc.exact {
				t.Errorf("IsExact = %v for method %s, want %v",
					audience.Client.IsExact, tc.method, tc.exact)
			}
			if audience.Client.Note == "" {
				t.Error("every audience carries an advisory note")
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Client audience composition
// ---------------------------------------------------------------------------

func TestGetAudience_LegacyEmailDeduplicatedAgainstContacts(t *testing.T) {
	svc, mock := newTestAudienceService(t)

	hub := testHub("email", true)
	legacy := "Alice@Example.com" // same person as the contact, different casing
	hub.ClientEmail = &legacy

	mock.ExpectQuery("SELECT.*FROM portal_contacts").
		WillReturnRows(sqlmock.NewRows(contactCols).
			AddRow("contact-1", "hub-1", "alice@example.com", "Alice", time.Now()))
	expectEmptyStaffQueries(mock)

	audience, err := svc.GetAudience(context.Background(), hub)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(audience.Client.KnownReaders) != 1 {
		t.Fatalf("readers = %d, want 1 (legacy email deduplicated)", len(audience.Client.KnownReaders))
	}
	r := audience.Client.KnownReaders[0]
	if r.Source != SourceContact || r.Name != "Alice" {
		t.Errorf("unexpected reader: %+v", r)
	}
}

func TestGetAudience_LegacyEmailIncludedWhenDistinct(t *testing.T) {
	svc, mock := newTestAudienceService(t)

	hub := testHub("email", true)
	legacy := "founder@client.com"
	hub.ClientEmail = &legacy

	mock.ExpectQuery("SELECT.*FROM portal_contacts").
		WillReturnRows(sqlmock.NewRows(contactCols).
			AddRow("contact-1", "hub-1", "alice@example.com", "Alice", time.Now()))
	// Legacy reader has no record name; the resolver asks the member table.
	mock.ExpectQuery("SELECT name FROM hub_members").
		WithArgs("hub-1", "founder@client.com").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("Fran Founder"))
	expectEmptyStaffQueries(mock)

	audience, err := svc.GetAudience(context.Background(), hub)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(audience.Client.KnownReaders) != 2 {
		t.Fatalf("readers = %d, want 2", len(audience.Client.KnownReaders))
	}
	legacyReader := audience.Client.KnownReaders[1]
	if legacyReader.Source != SourceLegacy || legacyReader.Name != "Fran Founder" {
		t.Errorf("unexpected legacy reader: %+v", legacyReader)
	}
}

// ---------------------------------------------------------------------------
// Staff audience composition
// ---------------------------------------------------------------------------

func TestGetAudience_StaffUnionDeduplicatesByEmail(t *testing.T) {
	svc, mock := newTestAudienceService(t)

	mock.ExpectQuery("SELECT.*FROM portal_contacts").
		WillReturnRows(sqlmock.NewRows(contactCols))
	mock.ExpectQuery("SELECT.*FROM hub_members.*role = 'staff'").
		WillReturnRows(sqlmock.NewRows(memberCols).
			AddRow("member-1", "hub-1", nil, "dana@agency.com", "Dana", "staff", "active", time.Now()))
	// Dana also appears as a message sender; the member record wins.
	mock.ExpectQuery("SELECT DISTINCT ON \\(sender_email\\)").
		WillReturnRows(sqlmock.NewRows(identityCols).
			AddRow("dana@agency.com", "D.").
			AddRow("pm@agency.com", "Pat"))
	mock.ExpectQuery("SELECT DISTINCT ON \\(actor_email\\)").
		WillReturnRows(sqlmock.NewRows(identityCols).
			AddRow("ops@agency.com", "Omar"))

	audience, err := svc.GetAudience(context.Background(), testHub("open", true))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	readers := audience.Staff.KnownReaders
	if len(readers) != 3 {
		t.Fatalf("staff readers = %d, want 3", len(readers))
	}
	if readers[0].Email != "dana@agency.com" || readers[0].Source != SourceMember || readers[0].Name != "Dana" {
		t.Errorf("member record should win for duplicated email: %+v", readers[0])
	}
	if readers[1].Source != SourceMessage || readers[2].Source != SourceEvent {
		t.Errorf("unexpected sources: %+v", readers)
	}
}

// ---------------------------------------------------------------------------
// Invite backfill
// ---------------------------------------------------------------------------

func TestGetAudience_TriggersBackfillOncePerHub(t *testing.T) {
	svc, mock := newTestAudienceService(t)
	hub := testHub("email", false)

	// First call runs the reconciliation transaction.
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO hub_members.*SELECT DISTINCT ON \\(i.invited_by\\)").
		WithArgs("hub-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE hubs SET invite_backfill_done = TRUE").
		WithArgs("hub-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectQuery("SELECT.*FROM portal_contacts").
		WillReturnRows(sqlmock.NewRows(contactCols))
	expectEmptyStaffQueries(mock)

	if _, err := svc.GetAudience(context.Background(), hub); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Second call for the same hub: memo short-circuits, no transaction.
	mock.ExpectQuery("SELECT.*FROM portal_contacts").
		WillReturnRows(sqlmock.NewRows(contactCols))
	expectEmptyStaffQueries(mock)

	if _, err := svc.GetAudience(context.Background(), hub); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestGetAudience_BackfillFailureDoesNotBreakAudience(t *testing.T) {
	svc, mock := newTestAudienceService(t)
	hub := testHub("email", false)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO hub_members.*SELECT DISTINCT ON \\(i.invited_by\\)").
		WillReturnError(errTest)
	mock.ExpectRollback()
	mock.ExpectQuery("SELECT.*FROM portal_contacts").
		WillReturnRows(sqlmock.NewRows(contactCols))
	expectEmptyStaffQueries(mock)

	audience, err := svc.GetAudience(context.Background(), hub)
	if err != nil {
		t.Fatalf("audience should resolve despite a failed backfill: %v", err)
	}
	if audience == nil {
		t.Fatal("expected audience")
	}

	// The failure was not memoized; the next call retries the backfill.
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO hub_members.*SELECT DISTINCT ON \\(i.invited_by\\)").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("UPDATE hubs SET invite_backfill_done = TRUE").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectQuery("SELECT.*FROM portal_contacts").
		WillReturnRows(sqlmock.NewRows(contactCols))
	expectEmptyStaffQueries(mock)

	if _, err := svc.GetAudience(context.Background(), hub); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
