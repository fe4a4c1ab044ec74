package repositories

import (
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/clienthub/clienthub/internal/db/models"
)

func newMemberRepo(t *testing.T) (*MemberRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewMemberRepository(db), mock
}

// ---------------------------------------------------------------------------
// UpsertClientMember
// ---------------------------------------------------------------------------

func TestUpsertClientMember_OK(t *testing.T) {
	repo, mock := newMemberRepo(t)
	mock.ExpectExec("INSERT INTO hub_members.*ON CONFLICT \\(hub_id, email, role\\) DO UPDATE").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.UpsertClientMember(context.Background(), "hub-1", "alice@example.com", "Alice"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// ---------------------------------------------------------------------------
// GetMemberNameByEmail
// ---------------------------------------------------------------------------

func TestGetMemberNameByEmail_NoneKnown(t *testing.T) {
	repo, mock := newMemberRepo(t)
	mock.ExpectQuery("SELECT name FROM hub_members").
		WithArgs("hub-1", "nobody@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"name"}))

	name, err := repo.GetMemberNameByEmail(context.Background(), "hub-1", "nobody@example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if name != "" {
		t.Errorf("name = %q, want empty", name)
	}
}

// ---------------------------------------------------------------------------
// RemoveMemberWithRevocation
// ---------------------------------------------------------------------------

func TestRemoveMemberWithRevocation_AllInOneTransaction(t *testing.T) {
	repo, mock := newMemberRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE hub_members SET status = 'removed'").
		WithArgs("member-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM device_tokens WHERE hub_id.*email").
		WithArgs("hub-1", "bob@example.com").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM verification_codes WHERE hub_id.*email").
		WithArgs("hub-1", "bob@example.com").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM hub_invites WHERE hub_id.*status = 'pending'").
		WithArgs("hub-1", "bob@example.com").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	member := &models.HubMember{ID: "member-1", HubID: "hub-1", Email: "bob@example.com"}
	if err := repo.RemoveMemberWithRevocation(context.Background(), member); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestRemoveMemberWithRevocation_FailureRollsBack(t *testing.T) {
	repo, mock := newMemberRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE hub_members SET status = 'removed'").
		WithArgs("member-1").
		WillReturnError(errDB)
	mock.ExpectRollback()

	member := &models.HubMember{ID: "member-1", HubID: "hub-1", Email: "bob@example.com"}
	if err := repo.RemoveMemberWithRevocation(context.Background(), member); err == nil {
		t.Error("expected error, got nil")
	}
}

// ---------------------------------------------------------------------------
// BackfillStaffFromInvites
// ---------------------------------------------------------------------------

func TestBackfillStaffFromInvites_InsertsAndMarksDone(t *testing.T) {
	repo, mock := newMemberRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO hub_members.*SELECT DISTINCT ON \\(i.invited_by\\)").
		WithArgs("hub-1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("UPDATE hubs SET invite_backfill_done = TRUE").
		WithArgs("hub-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := repo.BackfillStaffFromInvites(context.Background(), "hub-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestBackfillStaffFromInvites_FlagFailureRollsBack(t *testing.T) {
	repo, mock := newMemberRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO hub_members.*SELECT DISTINCT ON \\(i.invited_by\\)").
		WithArgs("hub-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE hubs SET invite_backfill_done = TRUE").
		WillReturnError(errDB)
	mock.ExpectRollback()

	if err := repo.BackfillStaffFromInvites(context.Background(), "hub-1"); err == nil {
		t.Error("expected error, got nil")
	}
}
