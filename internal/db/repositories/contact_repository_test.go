package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/clienthub/clienthub/internal/db/models"
)

var contactCols = []string{"id", "hub_id", "email", "name", "created_at"}

func newContactRepo(t *testing.T) (*ContactRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewContactRepository(db), mock
}

// ---------------------------------------------------------------------------
// CreateContact
// ---------------------------------------------------------------------------

func TestCreateContact_OK(t *testing.T) {
	repo, mock := newContactRepo(t)
	mock.ExpectExec("INSERT INTO portal_contacts").
		WillReturnResult(sqlmock.NewResult(0, 1))

	contact := &models.PortalContact{HubID: "hub-1", Email: "alice@example.com", Name: "Alice"}
	if err := repo.CreateContact(context.Background(), contact); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if contact.ID == "" {
		t.Error("expected generated contact ID")
	}
}

func TestCreateContact_Duplicate(t *testing.T) {
	repo, mock := newContactRepo(t)
	mock.ExpectExec("INSERT INTO portal_contacts").
		WillReturnError(&pq.Error{Code: "23505"})

	err := repo.CreateContact(context.Background(), &models.PortalContact{
		HubID: "hub-1", Email: "alice@example.com",
	})
	if !errors.Is(err, ErrDuplicateContact) {
		t.Errorf("expected ErrDuplicateContact, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// GetContact
// ---------------------------------------------------------------------------

func TestGetContact_Found(t *testing.T) {
	repo, mock := newContactRepo(t)
	mock.ExpectQuery("SELECT.*FROM portal_contacts.*WHERE hub_id").
		WithArgs("hub-1", "alice@example.com").
		WillReturnRows(sqlmock.NewRows(contactCols).
			AddRow("contact-1", "hub-1", "alice@example.com", "Alice", time.Now()))

	contact, err := repo.GetContact(context.Background(), "hub-1", "alice@example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if contact == nil || contact.Email != "alice@example.com" {
		t.Errorf("unexpected contact: %+v", contact)
	}
}

func TestGetContact_NotFound(t *testing.T) {
	repo, mock := newContactRepo(t)
	mock.ExpectQuery("SELECT.*FROM portal_contacts.*WHERE hub_id").
		WithArgs("hub-1", "nobody@example.com").
		WillReturnRows(sqlmock.NewRows(contactCols))

	contact, err := repo.GetContact(context.Background(), "hub-1", "nobody@example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if contact != nil {
		t.Errorf("expected nil contact, got %v", contact)
	}
}

// ---------------------------------------------------------------------------
// DeleteContactWithRevocation
// ---------------------------------------------------------------------------

func TestDeleteContactWithRevocation_AllInOneTransaction(t *testing.T) {
	repo, mock := newContactRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM portal_contacts WHERE id").
		WithArgs("contact-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM device_tokens WHERE hub_id.*email").
		WithArgs("hub-1", "alice@example.com").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("DELETE FROM verification_codes WHERE hub_id.*email").
		WithArgs("hub-1", "alice@example.com").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM hub_invites WHERE hub_id.*status = 'pending'").
		WithArgs("hub-1", "alice@example.com").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	contact := &models.PortalContact{ID: "contact-1", HubID: "hub-1", Email: "alice@example.com"}
	if err := repo.DeleteContactWithRevocation(context.Background(), contact); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestDeleteContactWithRevocation_FailureRollsBackEverything(t *testing.T) {
	repo, mock := newContactRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM portal_contacts WHERE id").
		WithArgs("contact-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM device_tokens WHERE hub_id.*email").
		WillReturnError(errDB)
	mock.ExpectRollback()

	contact := &models.PortalContact{ID: "contact-1", HubID: "hub-1", Email: "alice@example.com"}
	if err := repo.DeleteContactWithRevocation(context.Background(), contact); err == nil {
		t.Error("expected error, got nil")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
