package hubs

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/clienthub/clienthub/internal/auth"
	"github.com/clienthub/clienthub/internal/db/repositories"
	"github.com/clienthub/clienthub/internal/middleware"
	"github.com/clienthub/clienthub/internal/portal"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Setenv("CHB_JWT_SECRET", "test-secret-for-hub-handler-tests-0123456789")
	os.Exit(m.Run())
}

var hubCols = []string{
	"id", "tenant_id", "name", "access_method", "password_hash", "client_email",
	"is_published", "invite_backfill_done", "created_at", "updated_at",
}

var contactCols = []string{"id", "hub_id", "email", "name", "created_at"}

func hubRow(tenantID, method string) *sqlmock.Rows {
	return sqlmock.NewRows(hubCols).
		AddRow("hub-1", tenantID, "Acme", method, nil, nil, true, false, time.Now(), time.Now())
}

// newTestRouter wires the staff handlers behind a middleware that injects
// tenant-1 staff claims, standing in for StaffAuthMiddleware.
func newTestRouter(t *testing.T) (*gin.Engine, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	sqlxDB := sqlx.NewDb(db, "sqlmock")
	hubRepo := repositories.NewHubRepository(db)
	contactRepo := repositories.NewContactRepository(db)
	memberRepo := repositories.NewMemberRepository(db)
	inviteRepo := repositories.NewInviteRepository(db)
	messageRepo := repositories.NewMessageRepository(sqlxDB)
	eventRepo := repositories.NewEventRepository(sqlxDB)
	audience := portal.NewAudienceService(hubRepo, contactRepo, memberRepo, messageRepo, eventRepo)

	h := NewHandlers(hubRepo, contactRepo, memberRepo, inviteRepo, messageRepo, audience)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(middleware.StaffClaimsKey, &auth.StaffClaims{
			UserID:   "user-1",
			TenantID: "tenant-1",
			Email:    "dana@agency.com",
			Name:     "Dana",
		})
	})
	r.GET("/api/v1/hubs/:hubId/access-method", h.GetAccessMethodHandler())
	r.PATCH("/api/v1/hubs/:hubId/access-method", h.UpdateAccessMethodHandler())
	r.GET("/api/v1/hubs/:hubId/contacts", h.ListContactsHandler())
	r.POST("/api/v1/hubs/:hubId/contacts", h.CreateContactHandler())
	r.DELETE("/api/v1/hubs/:hubId/contacts/:contactId", h.DeleteContactHandler())
	r.POST("/api/v1/hubs/:hubId/messages", h.CreateMessageHandler())
	return r, mock
}

func doJSON(t *testing.T, r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func expectHubLookup(mock sqlmock.Sqlmock, rows *sqlmock.Rows) {
	mock.ExpectQuery("SELECT.*FROM hubs WHERE id =").
		WithArgs("hub-1").
		WillReturnRows(rows)
}

// ---------------------------------------------------------------------------
// Tenant guard
// ---------------------------------------------------------------------------

func TestTenantGuard_OtherTenantsHubForbidden(t *testing.T) {
	r, mock := newTestRouter(t)
	expectHubLookup(mock, hubRow("tenant-2", "email"))

	w := doJSON(t, r, http.MethodGet, "/api/v1/hubs/hub-1/access-method", "")
	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403 for another tenant's hub", w.Code)
	}
}

func TestTenantGuard_UnknownHub404(t *testing.T) {
	r, mock := newTestRouter(t)
	expectHubLookup(mock, sqlmock.NewRows(hubCols))

	w := doJSON(t, r, http.MethodGet, "/api/v1/hubs/hub-1/access-method", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

// ---------------------------------------------------------------------------
// Access method
// ---------------------------------------------------------------------------

func TestGetAccessMethod_IncludesPublicationState(t *testing.T) {
	r, mock := newTestRouter(t)
	expectHubLookup(mock, hubRow("tenant-1", "email"))

	w := doJSON(t, r, http.MethodGet, "/api/v1/hubs/hub-1/access-method", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body: %s)", w.Code, w.Body.String())
	}

	var body struct {
		Data struct {
			Method      string `json:"method"`
			IsPublished bool   `json:"isPublished"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body.Data.Method != "email" || !body.Data.IsPublished {
		t.Errorf("data = %+v, want method=email isPublished=true", body.Data)
	}
}

func TestUpdateAccessMethod_UnknownMethod400(t *testing.T) {
	r, mock := newTestRouter(t)
	expectHubLookup(mock, hubRow("tenant-1", "email"))

	w := doJSON(t, r, http.MethodPatch, "/api/v1/hubs/hub-1/access-method", `{"method":"vip"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestUpdateAccessMethod_ShortPassword400(t *testing.T) {
	r, mock := newTestRouter(t)
	expectHubLookup(mock, hubRow("tenant-1", "email"))

	w := doJSON(t, r, http.MethodPatch, "/api/v1/hubs/hub-1/access-method",
		`{"method":"password","password":"short"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestUpdateAccessMethod_LeavingEmailRevokesArtifacts(t *testing.T) {
	r, mock := newTestRouter(t)
	expectHubLookup(mock, hubRow("tenant-1", "email"))

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT access_method FROM hubs.*FOR UPDATE").
		WithArgs("hub-1").
		WillReturnRows(sqlmock.NewRows([]string{"access_method"}).AddRow("email"))
	mock.ExpectExec("UPDATE hubs SET access_method").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM device_tokens WHERE hub_id").
		WithArgs("hub-1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("DELETE FROM verification_codes WHERE hub_id").
		WithArgs("hub-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	w := doJSON(t, r, http.MethodPatch, "/api/v1/hubs/hub-1/access-method", `{"method":"open"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body: %s)", w.Code, w.Body.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("revocation transaction incomplete: %v", err)
	}
}

// ---------------------------------------------------------------------------
// Contacts
// ---------------------------------------------------------------------------

func TestCreateContact_InvalidEmail400(t *testing.T) {
	r, mock := newTestRouter(t)
	expectHubLookup(mock, hubRow("tenant-1", "email"))

	w := doJSON(t, r, http.MethodPost, "/api/v1/hubs/hub-1/contacts", `{"email":"not-an-email"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestCreateContact_NormalizesAndCreates(t *testing.T) {
	r, mock := newTestRouter(t)
	expectHubLookup(mock, hubRow("tenant-1", "email"))
	mock.ExpectExec("INSERT INTO portal_contacts").
		WithArgs(sqlmock.AnyArg(), "hub-1", "alice@example.com", "Alice", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := doJSON(t, r, http.MethodPost, "/api/v1/hubs/hub-1/contacts",
		`{"email":"  Alice@Example.COM ","name":"Alice"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201 (body: %s)", w.Code, w.Body.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expected normalized insert: %v", err)
	}
}

func TestCreateContact_Duplicate409(t *testing.T) {
	r, mock := newTestRouter(t)
	expectHubLookup(mock, hubRow("tenant-1", "email"))
	mock.ExpectExec("INSERT INTO portal_contacts").
		WillReturnError(&pq.Error{Code: "23505"})

	w := doJSON(t, r, http.MethodPost, "/api/v1/hubs/hub-1/contacts",
		`{"email":"alice@example.com"}`)
	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}
}

func TestDeleteContact_CrossHubContact404(t *testing.T) {
	r, mock := newTestRouter(t)
	expectHubLookup(mock, hubRow("tenant-1", "email"))
	mock.ExpectQuery("SELECT.*FROM portal_contacts.*WHERE id =").
		WithArgs("contact-9").
		WillReturnRows(sqlmock.NewRows(contactCols).
			AddRow("contact-9", "hub-other", "alice@example.com", "Alice", time.Now()))

	w := doJSON(t, r, http.MethodDelete, "/api/v1/hubs/hub-1/contacts/contact-9", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 for a contact belonging to another hub", w.Code)
	}
}

// ---------------------------------------------------------------------------
// Messages
// ---------------------------------------------------------------------------

func TestCreateMessage_SenderComesFromToken(t *testing.T) {
	r, mock := newTestRouter(t)
	expectHubLookup(mock, hubRow("tenant-1", "email"))
	mock.ExpectExec("INSERT INTO messages").
		WithArgs(sqlmock.AnyArg(), "hub-1", "dana@agency.com", "Dana", "Deliverables are up.", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := doJSON(t, r, http.MethodPost, "/api/v1/hubs/hub-1/messages",
		`{"body":"Deliverables are up.","senderEmail":"mallory@evil.com"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201 (body: %s)", w.Code, w.Body.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("sender identity must come from the token, not the body: %v", err)
	}
}
