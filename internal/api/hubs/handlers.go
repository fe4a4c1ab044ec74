// Package hubs implements the staff-facing hub administration endpoints:
// access-method management, portal contact CRUD, member and invite removal,
// the message feed, and the audience view. Every handler is tenant-guarded —
// a staff token for one tenant cannot touch another tenant's hubs — and every
// mutation that removes a person's access runs the transactional revocation
// in the repository layer.
package hubs

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/clienthub/clienthub/internal/db/models"
	"github.com/clienthub/clienthub/internal/db/repositories"
	"github.com/clienthub/clienthub/internal/middleware"
	"github.com/clienthub/clienthub/internal/portal"
)

// Handlers bundles the dependencies of the staff hub endpoints.
type Handlers struct {
	hubs     *repositories.HubRepository
	contacts *repositories.ContactRepository
	members  *repositories.MemberRepository
	invites  *repositories.InviteRepository
	messages *repositories.MessageRepository
	audience *portal.AudienceService
}

// NewHandlers creates the staff hub handlers.
func NewHandlers(
	hubs *repositories.HubRepository,
	contacts *repositories.ContactRepository,
	members *repositories.MemberRepository,
	invites *repositories.InviteRepository,
	messages *repositories.MessageRepository,
	audience *portal.AudienceService,
) *Handlers {
	return &Handlers{
		hubs:     hubs,
		contacts: contacts,
		members:  members,
		invites:  invites,
		messages: messages,
		audience: audience,
	}
}

// loadHub fetches the routed hub and enforces the tenant guard. On failure it
// writes the response and returns nil.
func (h *Handlers) loadHub(c *gin.Context) *models.Hub {
	hub, err := h.hubs.GetHubByID(c.Request.Context(), c.Param("hubId"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load hub"})
		return nil
	}
	if hub == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Hub not found"})
		return nil
	}
	claims := middleware.StaffClaims(c)
	if claims == nil || claims.TenantID != hub.TenantID {
		c.JSON(http.StatusForbidden, gin.H{"error": "Hub belongs to another tenant"})
		return nil
	}
	return hub
}

// GetAccessMethodHandler returns the hub's current gating strategy.
// GET /api/v1/hubs/:hubId/access-method
func (h *Handlers) GetAccessMethodHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		hub := h.loadHub(c)
		if hub == nil {
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": gin.H{
			"method":      hub.AccessMethod,
			"isPublished": hub.IsPublished,
		}})
	}
}

// UpdateAccessMethodHandler changes the hub's gating strategy. This is a
// policy transition, not a field update: switching away from email gating
// revokes every outstanding code and device token for the hub in the same
// transaction, and switching to open clears the stored password hash.
// PATCH /api/v1/hubs/:hubId/access-method
func (h *Handlers) UpdateAccessMethodHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		hub := h.loadHub(c)
		if hub == nil {
			return
		}

		var req struct {
			Method   string `json:"method" binding:"required"`
			Password string `json:"password"`
		}
		if err := c.ShouldBindJSON(&req); err != nil || !models.ValidAccessMethod(req.Method) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Method must be one of: email, password, open"})
			return
		}

		var passwordHash *string
		if req.Method == models.AccessMethodPassword {
			if len(req.Password) < 8 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Password must be at least 8 characters"})
				return
			}
			hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update access method"})
				return
			}
			s := string(hash)
			passwordHash = &s
		}

		err := h.hubs.UpdateAccessMethod(c.Request.Context(), hub.ID, req.Method, passwordHash)
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Hub not found"})
			return
		}
		if err != nil {
			// The transaction rolled back in full; no partial revocation.
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update access method"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"data": gin.H{"method": req.Method}})
	}
}

// ListContactsHandler returns the hub's portal contacts.
// GET /api/v1/hubs/:hubId/contacts
func (h *Handlers) ListContactsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		hub := h.loadHub(c)
		if hub == nil {
			return
		}
		contacts, err := h.contacts.ListContacts(c.Request.Context(), hub.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list contacts"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": gin.H{"contacts": contactViews(contacts)}})
	}
}

// CreateContactHandler grants an email address access to the hub.
// POST /api/v1/hubs/:hubId/contacts
func (h *Handlers) CreateContactHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		hub := h.loadHub(c)
		if hub == nil {
			return
		}

		var req struct {
			Email string `json:"email" binding:"required"`
			Name  string `json:"name"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Email is required"})
			return
		}
		email := portal.NormalizeEmail(req.Email)
		if !portal.ValidEmail(email) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "A valid email is required"})
			return
		}

		contact := &models.PortalContact{HubID: hub.ID, Email: email, Name: req.Name}
		err := h.contacts.CreateContact(c.Request.Context(), contact)
		if errors.Is(err, repositories.ErrDuplicateContact) {
			c.JSON(http.StatusConflict, gin.H{"error": "Contact already exists"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create contact"})
			return
		}

		c.JSON(http.StatusCreated, gin.H{"data": gin.H{"contact": contactView(*contact)}})
	}
}

// DeleteContactHandler removes a contact's access. The contact row, their
// device tokens, their verification codes, and any pending invites go in one
// transaction — on any failure nothing is removed and the staff action fails
// loudly rather than leaving access half revoked.
// DELETE /api/v1/hubs/:hubId/contacts/:contactId
func (h *Handlers) DeleteContactHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		hub := h.loadHub(c)
		if hub == nil {
			return
		}

		contact, err := h.contacts.GetContactByID(c.Request.Context(), c.Param("contactId"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load contact"})
			return
		}
		if contact == nil || contact.HubID != hub.ID {
			c.JSON(http.StatusNotFound, gin.H{"error": "Contact not found"})
			return
		}

		if err := h.contacts.DeleteContactWithRevocation(c.Request.Context(), contact); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to remove contact"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"data": gin.H{"removed": true}})
	}
}

// RemoveMemberHandler removes a hub member, revoking the member's portal
// artifacts in the same transaction.
// DELETE /api/v1/hubs/:hubId/members/:memberId
func (h *Handlers) RemoveMemberHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		hub := h.loadHub(c)
		if hub == nil {
			return
		}

		member, err := h.members.GetMemberByID(c.Request.Context(), c.Param("memberId"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load member"})
			return
		}
		if member == nil || member.HubID != hub.ID {
			c.JSON(http.StatusNotFound, gin.H{"error": "Member not found"})
			return
		}

		if err := h.members.RemoveMemberWithRevocation(c.Request.Context(), member); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to remove member"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"data": gin.H{"removed": true}})
	}
}

// ListInvitesHandler returns the hub's invites, pending and settled.
// GET /api/v1/hubs/:hubId/invites
func (h *Handlers) ListInvitesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		hub := h.loadHub(c)
		if hub == nil {
			return
		}
		invites, err := h.invites.ListInvites(c.Request.Context(), hub.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list invites"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": gin.H{"invites": invites}})
	}
}

// CreateInviteHandler records a teammate-access request for the hub.
// POST /api/v1/hubs/:hubId/invites
func (h *Handlers) CreateInviteHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		hub := h.loadHub(c)
		if hub == nil {
			return
		}

		var req struct {
			Email string `json:"email" binding:"required"`
			Role  string `json:"role"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Email is required"})
			return
		}
		email := portal.NormalizeEmail(req.Email)
		if !portal.ValidEmail(email) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "A valid email is required"})
			return
		}
		role := req.Role
		if role == "" {
			role = models.MemberRoleStaff
		}
		if role != models.MemberRoleStaff && role != models.MemberRoleClient {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Role must be staff or client"})
			return
		}

		claims := middleware.StaffClaims(c)
		invite := &models.HubInvite{
			HubID:         hub.ID,
			Email:         email,
			Role:          role,
			InvitedBy:     claims.Email,
			InvitedByName: claims.Name,
		}
		if err := h.invites.CreateInvite(c.Request.Context(), invite); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create invite"})
			return
		}

		c.JSON(http.StatusCreated, gin.H{"data": gin.H{"invite": invite}})
	}
}

// RevokeInviteHandler revokes a pending invite, revoking the invitee's portal
// artifacts in the same transaction.
// DELETE /api/v1/hubs/:hubId/invites/:inviteId
func (h *Handlers) RevokeInviteHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		hub := h.loadHub(c)
		if hub == nil {
			return
		}

		invite, err := h.invites.GetInviteByID(c.Request.Context(), c.Param("inviteId"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load invite"})
			return
		}
		if invite == nil || invite.HubID != hub.ID {
			c.JSON(http.StatusNotFound, gin.H{"error": "Invite not found"})
			return
		}

		if err := h.invites.RevokeInviteWithRevocation(c.Request.Context(), invite); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to revoke invite"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"data": gin.H{"revoked": true}})
	}
}

// ListMessagesHandler returns the hub's message feed.
// GET /api/v1/hubs/:hubId/messages
func (h *Handlers) ListMessagesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		hub := h.loadHub(c)
		if hub == nil {
			return
		}
		messages, err := h.messages.ListMessages(c.Request.Context(), hub.ID, 50)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load messages"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": gin.H{"messages": messages}})
	}
}

// CreateMessageHandler appends a staff message to the hub feed. Sender
// identity comes from the staff token.
// POST /api/v1/hubs/:hubId/messages
func (h *Handlers) CreateMessageHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		hub := h.loadHub(c)
		if hub == nil {
			return
		}

		var req struct {
			Body string `json:"body" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Message body is required"})
			return
		}

		claims := middleware.StaffClaims(c)
		msg := &models.Message{
			HubID:       hub.ID,
			SenderEmail: claims.Email,
			SenderName:  claims.Name,
			Body:        req.Body,
		}
		if err := h.messages.CreateMessage(c.Request.Context(), msg); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create message"})
			return
		}

		c.JSON(http.StatusCreated, gin.H{"data": gin.H{"message": msg}})
	}
}

// GetAudienceHandler returns the audience snapshot for staff.
// GET /api/v1/hubs/:hubId/messages/audience
func (h *Handlers) GetAudienceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		hub := h.loadHub(c)
		if hub == nil {
			return
		}

		audience, err := h.audience.GetAudience(c.Request.Context(), hub)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to resolve audience"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"data": audience})
	}
}

type contactJSON struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	CreatedAt string `json:"createdAt"`
}

func contactView(c models.PortalContact) contactJSON {
	return contactJSON{
		ID:        c.ID,
		Email:     c.Email,
		Name:      c.Name,
		CreatedAt: c.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
}

func contactViews(contacts []models.PortalContact) []contactJSON {
	views := make([]contactJSON, 0, len(contacts))
	for _, c := range contacts {
		views = append(views, contactView(c))
	}
	return views
}
