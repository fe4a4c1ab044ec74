// Package public implements the unauthenticated portal HTTP surface: the
// access-method probe, the three verification endpoints, and the
// portal-token-gated feed endpoints.
//
// Response discipline matters more here than anywhere else in the backend.
// The verification endpoints always answer HTTP 200 with validity carried
// in-body, and every failure cause collapses into valid:false — status codes
// and error strings must not become an enumeration oracle.
package public

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/clienthub/clienthub/internal/db/models"
	"github.com/clienthub/clienthub/internal/db/repositories"
	"github.com/clienthub/clienthub/internal/middleware"
	"github.com/clienthub/clienthub/internal/portal"
)

// Handlers bundles the dependencies of the public portal endpoints.
type Handlers struct {
	hubs         *repositories.HubRepository
	messages     *repositories.MessageRepository
	verification *portal.Service
	audience     *portal.AudienceService
}

// NewHandlers creates the public portal handlers.
func NewHandlers(
	hubs *repositories.HubRepository,
	messages *repositories.MessageRepository,
	verification *portal.Service,
	audience *portal.AudienceService,
) *Handlers {
	return &Handlers{
		hubs:         hubs,
		messages:     messages,
		verification: verification,
		audience:     audience,
	}
}

// GetAccessMethodHandler returns the gating strategy of a published hub.
// GET /public/hubs/:hubId/access-method
func (h *Handlers) GetAccessMethodHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		hub, err := h.hubs.GetPublishedHub(c.Request.Context(), c.Param("hubId"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load hub"})
			return
		}
		if hub == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Hub not found"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"data": gin.H{"method": hub.AccessMethod}})
	}
}

// RequestCodeHandler issues an email challenge code.
// POST /public/hubs/:hubId/request-code
//
// The response is {sent:true} whether or not a code was actually issued;
// only a malformed email (400) and the send cooldown (429) differ.
func (h *Handlers) RequestCodeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Email string `json:"email"`
		}
		if err := c.ShouldBindJSON(&req); err != nil || !portal.ValidEmail(portal.NormalizeEmail(req.Email)) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "A valid email is required"})
			return
		}

		err := h.verification.RequestCode(c.Request.Context(), c.Param("hubId"), req.Email)
		if errors.Is(err, portal.ErrSendCooldown) {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "Rate limit exceeded",
				"retry_after": 60,
			})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process request"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"data": gin.H{"sent": true}})
	}
}

// VerifyCodeHandler validates a submitted challenge code.
// POST /public/hubs/:hubId/verify-code
func (h *Handlers) VerifyCodeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Email string `json:"email"`
			Code  string `json:"code"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			// Malformed input is just another invalid attempt to the caller.
			c.JSON(http.StatusOK, gin.H{"data": gin.H{"valid": false}})
			return
		}

		result, err := h.verification.VerifyCode(c.Request.Context(), c.Param("hubId"), req.Email, req.Code)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process request"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"data": verifyBody(result, true)})
	}
}

// VerifyDeviceHandler validates a remembered-device secret.
// POST /public/hubs/:hubId/verify-device
func (h *Handlers) VerifyDeviceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Email       string `json:"email"`
			DeviceToken string `json:"deviceToken"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, gin.H{"data": gin.H{"valid": false}})
			return
		}

		result, err := h.verification.VerifyDevice(c.Request.Context(), c.Param("hubId"), req.Email, req.DeviceToken)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process request"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"data": verifyBody(result, false)})
	}
}

// VerifyPasswordHandler validates the hub password for password-gated hubs.
// POST /public/hubs/:hubId/verify-password
func (h *Handlers) VerifyPasswordHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Email    string `json:"email"`
			Name     string `json:"name"`
			Password string `json:"password"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, gin.H{"data": gin.H{"valid": false}})
			return
		}

		result, err := h.verification.VerifyPassword(c.Request.Context(), c.Param("hubId"), req.Email, req.Name, req.Password)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process request"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"data": verifyBody(result, false)})
	}
}

// verifyBody shapes the verification response. Tokens appear only on success;
// the device secret appears at most once, on code verification.
func verifyBody(result *portal.VerifyResult, includeDevice bool) gin.H {
	body := gin.H{"valid": result.Valid}
	if result.Valid {
		body["token"] = result.Token
		if includeDevice && result.DeviceToken != "" {
			body["deviceToken"] = result.DeviceToken
		}
	}
	return body
}

// ListMessagesHandler returns the hub's message feed for a verified client.
// GET /public/hubs/:hubId/messages (portal token required)
func (h *Handlers) ListMessagesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		messages, err := h.messages.ListMessages(c.Request.Context(), c.Param("hubId"), 50)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load messages"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": gin.H{"messages": messages}})
	}
}

// CreateMessageHandler appends a feed message from a verified client. The
// sender identity comes from the session assertion, never the body.
// POST /public/hubs/:hubId/messages (portal token required)
func (h *Handlers) CreateMessageHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Body string `json:"body" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Message body is required"})
			return
		}

		claims := middleware.PortalClaims(c)
		msg := &models.Message{
			HubID:       c.Param("hubId"),
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

// GetAudienceHandler returns the audience snapshot for a verified client.
// GET /public/hubs/:hubId/messages/audience (portal token required)
func (h *Handlers) GetAudienceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		hub, err := h.hubs.GetPublishedHub(c.Request.Context(), c.Param("hubId"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load hub"})
			return
		}
		if hub == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Hub not found"})
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
