// Package api wires together all HTTP routes for the hub portal backend.
//
// Route grouping philosophy:
//   - /public/hubs/:hubId/* is the unauthenticated portal surface. The
//     access-method probe and the verification endpoints must be reachable
//     without credentials; the feed endpoints under the same prefix require a
//     portal session assertion obtained through verification.
//   - /api/v1/hubs/:hubId/* is the staff surface and always requires a staff
//     JWT plus the tenant guard in the handlers.
//
// Rate limiting is applied per route class rather than globally: the probe,
// code issuance, and verification each get their own budget so exhausting one
// cannot starve the others.
package api

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/clienthub/clienthub/internal/api/hubs"
	"github.com/clienthub/clienthub/internal/api/public"
	"github.com/clienthub/clienthub/internal/config"
	"github.com/clienthub/clienthub/internal/db/repositories"
	"github.com/clienthub/clienthub/internal/mail"
	"github.com/clienthub/clienthub/internal/middleware"
	"github.com/clienthub/clienthub/internal/portal"
)

// BackgroundServices holds resources that must be stopped during graceful
// shutdown. The caller (cmd/server) calls Shutdown() after the HTTP server has
// drained in-flight requests.
type BackgroundServices struct {
	rateLimiters []middleware.Limiter
	redisClient  *redis.Client
}

// Shutdown stops the limiter goroutines and closes the Redis client.
func (bg *BackgroundServices) Shutdown() {
	for _, rl := range bg.rateLimiters {
		rl.Stop()
	}
	if bg.redisClient != nil {
		_ = bg.redisClient.Close()
	}
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg *config.Config, db *sql.DB) (*gin.Engine, *BackgroundServices) {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.SecurityHeadersMiddleware())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())

	// Repositories. The message and event repositories use sqlx for its
	// struct scanning; the rest stay on database/sql.
	sqlxDB := sqlx.NewDb(db, "postgres")
	hubRepo := repositories.NewHubRepository(db)
	contactRepo := repositories.NewContactRepository(db)
	verificationRepo := repositories.NewVerificationRepository(db)
	memberRepo := repositories.NewMemberRepository(db)
	inviteRepo := repositories.NewInviteRepository(db)
	messageRepo := repositories.NewMessageRepository(sqlxDB)
	eventRepo := repositories.NewEventRepository(sqlxDB)

	// Optional Redis: when configured, rate limits and the send cooldown hold
	// across replicas instead of per process.
	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	var cooldown portal.Cooldown
	if redisClient != nil {
		cooldown = portal.NewRedisCooldown(redisClient, cfg.Portal.SendCooldown)
	} else {
		cooldown = portal.NewMemoryCooldown(cfg.Portal.SendCooldown)
	}

	mailer := mail.NewSMTPMailer(
		cfg.Email.SMTPHost, cfg.Email.SMTPPort,
		cfg.Email.SMTPUsername, cfg.Email.SMTPPassword,
		cfg.Email.FromAddress,
	)

	sweeper := portal.NewSweeper(verificationRepo, cfg.Portal.SweepInterval)
	verification := portal.NewService(
		cfg, hubRepo, contactRepo, verificationRepo, memberRepo, eventRepo,
		mailer, cooldown, sweeper,
	)
	audience := portal.NewAudienceService(hubRepo, contactRepo, memberRepo, messageRepo, eventRepo)

	publicHandlers := public.NewHandlers(hubRepo, messageRepo, verification, audience)
	staffHandlers := hubs.NewHandlers(hubRepo, contactRepo, memberRepo, inviteRepo, messageRepo, audience)

	readLimiter := middleware.NewLimiter(redisClient, middleware.PublicReadRateLimitConfig())
	codeLimiter := middleware.NewLimiter(redisClient, middleware.CodeRequestRateLimitConfig())
	verifyLimiter := middleware.NewLimiter(redisClient, middleware.VerifyRateLimitConfig())

	// Health check endpoint
	router.GET("/health", healthCheckHandler(db))

	// Public portal endpoints
	publicHub := router.Group("/public/hubs/:hubId")
	{
		publicHub.GET("/access-method",
			middleware.RateLimitMiddleware(readLimiter),
			publicHandlers.GetAccessMethodHandler())
		publicHub.POST("/request-code",
			middleware.RateLimitMiddleware(codeLimiter),
			publicHandlers.RequestCodeHandler())
		publicHub.POST("/verify-code",
			middleware.RateLimitMiddleware(verifyLimiter),
			publicHandlers.VerifyCodeHandler())
		publicHub.POST("/verify-device",
			middleware.RateLimitMiddleware(verifyLimiter),
			publicHandlers.VerifyDeviceHandler())
		publicHub.POST("/verify-password",
			middleware.RateLimitMiddleware(verifyLimiter),
			publicHandlers.VerifyPasswordHandler())

		// Feed endpoints require a portal session assertion for the same hub.
		feed := publicHub.Group("")
		feed.Use(middleware.RateLimitMiddleware(readLimiter))
		feed.Use(middleware.PortalAuthMiddleware())
		{
			feed.GET("/messages", publicHandlers.ListMessagesHandler())
			feed.POST("/messages", publicHandlers.CreateMessageHandler())
			feed.GET("/messages/audience", publicHandlers.GetAudienceHandler())
		}
	}

	// Staff endpoints
	staffHub := router.Group("/api/v1/hubs/:hubId")
	staffHub.Use(middleware.StaffAuthMiddleware())
	{
		staffHub.GET("/access-method", staffHandlers.GetAccessMethodHandler())
		staffHub.PATCH("/access-method", staffHandlers.UpdateAccessMethodHandler())

		staffHub.GET("/contacts", staffHandlers.ListContactsHandler())
		staffHub.POST("/contacts", staffHandlers.CreateContactHandler())
		staffHub.DELETE("/contacts/:contactId", staffHandlers.DeleteContactHandler())

		staffHub.DELETE("/members/:memberId", staffHandlers.RemoveMemberHandler())

		staffHub.GET("/invites", staffHandlers.ListInvitesHandler())
		staffHub.POST("/invites", staffHandlers.CreateInviteHandler())
		staffHub.DELETE("/invites/:inviteId", staffHandlers.RevokeInviteHandler())

		staffHub.GET("/messages", staffHandlers.ListMessagesHandler())
		staffHub.POST("/messages", staffHandlers.CreateMessageHandler())
		staffHub.GET("/messages/audience", staffHandlers.GetAudienceHandler())
	}

	bg := &BackgroundServices{
		rateLimiters: []middleware.Limiter{readLimiter, codeLimiter, verifyLimiter},
		redisClient:  redisClient,
	}

	return router, bg
}

// healthCheckHandler returns the health status of the service.
func healthCheckHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database connection failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}
