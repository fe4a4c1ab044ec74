// Package auth handles JWT creation, signing, and verification using a shared
// secret, including lazy secret initialization and claims parsing. Two token
// shapes are issued: staff tokens for agency users and portal session
// assertions for verified external clients.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// Issuer and Audience are fixed strings baked into every token so a token
	// minted by another service sharing the same secret cannot be replayed here.
	Issuer   = "clienthub"
	Audience = "clienthub-portal"

	// TokenTypePortal marks a session assertion issued to an external client.
	TokenTypePortal = "portal"

	// PortalSessionLifetime is how long a portal session assertion stays valid.
	// There is no server-side revocation list; expiry is the only cancellation
	// mechanism for an already-issued assertion.
	PortalSessionLifetime = 24 * time.Hour
)

var (
	jwtSecret     string
	jwtSecretOnce sync.Once
	jwtSecretErr  error
)

// StaffClaims is the JWT claims structure for authenticated agency users.
// Type is never set on staff tokens; it exists so the validator can tell a
// portal assertion apart and refuse it on the staff surface.
type StaffClaims struct {
	UserID   string `json:"user_id"`
	TenantID string `json:"tenant_id"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Type     string `json:"type,omitempty"`
	jwt.RegisteredClaims
}

// PortalClaims is the claims structure for a portal session assertion.
// Subject carries the hub ID; the token grants access to that hub only.
type PortalClaims struct {
	Type  string `json:"type"`
	Email string `json:"email"`
	Name  string `json:"name"`
	jwt.RegisteredClaims
}

// isDevMode checks if we're in development mode.
func isDevMode() bool {
	devMode := os.Getenv("DEV_MODE")
	ginMode := os.Getenv("GIN_MODE")
	return devMode == "true" || devMode == "1" || ginMode == "debug"
}

// generateRandomSecret creates a cryptographically secure random secret.
func generateRandomSecret() string {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to a less secure but functional secret
		return fmt.Sprintf("dev-fallback-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(bytes)
}

// ValidateJWTSecret checks that the JWT secret is properly configured.
// In production, this fails if CHB_JWT_SECRET is not set. In dev mode, it
// generates a random secret and logs a warning. Call this at startup.
func ValidateJWTSecret() error {
	jwtSecretOnce.Do(func() {
		secret := os.Getenv("CHB_JWT_SECRET")

		if secret == "" {
			if isDevMode() {
				jwtSecret = generateRandomSecret()
				log.Printf("WARNING: CHB_JWT_SECRET not set. Using auto-generated secret for development.")
				log.Printf("WARNING: Sessions will not persist across restarts. Set CHB_JWT_SECRET for persistent sessions.")
			} else {
				jwtSecretErr = errors.New("SECURITY ERROR: CHB_JWT_SECRET environment variable is required in production. " +
					"Generate a secure secret with: openssl rand -hex 32")
			}
			return
		}

		if len(secret) < 32 {
			log.Printf("WARNING: CHB_JWT_SECRET is shorter than recommended 32 characters. Consider using a longer secret.")
		}

		jwtSecret = secret
	})

	return jwtSecretErr
}

// GetJWTSecret retrieves the validated JWT secret.
// Panics if ValidateJWTSecret() hasn't been called or failed.
func GetJWTSecret() string {
	if jwtSecret == "" {
		if err := ValidateJWTSecret(); err != nil {
			panic(err)
		}
	}
	return jwtSecret
}

// GeneratePortalToken creates a session assertion for a verified client.
// The token is stateless and hub-scoped: subject is the hub ID and the claims
// carry the verified email plus a display name.
func GeneratePortalToken(hubID, email, name string) (string, error) {
	now := time.Now()
	claims := &PortalClaims{
		Type:  TokenTypePortal,
		Email: email,
		Name:  name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   hubID,
			Issuer:    Issuer,
			Audience:  jwt.ClaimStrings{Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(PortalSessionLifetime)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(GetJWTSecret()))
}

// ValidatePortalToken parses and validates a portal session assertion,
// checking signature, expiry, issuer/audience, and the portal type marker.
func ValidatePortalToken(tokenString string) (*PortalClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &PortalClaims{}, keyFunc,
		jwt.WithIssuer(Issuer),
		jwt.WithAudience(Audience),
	)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	claims, ok := token.Claims.(*PortalClaims)
	if !ok {
		return nil, errors.New("invalid claims type")
	}
	if claims.Type != TokenTypePortal {
		return nil, errors.New("not a portal token")
	}
	return claims, nil
}

// GenerateStaffToken creates a JWT for an authenticated agency user.
func GenerateStaffToken(userID, tenantID, email, name string, expiresIn time.Duration) (string, error) {
	if expiresIn == 0 {
		expiresIn = 8 * time.Hour
	}

	now := time.Now()
	claims := &StaffClaims{
		UserID:   userID,
		TenantID: tenantID,
		Email:    email,
		Name:     name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(GetJWTSecret()))
}

// ValidateStaffToken parses and validates a staff JWT.
func ValidateStaffToken(tokenString string) (*StaffClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &StaffClaims{}, keyFunc,
		jwt.WithIssuer(Issuer),
	)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	claims, ok := token.Claims.(*StaffClaims)
	if !ok {
		return nil, errors.New("invalid claims type")
	}
	if claims.Type != "" {
		return nil, errors.New("not a staff token")
	}
	return claims, nil
}

func keyFunc(token *jwt.Token) (interface{}, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, errors.New("unexpected signing method")
	}
	return []byte(GetJWTSecret()), nil
}
