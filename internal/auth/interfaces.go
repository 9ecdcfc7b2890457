package auth

import (
	"time"

	"github.com/google/uuid"
)

// TokenService defines the interface for session token creation and
// validation. Implementations: PasetoService (v4.local) and JWTService
// (HS256), selected by configuration.
type TokenService interface {
	CreateToken(userID uuid.UUID, email, role string, duration time.Duration) (string, error)
	VerifyToken(tokenStr string) (*TokenClaims, error)
}

// TokenClaims represents the claims stored in a session token
type TokenClaims struct {
	UserID    string    `json:"user_id"` // UUID stored as string in token
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	IssuedAt  time.Time `json:"iat"`
	ExpiresAt time.Time `json:"exp"`
}
