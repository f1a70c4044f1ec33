package auth

import (
	"github.com/adeyemio/tradefair-backend/pkg/enums"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	UserID   uuid.UUID
	VendorID *uuid.UUID
	Role     enums.ActorRole
	JTI      string
}

// AccessTokenClaims represents the typed JWT issued to clients. VendorID is
// absent for admin tokens, which are scoped across all vendors.
type AccessTokenClaims struct {
	UserID   uuid.UUID       `json:"user_id"`
	VendorID *uuid.UUID      `json:"vendor_id,omitempty"`
	Role     enums.ActorRole `json:"role"`
	jwt.RegisteredClaims
}
