package auth

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/tokenizr-backend/pkg/enums"
)

var (
	errMissingUser  = errors.New("token missing user id")
	errSubjectDrift = errors.New("token subject does not match user id")
	errInvalidRole  = errors.New("token carries an unknown role")
)

// AccessTokenPayload is what the identity side knows when it issues a token.
type AccessTokenPayload struct {
	UserID        uuid.UUID
	Role          enums.Role
	WalletAddress *string
	JTI           string
}

type AccessTokenClaims struct {
	UserID        uuid.UUID  `json:"user_id"`
	Role          enums.Role `json:"role"`
	WalletAddress *string    `json:"wallet_address,omitempty"`
	jwt.RegisteredClaims
}

// Validate runs after the registered claim checks in jwt.Parser.
func (c *AccessTokenClaims) Validate() error {
	if c.UserID == uuid.Nil {
		return errMissingUser
	}
	if c.Subject != "" && c.Subject != c.UserID.String() {
		return errSubjectDrift
	}
	if !c.Role.IsValid() {
		return errInvalidRole
	}
	return nil
}

// IsAdmin reports whether the token grants reviewer rights.
func (c *AccessTokenClaims) IsAdmin() bool {
	return c != nil && c.Role == enums.RoleAdmin
}
