// Package auth issues and verifies the HS256 access tokens carried by API callers.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/tokenizr-backend/pkg/config"
)

var signingMethod = jwt.SigningMethodHS256

// ErrInvalidConfig wraps every configuration problem reported by NewTokens.
var ErrInvalidConfig = errors.New("invalid jwt config")

// Tokens holds a validated JWT configuration.
type Tokens struct {
	secret   []byte
	issuer   string
	audience string
	ttl      time.Duration
	leeway   time.Duration
	now      func() time.Time
}

func NewTokens(cfg config.JWTConfig) (*Tokens, error) {
	switch {
	case cfg.Secret == "":
		return nil, fmt.Errorf("%w: secret is required", ErrInvalidConfig)
	case strings.TrimSpace(cfg.Issuer) == "":
		return nil, fmt.Errorf("%w: issuer is required", ErrInvalidConfig)
	case cfg.ExpirationMinutes <= 0:
		return nil, fmt.Errorf("%w: expiration minutes must be positive", ErrInvalidConfig)
	case cfg.Leeway < 0:
		return nil, fmt.Errorf("%w: leeway cannot be negative", ErrInvalidConfig)
	}
	return &Tokens{
		secret:   []byte(cfg.Secret),
		issuer:   strings.TrimSpace(cfg.Issuer),
		audience: strings.TrimSpace(cfg.Audience),
		ttl:      time.Duration(cfg.ExpirationMinutes) * time.Minute,
		leeway:   cfg.Leeway,
		now:      time.Now,
	}, nil
}

// Mint signs a token valid from now for the configured lifetime. A blank JTI
// gets a random one.
func (t *Tokens) Mint(now time.Time, payload AccessTokenPayload) (string, error) {
	if payload.UserID == uuid.Nil {
		return "", errMissingUser
	}
	if !payload.Role.IsValid() {
		return "", fmt.Errorf("invalid role %q", payload.Role)
	}
	jti := strings.TrimSpace(payload.JTI)
	if jti == "" {
		jti = uuid.NewString()
	}

	claims := AccessTokenClaims{
		UserID:        payload.UserID,
		Role:          payload.Role,
		WalletAddress: payload.WalletAddress,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Issuer:    t.issuer,
			Subject:   payload.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}
	if t.audience != "" {
		claims.Audience = jwt.ClaimStrings{t.audience}
	}

	signed, err := jwt.NewWithClaims(signingMethod, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("signing jwt: %w", err)
	}
	return signed, nil
}

// Verify checks signature, issuer, audience and lifetime, then the custom claims.
func (t *Tokens) Verify(raw string) (*AccessTokenClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithIssuer(t.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(t.leeway),
		jwt.WithTimeFunc(t.now),
	}
	if t.audience != "" {
		opts = append(opts, jwt.WithAudience(t.audience))
	}

	claims := &AccessTokenClaims{}
	if _, err := jwt.ParseWithClaims(raw, claims, t.key, opts...); err != nil {
		return nil, err
	}
	return claims, nil
}

func (t *Tokens) key(*jwt.Token) (any, error) {
	return t.secret, nil
}

// MintAccessToken is a one-shot Mint for callers without a Tokens value.
func MintAccessToken(cfg config.JWTConfig, now time.Time, payload AccessTokenPayload) (string, error) {
	tokens, err := NewTokens(cfg)
	if err != nil {
		return "", err
	}
	return tokens.Mint(now, payload)
}

// ParseAccessToken is a one-shot Verify.
func ParseAccessToken(cfg config.JWTConfig, raw string) (*AccessTokenClaims, error) {
	tokens, err := NewTokens(cfg)
	if err != nil {
		return nil, err
	}
	return tokens.Verify(raw)
}
