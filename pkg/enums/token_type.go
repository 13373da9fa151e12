package enums

import "fmt"

// TokenType maps to the token_type enum in Postgres.
type TokenType string

const (
	TokenTypeUtility  TokenType = "utility"
	TokenTypeSecurity TokenType = "security"
)

var validTokenTypes = []TokenType{
	TokenTypeUtility,
	TokenTypeSecurity,
}

// String implements fmt.Stringer.
func (t TokenType) String() string {
	return string(t)
}

// IsValid reports whether the value matches the canonical token_type enum.
func (t TokenType) IsValid() bool {
	for _, candidate := range validTokenTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseTokenType converts raw input into TokenType.
func ParseTokenType(value string) (TokenType, error) {
	for _, candidate := range validTokenTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid token type %q", value)
}
