package jwt

import (
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
)

// Token lifetimes.
const (
	AccessTokenTTL  = 24 * time.Hour
	RefreshTokenTTL = 7 * 24 * time.Hour
)

// MinSecretLength is the minimum signing secret length in bytes.
const MinSecretLength = 32

// Algorithm is the only accepted signing algorithm.
const Algorithm = jwa.HS256

// Private claim names.
const (
	ClaimType        = "typ"
	ClaimEmail       = "email"
	ClaimUsername    = "username"
	ClaimRole        = "role"
	ClaimPermissions = "permissions"
)

// TokenType discriminates access from refresh tokens.
type TokenType string

// Token types.
const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// TokenPair is the result of issuing tokens for a principal.
type TokenPair struct {
	AccessToken      string    `json:"accessToken"`
	RefreshToken     string    `json:"refreshToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}

func stringClaim(v interface{}, ok bool) string {
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// stringSliceClaim decodes a JSON array of strings. Non-string members
// make the whole claim invalid.
func stringSliceClaim(v interface{}, ok bool) ([]string, bool) {
	if !ok || v == nil {
		return nil, true
	}
	switch vv := v.(type) {
	case []string:
		return vv, true
	case []interface{}:
		out := make([]string, 0, len(vv))
		for _, item := range vv {
			s, isString := item.(string)
			if !isString {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}
