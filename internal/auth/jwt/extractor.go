package jwt

import "strings"

// BearerPrefix is the Authorization scheme prefix, matched case-insensitively.
const BearerPrefix = "Bearer "

// ExtractBearer returns the token from an Authorization header value.
// It reports false when the header is empty, uses another scheme, or has
// no token segment.
func ExtractBearer(header string) (string, bool) {
	if len(header) < len(BearerPrefix) {
		return "", false
	}
	if !strings.EqualFold(header[:len(BearerPrefix)], BearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(BearerPrefix):])
	if token == "" {
		return "", false
	}
	return token, true
}
