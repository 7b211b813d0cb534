// Package jwt issues and verifies the HS256 tokens carried by clients.
//
// An access token lives for 24 hours and carries the full principal
// (subject, email, username, role, permissions). A refresh token lives for
// seven days and carries only the subject. Both are signed with the same
// process-wide secret of at least 32 bytes.
//
// Verification never panics. Every failure unwraps to one of two
// sentinels:
//
//	principal, err := verifier.Verify(ctx, token)
//	switch {
//	case errors.Is(err, jwt.ErrTokenExpired):
//	    // signature fine, exp passed
//	case errors.Is(err, jwt.ErrTokenInvalid):
//	    // bad signature, malformed, wrong type or unknown role
//	}
package jwt
