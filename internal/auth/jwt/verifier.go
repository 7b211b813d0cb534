package jwt

import (
	"context"
	"errors"
	"fmt"
	"time"

	jwxjwt "github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/vyrodovalexey/vibemuse-edge/internal/auth"
	"github.com/vyrodovalexey/vibemuse-edge/internal/observability"
)

// Verifier validates signed tokens and decodes them into principals.
type Verifier struct {
	secret  []byte
	now     func() time.Time
	logger  observability.Logger
	metrics *Metrics
}

// VerifierOption configures a Verifier.
type VerifierOption func(*Verifier)

// WithVerifierClock overrides the clock used for expiry checks.
func WithVerifierClock(now func() time.Time) VerifierOption {
	return func(v *Verifier) {
		v.now = now
	}
}

// WithVerifierLogger sets the logger for the verifier.
func WithVerifierLogger(logger observability.Logger) VerifierOption {
	return func(v *Verifier) {
		v.logger = logger
	}
}

// WithVerifierMetrics sets the metrics for the verifier.
func WithVerifierMetrics(metrics *Metrics) VerifierOption {
	return func(v *Verifier) {
		v.metrics = metrics
	}
}

// NewVerifier creates a verifier for tokens signed with secret.
func NewVerifier(secret string, opts ...VerifierOption) (*Verifier, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("%w: need at least %d bytes", ErrSecretTooShort, MinSecretLength)
	}

	v := &Verifier{
		secret: []byte(secret),
		now:    time.Now,
		logger: observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Verify validates an access token and returns its principal. Failures
// unwrap to ErrTokenExpired or ErrTokenInvalid.
func (v *Verifier) Verify(_ context.Context, token string) (*auth.Principal, error) {
	start := time.Now()

	tok, err := v.parse(token, TokenTypeAccess)
	if err != nil {
		v.record(TokenTypeAccess, err, start)
		return nil, err
	}

	principal, err := principalFromToken(tok)
	if err != nil {
		v.record(TokenTypeAccess, err, start)
		return nil, err
	}

	v.record(TokenTypeAccess, nil, start)
	return principal, nil
}

// VerifyRefresh validates a refresh token and returns the subject ID.
func (v *Verifier) VerifyRefresh(_ context.Context, token string) (string, error) {
	start := time.Now()

	tok, err := v.parse(token, TokenTypeRefresh)
	if err != nil {
		v.record(TokenTypeRefresh, err, start)
		return "", err
	}

	v.record(TokenTypeRefresh, nil, start)
	return tok.Subject(), nil
}

// parse checks the signature, expiry, subject and token type.
func (v *Verifier) parse(token string, want TokenType) (tok jwxjwt.Token, err error) {
	if token == "" {
		return nil, invalid("token is empty")
	}

	defer func() {
		if r := recover(); r != nil {
			tok, err = nil, invalid(fmt.Sprintf("malformed token: %v", r))
		}
	}()

	tok, err = jwxjwt.Parse([]byte(token),
		jwxjwt.WithKey(Algorithm, v.secret),
		jwxjwt.WithValidate(false),
	)
	if err != nil {
		return nil, &ValidationError{Message: "signature or structure rejected", Cause: fmt.Errorf("%w: %v", ErrTokenInvalid, err)}
	}

	exp := tok.Expiration()
	if exp.IsZero() {
		return nil, invalid("exp claim is missing")
	}
	if !v.now().Before(exp) {
		return nil, expired()
	}

	if tok.Subject() == "" {
		return nil, invalid("sub claim is missing")
	}

	raw, ok := tok.Get(ClaimType)
	if TokenType(stringClaim(raw, ok)) != want {
		return nil, invalid(fmt.Sprintf("expected %s token", want))
	}

	return tok, nil
}

func principalFromToken(tok jwxjwt.Token) (*auth.Principal, error) {
	rawRole, ok := tok.Get(ClaimRole)
	role, err := auth.ParseRole(stringClaim(rawRole, ok))
	if err != nil {
		return nil, &ValidationError{Message: "role claim rejected", Cause: fmt.Errorf("%w: %v", ErrTokenInvalid, err)}
	}

	rawPerms, ok := tok.Get(ClaimPermissions)
	perms, valid := stringSliceClaim(rawPerms, ok)
	if !valid {
		return nil, invalid("permissions claim must be a list of strings")
	}

	rawEmail, emailOK := tok.Get(ClaimEmail)
	rawUsername, usernameOK := tok.Get(ClaimUsername)

	return &auth.Principal{
		ID:          tok.Subject(),
		Email:       stringClaim(rawEmail, emailOK),
		Username:    stringClaim(rawUsername, usernameOK),
		Role:        role,
		Permissions: auth.NewPermissionSet(perms...),
	}, nil
}

func (v *Verifier) record(typ TokenType, err error, start time.Time) {
	result := resultSuccess
	switch {
	case err == nil:
	case errors.Is(err, ErrTokenExpired):
		result = resultExpired
	default:
		result = resultInvalid
	}

	v.metrics.recordVerification(typ, result, time.Since(start))
	if err != nil {
		v.logger.Debug("token verification failed",
			observability.String("type", string(typ)),
			observability.String("result", result),
			observability.Error(err),
		)
	}
}
