package jwt

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	jwxjwt "github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/vyrodovalexey/vibemuse-edge/internal/auth"
)

// Issuer creates signed access and refresh tokens.
type Issuer struct {
	secret  []byte
	now     func() time.Time
	metrics *Metrics
}

// IssuerOption configures an Issuer.
type IssuerOption func(*Issuer)

// WithIssuerClock overrides the clock used for iat and exp.
func WithIssuerClock(now func() time.Time) IssuerOption {
	return func(i *Issuer) {
		i.now = now
	}
}

// WithIssuerMetrics sets the metrics for the issuer.
func WithIssuerMetrics(metrics *Metrics) IssuerOption {
	return func(i *Issuer) {
		i.metrics = metrics
	}
}

// NewIssuer creates an issuer signing with secret.
func NewIssuer(secret string, opts ...IssuerOption) (*Issuer, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("%w: need at least %d bytes", ErrSecretTooShort, MinSecretLength)
	}

	i := &Issuer{
		secret: []byte(secret),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// Issue creates an access token carrying the full principal and a refresh
// token carrying only its ID.
func (i *Issuer) Issue(_ context.Context, p *auth.Principal) (*TokenPair, error) {
	if p == nil || p.ID == "" {
		return nil, &SigningError{Message: "principal id is required"}
	}

	now := i.now()
	role := p.Role
	if role == "" {
		role = auth.DefaultRole
	}
	perms := p.Permissions.List()

	access, accessExp, err := i.sign(now, AccessTokenTTL, jwxjwt.NewBuilder().
		Subject(p.ID).
		Claim(ClaimType, string(TokenTypeAccess)).
		Claim(ClaimEmail, p.Email).
		Claim(ClaimUsername, p.Username).
		Claim(ClaimRole, string(role)).
		Claim(ClaimPermissions, perms))
	if err != nil {
		return nil, err
	}
	i.metrics.recordIssued(TokenTypeAccess)

	refresh, refreshExp, err := i.sign(now, RefreshTokenTTL, jwxjwt.NewBuilder().
		Subject(p.ID).
		Claim(ClaimType, string(TokenTypeRefresh)))
	if err != nil {
		return nil, err
	}
	i.metrics.recordIssued(TokenTypeRefresh)

	return &TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func (i *Issuer) sign(now time.Time, ttl time.Duration, b *jwxjwt.Builder) (string, time.Time, error) {
	exp := now.Add(ttl)
	tok, err := b.
		JwtID(uuid.NewString()).
		IssuedAt(now).
		Expiration(exp).
		Build()
	if err != nil {
		return "", time.Time{}, &SigningError{Message: "failed to build token", Cause: err}
	}

	signed, err := jwxjwt.Sign(tok, jwxjwt.WithKey(Algorithm, i.secret))
	if err != nil {
		return "", time.Time{}, &SigningError{Message: "failed to sign token", Cause: err}
	}
	return string(signed), exp, nil
}
