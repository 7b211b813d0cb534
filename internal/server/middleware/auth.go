package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/vibemuse-edge/internal/apierror"
	"github.com/vyrodovalexey/vibemuse-edge/internal/auth"
	"github.com/vyrodovalexey/vibemuse-edge/internal/auth/jwt"
	"github.com/vyrodovalexey/vibemuse-edge/internal/authz"
)

// PrincipalKey is the gin context key holding the authenticated principal.
const PrincipalKey = "principal"

// TokenVerifier decodes a bearer token into a principal.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*auth.Principal, error)
}

// AuthConfig holds configuration for the authentication middleware.
type AuthConfig struct {
	Verifier TokenVerifier
	Logger   *zap.Logger

	// Optional lets requests without a valid token through without a
	// principal instead of failing them.
	Optional bool
}

// Authenticate returns a middleware that requires a valid bearer token.
func Authenticate(verifier TokenVerifier, logger *zap.Logger) gin.HandlerFunc {
	return AuthWithConfig(AuthConfig{Verifier: verifier, Logger: logger})
}

// OptionalAuth returns a middleware that attaches a principal when a valid
// bearer token is present and otherwise continues anonymously.
func OptionalAuth(verifier TokenVerifier, logger *zap.Logger) gin.HandlerFunc {
	return AuthWithConfig(AuthConfig{Verifier: verifier, Logger: logger, Optional: true})
}

// AuthWithConfig returns an authentication middleware with custom configuration.
func AuthWithConfig(config AuthConfig) gin.HandlerFunc {
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	return func(c *gin.Context) {
		token, ok := jwt.ExtractBearer(c.GetHeader("Authorization"))
		if !ok {
			if config.Optional {
				c.Next()
				return
			}
			Fail(c, apierror.AuthenticationRequired())
			return
		}

		principal, err := config.Verifier.Verify(c.Request.Context(), token)
		if err != nil {
			config.Logger.Debug("token verification failed",
				zap.String("tokenFP", auth.Fingerprint(token)),
				zap.String("path", c.Request.URL.Path),
				zap.Error(err),
			)
			if config.Optional {
				c.Next()
				return
			}
			// the classifier chain maps token errors to their codes
			Fail(c, err)
			return
		}

		setPrincipal(c, principal)
		c.Next()
	}
}

// GetPrincipal returns the principal set by the auth middleware.
func GetPrincipal(c *gin.Context) (*auth.Principal, bool) {
	v, exists := c.Get(PrincipalKey)
	if !exists {
		return nil, false
	}
	p, ok := v.(*auth.Principal)
	return p, ok && p != nil
}

func setPrincipal(c *gin.Context, p *auth.Principal) {
	c.Set(PrincipalKey, p)
	c.Request = c.Request.WithContext(auth.ContextWithPrincipal(c.Request.Context(), p))
}

func principalOrNil(c *gin.Context) *auth.Principal {
	p, _ := GetPrincipal(c)
	return p
}

func guard(check func(c *gin.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := check(c); err != nil {
			Fail(c, err)
			return
		}
		c.Next()
	}
}

// RequireAuth rejects requests without an authenticated principal.
func RequireAuth() gin.HandlerFunc {
	return guard(func(c *gin.Context) error {
		return authz.CheckAuthenticated(principalOrNil(c))
	})
}

// RequireRole rejects principals whose role is not one of roles.
func RequireRole(roles ...auth.Role) gin.HandlerFunc {
	return guard(func(c *gin.Context) error {
		return authz.CheckRole(principalOrNil(c), roles...)
	})
}

// RequirePermission rejects principals holding none of perms.
func RequirePermission(perms ...string) gin.HandlerFunc {
	return guard(func(c *gin.Context) error {
		return authz.CheckPermission(principalOrNil(c), perms...)
	})
}

// RequireAdmin admits admins only.
func RequireAdmin() gin.HandlerFunc {
	return RequireRole(auth.RoleAdmin)
}

// RequireModerator admits moderators and admins.
func RequireModerator() gin.HandlerFunc {
	return RequireRole(authz.ModeratorRoles...)
}

// RequireSelfOrAdmin admits the owner of the resource named by the first
// non-empty path parameter in params, or an admin. params defaults to
// "id" then "userId".
func RequireSelfOrAdmin(params ...string) gin.HandlerFunc {
	if len(params) == 0 {
		params = []string{"id", "userId"}
	}

	return guard(func(c *gin.Context) error {
		var target string
		for _, name := range params {
			if target = c.Param(name); target != "" {
				break
			}
		}
		return authz.CheckSelfOrAdmin(principalOrNil(c), target)
	})
}
