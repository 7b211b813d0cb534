package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/klauspost/compress/gzip"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/vyrodovalexey/vibemuse-edge/internal/apierror"
	"github.com/vyrodovalexey/vibemuse-edge/internal/auth"
	"github.com/vyrodovalexey/vibemuse-edge/internal/auth/jwt"
	"github.com/vyrodovalexey/vibemuse-edge/internal/observability"
	"github.com/vyrodovalexey/vibemuse-edge/internal/ratelimit"
	"github.com/vyrodovalexey/vibemuse-edge/internal/ratelimit/store"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func init() {
	gin.SetMode(gin.TestMode)
}

// newEngine builds an engine with the error handler and recovery in front
// of mws.
func newEngine(development bool, mws ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(ErrorHandler(zap.NewNop(), development), Recovery(zap.NewNop()))
	r.Use(mws...)
	r.NoRoute(NoRoute())
	return r
}

func perform(r http.Handler, method, path string, body io.Reader, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) apierror.Envelope {
	t.Helper()
	var env apierror.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func TestErrorHandler_Classification(t *testing.T) {
	t.Parallel()

	type payload struct {
		Name  string `json:"name" binding:"required"`
		Email string `json:"email" binding:"required,email"`
	}

	tests := []struct {
		name       string
		handler    gin.HandlerFunc
		body       string
		wantStatus int
		wantCode   string
		wantMsg    string
	}{
		{
			name:       "typed error passes through",
			handler:    func(c *gin.Context) { Fail(c, apierror.Conflict("Room name taken")) },
			wantStatus: http.StatusConflict,
			wantCode:   apierror.CodeConflict,
			wantMsg:    "Room name taken",
		},
		{
			name: "binding validation",
			handler: func(c *gin.Context) {
				var p payload
				if err := c.ShouldBindJSON(&p); err != nil {
					Fail(c, err)
				}
			},
			body:       `{"email":"nope"}`,
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   apierror.CodeUnprocessableEntity,
			wantMsg:    "Validation failed",
		},
		{
			name: "malformed json",
			handler: func(c *gin.Context) {
				var p payload
				if err := c.ShouldBindJSON(&p); err != nil {
					Fail(c, err)
				}
			},
			body:       `{"name":`,
			wantStatus: http.StatusBadRequest,
			wantCode:   apierror.CodeBadRequest,
			wantMsg:    "Malformed JSON body",
		},
		{
			name: "unique violation",
			handler: func(c *gin.Context) {
				Fail(c, &pgconn.PgError{Code: "23505", Message: "duplicate key"})
			},
			wantStatus: http.StatusConflict,
			wantCode:   apierror.CodeConflict,
			wantMsg:    "Resource already exists",
		},
		{
			name: "foreign key violation",
			handler: func(c *gin.Context) {
				Fail(c, &pgconn.PgError{Code: "23503"})
			},
			wantStatus: http.StatusBadRequest,
			wantCode:   apierror.CodeBadRequest,
			wantMsg:    "Invalid reference",
		},
		{
			name: "unknown storage code",
			handler: func(c *gin.Context) {
				Fail(c, &pgconn.PgError{Code: "42P01", Message: "relation missing"})
			},
			wantStatus: http.StatusInternalServerError,
			wantCode:   apierror.CodeInternalServerError,
			wantMsg:    apierror.GenericInternalMessage,
		},
		{
			name:       "untyped error is redacted",
			handler:    func(c *gin.Context) { Fail(c, errors.New("db password is hunter2")) },
			wantStatus: http.StatusInternalServerError,
			wantCode:   apierror.CodeInternalServerError,
			wantMsg:    apierror.GenericInternalMessage,
		},
		{
			name:       "panic",
			handler:    func(*gin.Context) { panic("boom") },
			wantStatus: http.StatusInternalServerError,
			wantCode:   apierror.CodeInternalServerError,
			wantMsg:    apierror.GenericInternalMessage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r := newEngine(false)
			r.POST("/rooms", tt.handler)

			w := perform(r, http.MethodPost, "/rooms", strings.NewReader(tt.body),
				map[string]string{"Content-Type": "application/json"})

			assert.Equal(t, tt.wantStatus, w.Code)
			env := decodeEnvelope(t, w)
			assert.Equal(t, tt.wantCode, env.Error.Code)
			assert.Equal(t, tt.wantStatus, env.Error.StatusCode)
			assert.Equal(t, tt.wantMsg, env.Error.Message)
			assert.Equal(t, "/rooms", env.Path)
			assert.Equal(t, http.MethodPost, env.Method)
			assert.Empty(t, env.Error.Stack)
			_, err := time.Parse(time.RFC3339Nano, env.Timestamp)
			assert.NoError(t, err)
		})
	}
}

func TestErrorHandler_ValidationDetails(t *testing.T) {
	t.Parallel()

	r := newEngine(false)
	r.POST("/rooms", func(c *gin.Context) {
		Fail(c, &apierror.ValidationError{Fields: []apierror.FieldError{
			{Field: "name", Message: "name is required"},
		}})
	})

	w := perform(r, http.MethodPost, "/rooms", nil, nil)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.JSONEq(t, `[{"field":"name","message":"name is required"}]`,
		string(mustMarshal(t, decodeEnvelope(t, w).Error.Details)))
}

func TestErrorHandler_DevelopmentExposesInternals(t *testing.T) {
	t.Parallel()

	r := newEngine(true)
	r.GET("/boom", func(c *gin.Context) { Fail(c, errors.New("db password is hunter2")) })

	w := perform(r, http.MethodGet, "/boom", nil, nil)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	env := decodeEnvelope(t, w)
	assert.Equal(t, "db password is hunter2", env.Error.Message)
	assert.NotEmpty(t, env.Error.Stack)
}

func TestErrorHandler_LogsAndCounts(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	metrics := observability.NewMetrics("test")

	r := gin.New()
	r.Use(ErrorHandlerWithConfig(ErrorHandlerConfig{
		Logger:  zap.New(core),
		Metrics: metrics,
	}))
	r.GET("/forbidden", func(c *gin.Context) { Fail(c, apierror.Forbidden("")) })
	r.GET("/broken", func(c *gin.Context) { Fail(c, errors.New("kaput")) })

	perform(r, http.MethodGet, "/forbidden", nil, nil)
	perform(r, http.MethodGet, "/broken", nil, nil)

	entries := logs.FilterMessage("request failed").All()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Equal(t, "anonymous", entries[0].ContextMap()["userID"])
	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
	assert.Contains(t, entries[1].ContextMap(), "error")

	count, err := testutil.GatherAndCount(metrics.Registry(), "test_http_errors_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestErrorHandler_ResponseAlreadyWritten(t *testing.T) {
	t.Parallel()

	r := newEngine(false)
	r.GET("/partial", func(c *gin.Context) {
		c.String(http.StatusAccepted, "accepted")
		_ = c.Error(errors.New("late failure"))
	})

	w := perform(r, http.MethodGet, "/partial", nil, nil)
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "accepted", w.Body.String())
}

func TestNoRoute(t *testing.T) {
	t.Parallel()

	r := newEngine(false)
	w := perform(r, http.MethodDelete, "/api/v1/nope", nil, nil)

	require.Equal(t, http.StatusNotFound, w.Code)
	env := decodeEnvelope(t, w)
	assert.Equal(t, apierror.CodeNotFound, env.Error.Code)
	assert.Equal(t, "Route DELETE /api/v1/nope not found", env.Error.Message)
}

func mustMarshal(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

type tokens struct {
	user, admin, moderator, expired string
}

func issueTokens(t *testing.T) (*jwt.Verifier, tokens) {
	t.Helper()

	issuer, err := jwt.NewIssuer(testSecret)
	require.NoError(t, err)
	verifier, err := jwt.NewVerifier(testSecret)
	require.NoError(t, err)

	issue := func(iss *jwt.Issuer, p *auth.Principal) string {
		pair, err := iss.Issue(context.Background(), p)
		require.NoError(t, err)
		return pair.AccessToken
	}

	old, err := jwt.NewIssuer(testSecret, jwt.WithIssuerClock(func() time.Time {
		return time.Now().Add(-48 * time.Hour)
	}))
	require.NoError(t, err)

	return verifier, tokens{
		user: issue(issuer, &auth.Principal{
			ID: "u1", Email: "u1@example.com", Username: "u1",
			Role: auth.RoleUser, Permissions: auth.NewPermissionSet("rooms:read"),
		}),
		admin:     issue(issuer, &auth.Principal{ID: "a1", Role: auth.RoleAdmin}),
		moderator: issue(issuer, &auth.Principal{ID: "m1", Role: auth.RoleModerator}),
		expired:   issue(old, &auth.Principal{ID: "u1", Role: auth.RoleUser}),
	}
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func TestAuthGuards(t *testing.T) {
	t.Parallel()

	verifier, tok := issueTokens(t)

	r := newEngine(false)
	ok := func(c *gin.Context) {
		p, _ := GetPrincipal(c)
		c.JSON(http.StatusOK, gin.H{"id": p.ID})
	}
	api := r.Group("/api", Authenticate(verifier, nil))
	api.GET("/me", RequireAuth(), ok)
	api.GET("/admin", RequireAdmin(), ok)
	api.GET("/moderation", RequireModerator(), ok)
	api.GET("/rooms", RequirePermission("rooms:read", "rooms:write"), ok)
	api.GET("/rooms/manage", RequirePermission("rooms:write"), ok)
	api.GET("/users/:id", RequireSelfOrAdmin(), ok)
	api.GET("/players/:userId", RequireSelfOrAdmin(), ok)

	tests := []struct {
		name       string
		path       string
		headers    map[string]string
		wantStatus int
		wantCode   string
	}{
		{name: "missing header", path: "/api/me", wantStatus: 401, wantCode: apierror.CodeAuthenticationRequired},
		{name: "wrong scheme", path: "/api/me", headers: map[string]string{"Authorization": "Basic abc"}, wantStatus: 401, wantCode: apierror.CodeAuthenticationRequired},
		{name: "empty bearer", path: "/api/me", headers: map[string]string{"Authorization": "Bearer "}, wantStatus: 401, wantCode: apierror.CodeAuthenticationRequired},
		{name: "garbage token", path: "/api/me", headers: bearer("not.a.jwt"), wantStatus: 401, wantCode: apierror.CodeInvalidToken},
		{name: "expired token", path: "/api/me", headers: bearer(tok.expired), wantStatus: 401, wantCode: apierror.CodeTokenExpired},
		{name: "valid token", path: "/api/me", headers: bearer(tok.user), wantStatus: 200},
		{name: "admin route as user", path: "/api/admin", headers: bearer(tok.user), wantStatus: 403, wantCode: apierror.CodeInsufficientPermission},
		{name: "admin route as admin", path: "/api/admin", headers: bearer(tok.admin), wantStatus: 200},
		{name: "moderation as moderator", path: "/api/moderation", headers: bearer(tok.moderator), wantStatus: 200},
		{name: "moderation as admin", path: "/api/moderation", headers: bearer(tok.admin), wantStatus: 200},
		{name: "moderation as user", path: "/api/moderation", headers: bearer(tok.user), wantStatus: 403, wantCode: apierror.CodeInsufficientPermission},
		{name: "any permission", path: "/api/rooms", headers: bearer(tok.user), wantStatus: 200},
		{name: "missing permission", path: "/api/rooms/manage", headers: bearer(tok.user), wantStatus: 403, wantCode: apierror.CodeInsufficientPermission},
		{name: "self", path: "/api/users/u1", headers: bearer(tok.user), wantStatus: 200},
		{name: "someone else", path: "/api/users/u2", headers: bearer(tok.user), wantStatus: 403, wantCode: apierror.CodeForbidden},
		{name: "admin on someone else", path: "/api/users/u2", headers: bearer(tok.admin), wantStatus: 200},
		{name: "self by userId", path: "/api/players/u1", headers: bearer(tok.user), wantStatus: 200},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			w := perform(r, http.MethodGet, tt.path, nil, tt.headers)
			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, decodeEnvelope(t, w).Error.Code)
			}
		})
	}
}

func TestRequireAdmin_NamesRequiredRole(t *testing.T) {
	t.Parallel()

	verifier, tok := issueTokens(t)
	r := newEngine(false)
	r.GET("/admin", Authenticate(verifier, nil), RequireAdmin(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := perform(r, http.MethodGet, "/admin", nil, bearer(tok.user))
	require.Equal(t, http.StatusForbidden, w.Code)
	env := decodeEnvelope(t, w)
	assert.Equal(t, "Required role: admin", env.Error.Message)
	assert.JSONEq(t, `{"requiredRoles":["admin"],"userRole":"user"}`, string(mustMarshal(t, env.Error.Details)))
}

func TestGuardsWithoutAuthentication(t *testing.T) {
	t.Parallel()

	r := newEngine(false)
	r.GET("/admin", RequireAdmin(), func(c *gin.Context) { c.Status(http.StatusOK) })

	w := perform(r, http.MethodGet, "/admin", nil, nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, apierror.CodeAuthenticationRequired, decodeEnvelope(t, w).Error.Code)
}

func TestOptionalAuth(t *testing.T) {
	t.Parallel()

	verifier, tok := issueTokens(t)
	r := newEngine(false)
	r.GET("/feed", OptionalAuth(verifier, nil), func(c *gin.Context) {
		if p, ok := auth.PrincipalFromContext(c.Request.Context()); ok {
			c.String(http.StatusOK, p.ID)
			return
		}
		c.String(http.StatusOK, "anonymous")
	})

	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{name: "no header", want: "anonymous"},
		{name: "invalid token", headers: bearer("garbage"), want: "anonymous"},
		{name: "expired token", headers: bearer(tok.expired), want: "anonymous"},
		{name: "valid token", headers: bearer(tok.user), want: "u1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			w := perform(r, http.MethodGet, "/feed", nil, tt.headers)
			require.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tt.want, w.Body.String())
		})
	}
}

func newLimiter(t *testing.T, name string, limit int, window time.Duration) *ratelimit.FixedWindowLimiter {
	t.Helper()
	s := store.NewMemoryStore()
	t.Cleanup(func() { _ = s.Close() })
	l, err := ratelimit.NewFixedWindowLimiter(name, s, limit, window)
	require.NoError(t, err)
	return l
}

func TestUserRateLimit(t *testing.T) {
	t.Parallel()

	verifier, tok := issueTokens(t)
	r := newEngine(false)
	r.GET("/api/rooms",
		OptionalAuth(verifier, nil),
		UserRateLimit(newLimiter(t, "user", 3, time.Second), nil),
		func(c *gin.Context) { c.Status(http.StatusOK) },
	)

	for i := 0; i < 3; i++ {
		w := perform(r, http.MethodGet, "/api/rooms", nil, bearer(tok.user))
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "3", w.Header().Get("RateLimit-Limit"))
		assert.Equal(t, strconv.Itoa(2-i), w.Header().Get("RateLimit-Remaining"))
	}

	w := perform(r, http.MethodGet, "/api/rooms", nil, bearer(tok.user))
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	var body RateLimitResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, UserLimitError, body.Error)
	assert.Equal(t, UserLimitMessage, body.Message)
	assert.Greater(t, body.RetryAfter, 0)
	assert.LessOrEqual(t, body.RetryAfter, 1)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))

	// another identity from the same address has its own budget
	w = perform(r, http.MethodGet, "/api/rooms", nil, bearer(tok.admin))
	assert.Equal(t, http.StatusOK, w.Code)
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string) (*ratelimit.Result, error) {
	return nil, errors.New("redis down")
}
func (failingLimiter) Reset(context.Context, string) error { return nil }

func TestRateLimit_FailsOpen(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.ErrorLevel)
	r := newEngine(false, GlobalRateLimit(failingLimiter{}, nil, zap.New(core)))
	r.GET("/api/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := perform(r, http.MethodGet, "/api/x", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, logs.FilterMessage("rate limit check failed").Len())
}

func TestGlobalRateLimit(t *testing.T) {
	t.Parallel()

	r := newEngine(false, GlobalRateLimit(newLimiter(t, "global", 2, time.Minute), nil, nil))
	r.GET("/api/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	// every client shares one bucket
	for _, addr := range []string{"10.0.0.1:1234", "10.0.0.2:1234"} {
		req := httptest.NewRequest(http.MethodGet, "/api/x", nil)
		req.RemoteAddr = addr
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := perform(r, http.MethodGet, "/api/x", nil, nil)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	var body RateLimitResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, GlobalLimitError, body.Error)
	assert.Equal(t, GlobalLimitMessage, body.Message)
}

func TestIdentityKeyFunc(t *testing.T) {
	t.Parallel()

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Request.RemoteAddr = "192.0.2.7:5555"
	assert.Equal(t, "ip:192.0.2.7", IdentityKeyFunc(c))
	assert.Equal(t, "ip:192.0.2.7", ClientIPKeyFunc(c))

	setPrincipal(c, &auth.Principal{ID: "u9"})
	assert.Equal(t, "user:u9", IdentityKeyFunc(c))
	assert.Equal(t, ratelimit.GlobalKey, GlobalKeyFunc(c))
}

func TestBodyLimit(t *testing.T) {
	t.Parallel()

	r := newEngine(false, BodyLimit(16))
	r.POST("/echo", func(c *gin.Context) {
		b, err := io.ReadAll(c.Request.Body)
		if err != nil {
			Fail(c, err)
			return
		}
		c.String(http.StatusOK, string(b))
	})

	w := perform(r, http.MethodPost, "/echo", strings.NewReader(`{"a":1}`), nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = perform(r, http.MethodPost, "/echo", strings.NewReader(strings.Repeat("x", 64)), nil)
	require.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, apierror.CodePayloadTooLarge, decodeEnvelope(t, w).Error.Code)

	// without a declared length the cap applies while reading
	req := httptest.NewRequest(http.MethodPost, "/echo", io.NopCloser(strings.NewReader(strings.Repeat("x", 64))))
	req.ContentLength = -1
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestRequireContentType(t *testing.T) {
	t.Parallel()

	r := newEngine(false, RequireContentType())
	handler := func(c *gin.Context) { c.Status(http.StatusNoContent) }
	r.GET("/x", handler)
	r.POST("/x", handler)
	r.PATCH("/x", handler)

	tests := []struct {
		name        string
		method      string
		contentType string
		want        int
	}{
		{name: "get needs nothing", method: http.MethodGet, want: http.StatusNoContent},
		{name: "json", method: http.MethodPost, contentType: "application/json", want: http.StatusNoContent},
		{name: "json with charset", method: http.MethodPatch, contentType: "application/json; charset=utf-8", want: http.StatusNoContent},
		{name: "form", method: http.MethodPost, contentType: "application/x-www-form-urlencoded", want: http.StatusUnsupportedMediaType},
		{name: "missing", method: http.MethodPost, want: http.StatusUnsupportedMediaType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			headers := map[string]string{}
			if tt.contentType != "" {
				headers["Content-Type"] = tt.contentType
			}
			w := perform(r, tt.method, "/x", strings.NewReader("{}"), headers)
			require.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusUnsupportedMediaType {
				env := decodeEnvelope(t, w)
				assert.Equal(t, apierror.CodeUnsupportedMediaType, env.Error.Code)
				assert.Equal(t, "Expected Content-Type to be one of: application/json", env.Error.Message)
			}
		})
	}
}

func TestSanitize(t *testing.T) {
	t.Parallel()

	r := newEngine(false, Sanitize())
	r.POST("/chat", func(c *gin.Context) {
		var body map[string]any
		if err := c.ShouldBindJSON(&body); err != nil {
			Fail(c, err)
			return
		}
		c.JSON(http.StatusOK, body)
	})

	in := `{"content":"  hi <script>alert(1)</script>there  ","link":"JavaScript:alert(1)",` +
		`"tags":["<img src=x onerror=alert(1)>"," ok "],"count":3,"nested":{"x":" y "}}`
	w := perform(r, http.MethodPost, "/chat", strings.NewReader(in),
		map[string]string{"Content-Type": "application/json"})

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t,
		`{"content":"hi there","link":"alert(1)","tags":["<img src=x alert(1)>","ok"],"count":3,"nested":{"x":"y"}}`,
		w.Body.String())
}

func TestSanitizeString(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"plain":                              "plain",
		"<SCRIPT type=x>evil()</SCRIPT>safe": "safe",
		"a <script>\nmulti\nline</script> b": "a  b",
		"<a onclick = \"x\">":                "<a  \"x\">",
		"  padded  ":                         "padded",
	}
	for in, want := range tests {
		assert.Equal(t, want, SanitizeString(in), in)
	}
}

func TestCORS(t *testing.T) {
	t.Parallel()

	r := newEngine(false, CORSWithConfig(CORSConfig{
		AllowOrigins:     []string{"http://localhost:3000"},
		AllowMethods:     []string{"GET", "POST"},
		AllowHeaders:     []string{"Content-Type", "Authorization"},
		ExposeHeaders:    []string{"X-Total-Count"},
		AllowCredentials: true,
		MaxAge:           600,
	}))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := perform(r, http.MethodOptions, "/x", nil, map[string]string{
		"Origin":                        "http://localhost:3000",
		"Access-Control-Request-Method": "POST",
	})
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
	assert.Equal(t, "GET, POST", w.Header().Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "600", w.Header().Get("Access-Control-Max-Age"))

	w = perform(r, http.MethodGet, "/x", nil, map[string]string{"Origin": "http://localhost:3000"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "X-Total-Count", w.Header().Get("Access-Control-Expose-Headers"))

	w = perform(r, http.MethodGet, "/x", nil, map[string]string{"Origin": "http://evil.example"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestSecurityHeaders(t *testing.T) {
	t.Parallel()

	r := newEngine(false, SecurityHeaders())
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, path := range []string{"/x", "/missing"} {
		w := perform(r, http.MethodGet, path, nil, nil)
		assert.Equal(t, "max-age=31536000; includeSubDomains; preload", w.Header().Get("Strict-Transport-Security"))
		assert.Equal(t, DefaultContentSecurityPolicy, w.Header().Get("Content-Security-Policy"))
		assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
		assert.Equal(t, "SAMEORIGIN", w.Header().Get("X-Frame-Options"))
	}
}

func TestCompression(t *testing.T) {
	t.Parallel()

	payload := strings.Repeat("vibemuse ", 200)
	r := newEngine(false, Compression())
	r.GET("/big", func(c *gin.Context) { c.String(http.StatusOK, payload) })
	r.GET("/fail", func(c *gin.Context) { Fail(c, apierror.NotFound("gone")) })

	w := perform(r, http.MethodGet, "/big", nil, map[string]string{"Accept-Encoding": "gzip, deflate"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "gzip", w.Header().Get("Content-Encoding"))
	zr, err := gzip.NewReader(w.Body)
	require.NoError(t, err)
	plain, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Equal(t, payload, string(plain))

	w = perform(r, http.MethodGet, "/big", nil, nil)
	assert.Empty(t, w.Header().Get("Content-Encoding"))
	assert.Equal(t, payload, w.Body.String())

	// errors rendered after the chain unwinds stay readable
	w = perform(r, http.MethodGet, "/fail", nil, map[string]string{"Accept-Encoding": "gzip"})
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Empty(t, w.Header().Get("Content-Encoding"))
	assert.Equal(t, "gone", decodeEnvelope(t, w).Error.Message)
}

func TestAcceptsGzip(t *testing.T) {
	t.Parallel()

	tests := map[string]bool{
		"":                   false,
		"gzip":               true,
		"deflate, gzip;q=.5": true,
		"GZIP":               true,
		"gzip;q=0":           false,
		"br":                 false,
	}
	for header, want := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Accept-Encoding", header)
		assert.Equal(t, want, acceptsGzip(req), header)
	}
}

func TestLogging_RequestID(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.InfoLevel)
	r := gin.New()
	r.Use(Logging(zap.New(core)))
	r.GET("/x", func(c *gin.Context) {
		c.String(http.StatusOK, observability.RequestIDFromContext(c.Request.Context()))
	})

	w := perform(r, http.MethodGet, "/x", nil, map[string]string{RequestIDHeader: "req-123"})
	assert.Equal(t, "req-123", w.Header().Get(RequestIDHeader))
	assert.Equal(t, "req-123", w.Body.String())

	w = perform(r, http.MethodGet, "/x", nil, nil)
	generated := w.Header().Get(RequestIDHeader)
	assert.Len(t, generated, 36)

	entries := logs.FilterMessage("request completed").All()
	require.Len(t, entries, 2)
	assert.Equal(t, "req-123", entries[0].ContextMap()["requestID"])
	assert.Equal(t, "/x", entries[0].ContextMap()["route"])
}

func TestMetricsMiddleware(t *testing.T) {
	t.Parallel()

	metrics := observability.NewMetrics("test")
	r := gin.New()
	r.Use(Metrics(metrics))
	r.GET("/rooms/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	perform(r, http.MethodGet, "/rooms/1", nil, nil)
	perform(r, http.MethodGet, "/rooms/2", nil, nil)
	perform(r, http.MethodGet, "/nowhere", nil, nil)

	body := scrape(t, metrics)
	assert.Contains(t, body, `test_http_requests_total{method="GET",route="/rooms/:id",status="200"} 2`)
	assert.Contains(t, body, `route="unmatched"`)
}

func scrape(t *testing.T, metrics *observability.Metrics) string {
	t.Helper()
	w := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	return w.Body.String()
}

func TestTracing(t *testing.T) {
	t.Parallel()

	exporter := tracetest.NewInMemoryExporter()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	r := gin.New()
	r.Use(Tracing(provider, "test"), ErrorHandler(nil, false))
	r.GET("/rooms/:id", func(c *gin.Context) {
		assert.NotNil(t, GetSpan(c))
		assert.NotEmpty(t, observability.TraceIDFromContext(c.Request.Context()))
		Fail(c, errors.New("broken"))
	})

	perform(r, http.MethodGet, "/rooms/7", nil, nil)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "GET /rooms/:id", spans[0].Name)
	assert.NotEmpty(t, spans[0].Events)
}

func TestRecovery_NonErrorPanicValue(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.ErrorLevel)
	r := gin.New()
	r.Use(ErrorHandler(nil, true), Recovery(zap.New(core)))
	r.GET("/x", func(*gin.Context) { panic(42) })

	w := perform(r, http.MethodGet, "/x", nil, nil)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "panic: 42", decodeEnvelope(t, w).Error.Message)
	assert.Equal(t, 1, logs.FilterMessage("panic recovered").Len())
}

func TestSanitize_LeavesInvalidJSON(t *testing.T) {
	t.Parallel()

	r := gin.New()
	r.Use(Sanitize())
	r.POST("/x", func(c *gin.Context) {
		b, _ := io.ReadAll(c.Request.Body)
		c.Data(http.StatusOK, "text/plain", b)
	})

	w := perform(r, http.MethodPost, "/x", bytes.NewBufferString(`{"broken": <script>`),
		map[string]string{"Content-Type": "application/json"})
	assert.Equal(t, `{"broken": <script>`, w.Body.String())
}
