package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func envMap(m map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()

	assert.Equal(t, EnvDevelopment, cfg.Environment)
	assert.Equal(t, 100, cfg.RateLimit.Global.MaxRequests)
	assert.Equal(t, 15*time.Minute, cfg.RateLimit.Global.Window.Duration())
	assert.Equal(t, 30*time.Second, cfg.WebSocket.HeartbeatInterval.Duration())
	assert.Equal(t, 1000, cfg.WebSocket.MaxConnections)
	assert.Equal(t, "0.0.0.0:3001", cfg.Server.Address())
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsProduction())
}

func TestLoader_EnvOverrides(t *testing.T) {
	t.Parallel()

	loader := NewLoaderWithLookup(envMap(map[string]string{
		"APP_ENV":                 "production",
		"PORT":                    "8080",
		"JWT_SECRET":              testSecret,
		"CORS_ORIGINS":            "https://a.example, https://b.example",
		"RATE_LIMIT_WINDOW_MS":    "60000",
		"RATE_LIMIT_MAX_REQUESTS": "10",
		"WS_HEARTBEAT_INTERVAL":   "5s",
		"WS_MAX_CONNECTIONS":      "2",
		"WS_STRICT_AUTH":          "true",
		"REDIS_URL":               "redis://localhost:6379/0",
	}))

	cfg, err := loader.Load("")
	require.NoError(t, err)

	assert.Equal(t, EnvProduction, cfg.Environment)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, testSecret, cfg.Auth.JWTSecret)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowOrigins)
	assert.Equal(t, time.Minute, cfg.RateLimit.Global.Window.Duration())
	assert.Equal(t, 10, cfg.RateLimit.Global.MaxRequests)
	assert.Equal(t, 5*time.Second, cfg.WebSocket.HeartbeatInterval.Duration())
	assert.Equal(t, 2, cfg.WebSocket.MaxConnections)
	assert.True(t, cfg.WebSocket.StrictAuth)
	assert.Equal(t, StoreRedis, cfg.RateLimit.Store)
	assert.NoError(t, cfg.Validate())
}

func TestLoader_InvalidEnv(t *testing.T) {
	t.Parallel()

	loader := NewLoaderWithLookup(envMap(map[string]string{
		"PORT":                  "eighty",
		"WS_HEARTBEAT_INTERVAL": "soon",
	}))

	_, err := loader.Load("")
	require.Error(t, err)

	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Len(t, verrs, 2)
}

func TestLoader_YAMLWithSubstitution(t *testing.T) {
	t.Parallel()

	content := `
environment: test
server:
  port: ${EDGE_PORT:-4000}
  shutdownTimeout: 10s
auth:
  jwtSecret: ${EDGE_SECRET}
rateLimit:
  user:
    enabled: true
    maxRequests: 3
    window: 1s
websocket:
  heartbeatInterval: 250ms
  maxConnections: 5
logging:
  format: console
  level: debug
cors:
  allowOrigins: ["https://cost$$.example"]
`
	loader := NewLoaderWithLookup(envMap(map[string]string{"EDGE_SECRET": testSecret}))
	cfg, err := loader.LoadFromReader(strings.NewReader(content))
	require.NoError(t, err)

	assert.Equal(t, EnvTest, cfg.Environment)
	assert.Equal(t, 4000, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout.Duration())
	assert.Equal(t, testSecret, cfg.Auth.JWTSecret)
	assert.Equal(t, 3, cfg.RateLimit.User.MaxRequests)
	assert.Equal(t, time.Second, cfg.RateLimit.User.Window.Duration())
	assert.Equal(t, 250*time.Millisecond, cfg.WebSocket.HeartbeatInterval.Duration())
	assert.Equal(t, []string{"https://cost$.example"}, cfg.CORS.AllowOrigins)
	// untouched sections keep their defaults
	assert.Equal(t, 100, cfg.RateLimit.Global.MaxRequests)
	assert.NoError(t, cfg.Validate())
}

func TestLoader_File(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "edge.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9000\n"), 0o600))

	cfg, err := NewLoaderWithLookup(envMap(nil)).Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Server.Port)

	_, err = NewLoaderWithLookup(envMap(nil)).Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		mutate   func(c *Config)
		wantPath string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "missing secret", mutate: func(c *Config) { c.Auth.JWTSecret = "" }, wantPath: "auth.jwtSecret"},
		{name: "short secret", mutate: func(c *Config) { c.Auth.JWTSecret = "short" }, wantPath: "auth.jwtSecret"},
		{name: "bad environment", mutate: func(c *Config) { c.Environment = "staging" }, wantPath: "environment"},
		{name: "bad port", mutate: func(c *Config) { c.Server.Port = 0 }, wantPath: "server.port"},
		{name: "zero window", mutate: func(c *Config) { c.RateLimit.User.Window = 0 }, wantPath: "rateLimit.user.window"},
		{name: "zero max", mutate: func(c *Config) { c.RateLimit.Global.MaxRequests = 0 }, wantPath: "rateLimit.global.maxRequests"},
		{name: "bad scope", mutate: func(c *Config) { c.RateLimit.Global.Scope = "user" }, wantPath: "rateLimit.global.scope"},
		{name: "redis without url", mutate: func(c *Config) { c.RateLimit.Store = StoreRedis }, wantPath: "rateLimit.redis.url"},
		{name: "unknown store", mutate: func(c *Config) { c.RateLimit.Store = "disk" }, wantPath: "rateLimit.store"},
		{name: "zero heartbeat", mutate: func(c *Config) { c.WebSocket.HeartbeatInterval = 0 }, wantPath: "websocket.heartbeatInterval"},
		{name: "zero connections", mutate: func(c *Config) { c.WebSocket.MaxConnections = 0 }, wantPath: "websocket.maxConnections"},
		{name: "bad log format", mutate: func(c *Config) { c.Logging.Format = "xml" }, wantPath: "logging.format"},
		{name: "bad sampling", mutate: func(c *Config) { c.Tracing.SamplingRate = 2 }, wantPath: "tracing.samplingRate"},
		{name: "vault without address", mutate: func(c *Config) { c.Auth.Vault.Enabled = true }, wantPath: "auth.vault.address"},
		{name: "disabled window skipped", mutate: func(c *Config) {
			c.RateLimit.User.Enabled = false
			c.RateLimit.User.Window = 0
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := DefaultConfig()
			cfg.Auth.JWTSecret = testSecret
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantPath == "" {
				assert.NoError(t, err)
				return
			}

			var verrs ValidationErrors
			require.ErrorAs(t, err, &verrs)
			assert.Contains(t, err.Error(), tt.wantPath)
		})
	}
}

func TestValidationErrors_Error(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "no validation errors", ValidationErrors{}.Error())
	assert.Equal(t, "a: b", ValidationErrors{{Path: "a", Message: "b"}}.Error())
	multi := ValidationErrors{{Path: "a", Message: "b"}, {Message: "c"}}.Error()
	assert.Contains(t, multi, "2 validation errors")
	assert.Contains(t, multi, "2. c")
}

func TestDuration_Marshaling(t *testing.T) {
	t.Parallel()

	var holder struct {
		D Duration `yaml:"d" json:"d"`
	}

	require.NoError(t, yaml.Unmarshal([]byte(`d: 1m30s`), &holder))
	assert.Equal(t, 90*time.Second, holder.D.Duration())

	require.NoError(t, json.Unmarshal([]byte(`{"d":"250ms"}`), &holder))
	assert.Equal(t, 250*time.Millisecond, holder.D.Duration())

	require.NoError(t, json.Unmarshal([]byte(`{"d":null}`), &holder))
	assert.Zero(t, holder.D)

	assert.Error(t, json.Unmarshal([]byte(`{"d":"later"}`), &holder))

	out, err := json.Marshal(Duration(2 * time.Second))
	require.NoError(t, err)
	assert.Equal(t, `"2s"`, string(out))
}

func TestParseMillisOrDuration(t *testing.T) {
	t.Parallel()

	d, err := parseMillisOrDuration("30000")
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, d)

	d, err = parseMillisOrDuration("15m")
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, d)

	_, err = parseMillisOrDuration("fortnight")
	assert.Error(t, err)
}
