package config

import (
	"net"
	"strconv"
	"time"
)

// Deployment environments.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTest        = "test"
)

// MinJWTSecretLength is the minimum accepted signing secret length in bytes.
const MinJWTSecretLength = 32

// Rate limit store backends.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// Global limiter scopes.
const (
	ScopeGlobal = "global"
	ScopeIP     = "ip"
)

// Config is the root configuration of the edge server.
type Config struct {
	Environment string          `yaml:"environment" json:"environment"`
	Version     string          `yaml:"version,omitempty" json:"version,omitempty"`
	Server      ServerConfig    `yaml:"server" json:"server"`
	Auth        AuthConfig      `yaml:"auth" json:"auth"`
	RateLimit   RateLimitConfig `yaml:"rateLimit" json:"rateLimit"`
	WebSocket   WebSocketConfig `yaml:"websocket" json:"websocket"`
	CORS        CORSConfig      `yaml:"cors" json:"cors"`
	Logging     LoggingConfig   `yaml:"logging" json:"logging"`
	Tracing     TracingConfig   `yaml:"tracing" json:"tracing"`
}

// ServerConfig configures the HTTP listener and request limits.
type ServerConfig struct {
	Host            string   `yaml:"host" json:"host"`
	Port            int      `yaml:"port" json:"port"`
	ReadTimeout     Duration `yaml:"readTimeout" json:"readTimeout"`
	WriteTimeout    Duration `yaml:"writeTimeout" json:"writeTimeout"`
	IdleTimeout     Duration `yaml:"idleTimeout" json:"idleTimeout"`
	ShutdownTimeout Duration `yaml:"shutdownTimeout" json:"shutdownTimeout"`
	MaxBodyBytes    int64    `yaml:"maxBodyBytes" json:"maxBodyBytes"`
	TrustedProxies  []string `yaml:"trustedProxies,omitempty" json:"trustedProxies,omitempty"`
	Compression     bool     `yaml:"compression" json:"compression"`
}

// AuthConfig configures token signing and verification.
type AuthConfig struct {
	// JWTSecret is the shared HS256 secret for issuing and verifying tokens.
	JWTSecret string      `yaml:"jwtSecret" json:"-"`
	Vault     VaultConfig `yaml:"vault" json:"vault"`
}

// VaultConfig points at a KV v2 secret holding the JWT secret.
type VaultConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Address string `yaml:"address" json:"address"`
	Token   string `yaml:"token" json:"-"`
	Mount   string `yaml:"mount" json:"mount"`
	Path    string `yaml:"path" json:"path"`
	Key     string `yaml:"key" json:"key"`
}

// RateLimitConfig configures the global and per-identity limiters.
type RateLimitConfig struct {
	Global  WindowConfig  `yaml:"global" json:"global"`
	User    WindowConfig  `yaml:"user" json:"user"`
	Store   string        `yaml:"store" json:"store"`
	Redis   RedisConfig   `yaml:"redis" json:"redis"`
	Breaker BreakerConfig `yaml:"breaker" json:"breaker"`
}

// WindowConfig configures one fixed-window limiter.
type WindowConfig struct {
	Enabled     bool     `yaml:"enabled" json:"enabled"`
	MaxRequests int      `yaml:"maxRequests" json:"maxRequests"`
	Window      Duration `yaml:"window" json:"window"`
	// Scope applies to the global limiter only: "global" shares one bucket
	// across all clients, "ip" keys by client address.
	Scope string `yaml:"scope,omitempty" json:"scope,omitempty"`
}

// RedisConfig configures the distributed rate-limit store.
type RedisConfig struct {
	URL       string `yaml:"url" json:"-"`
	KeyPrefix string `yaml:"keyPrefix" json:"keyPrefix"`
}

// BreakerConfig configures failover from Redis to the in-memory store.
type BreakerConfig struct {
	MaxFailures uint32   `yaml:"maxFailures" json:"maxFailures"`
	Timeout     Duration `yaml:"timeout" json:"timeout"`
}

// WebSocketConfig configures the realtime connection manager.
type WebSocketConfig struct {
	Path              string   `yaml:"path" json:"path"`
	HeartbeatInterval Duration `yaml:"heartbeatInterval" json:"heartbeatInterval"`
	MaxConnections    int      `yaml:"maxConnections" json:"maxConnections"`
	MaxMessageBytes   int64    `yaml:"maxMessageBytes" json:"maxMessageBytes"`
	MessagesPerSecond float64  `yaml:"messagesPerSecond" json:"messagesPerSecond"`
	MessageBurst      int      `yaml:"messageBurst" json:"messageBurst"`
	// StrictAuth verifies in-band authentication tokens instead of
	// accepting any non-empty token.
	StrictAuth bool `yaml:"strictAuth" json:"strictAuth"`
}

// CORSConfig configures cross-origin access.
type CORSConfig struct {
	AllowOrigins     []string `yaml:"allowOrigins" json:"allowOrigins"`
	AllowMethods     []string `yaml:"allowMethods" json:"allowMethods"`
	AllowHeaders     []string `yaml:"allowHeaders" json:"allowHeaders"`
	ExposeHeaders    []string `yaml:"exposeHeaders" json:"exposeHeaders"`
	AllowCredentials bool     `yaml:"allowCredentials" json:"allowCredentials"`
	MaxAge           int      `yaml:"maxAge" json:"maxAge"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// TracingConfig configures OpenTelemetry export.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	OTLPEndpoint string  `yaml:"otlpEndpoint" json:"otlpEndpoint"`
	SamplingRate float64 `yaml:"samplingRate" json:"samplingRate"`
	ServiceName  string  `yaml:"serviceName" json:"serviceName"`
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() *Config {
	return &Config{
		Environment: EnvDevelopment,
		Version:     "dev",
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            3001,
			ReadTimeout:     Duration(30 * time.Second),
			WriteTimeout:    Duration(30 * time.Second),
			IdleTimeout:     Duration(120 * time.Second),
			ShutdownTimeout: Duration(30 * time.Second),
			MaxBodyBytes:    1 << 20,
			Compression:     true,
		},
		Auth: AuthConfig{
			Vault: VaultConfig{Mount: "secret", Path: "vibemuse/edge", Key: "jwt_secret"},
		},
		RateLimit: RateLimitConfig{
			Global: WindowConfig{
				Enabled:     true,
				MaxRequests: 100,
				Window:      Duration(15 * time.Minute),
				Scope:       ScopeGlobal,
			},
			User: WindowConfig{
				Enabled:     true,
				MaxRequests: 100,
				Window:      Duration(15 * time.Minute),
			},
			Store: StoreMemory,
			Redis: RedisConfig{KeyPrefix: "vibemuse:ratelimit:"},
			Breaker: BreakerConfig{
				MaxFailures: 5,
				Timeout:     Duration(30 * time.Second),
			},
		},
		WebSocket: WebSocketConfig{
			Path:              "/ws",
			HeartbeatInterval: Duration(30 * time.Second),
			MaxConnections:    1000,
			MaxMessageBytes:   1 << 20,
			MessagesPerSecond: 20,
			MessageBurst:      40,
		},
		CORS: CORSConfig{
			AllowOrigins:     []string{"http://localhost:3000"},
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "X-Requested-With", "Content-Type", "Accept", "Authorization", "Cache-Control", "X-Request-ID"},
			ExposeHeaders:    []string{"X-Total-Count", "X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           86400,
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
		Tracing: TracingConfig{SamplingRate: 1.0, ServiceName: "vibemuse-edge"},
	}
}

// Address returns the listen address in host:port form.
func (s ServerConfig) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// IsDevelopment reports whether detailed error output is allowed.
func (c *Config) IsDevelopment() bool {
	return c.Environment == EnvDevelopment
}

// IsProduction reports whether the server runs in production.
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}
