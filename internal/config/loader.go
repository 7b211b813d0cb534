package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// LookupFunc resolves an environment variable. os.LookupEnv satisfies it.
type LookupFunc func(key string) (string, bool)

// Loader loads configuration from YAML and the environment.
type Loader struct {
	lookup LookupFunc
}

// NewLoader creates a loader reading the process environment.
func NewLoader() *Loader {
	return &Loader{lookup: os.LookupEnv}
}

// NewLoaderWithLookup creates a loader with a custom environment source.
func NewLoaderWithLookup(lookup LookupFunc) *Loader {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	return &Loader{lookup: lookup}
}

// Load builds the configuration from defaults, the optional YAML file at
// path, and environment overrides. It does not validate the result;
// callers validate after resolving external secrets.
func Load(path string) (*Config, error) {
	return NewLoader().Load(path)
}

// Load builds the configuration. An empty path skips the file.
func (l *Loader) Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve path %s: %w", path, err)
		}
		data, err := os.ReadFile(absPath) //nolint:gosec // operator-supplied path
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := l.parseInto(data, cfg); err != nil {
			return nil, err
		}
	}

	if err := l.applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromReader parses YAML from r on top of the defaults and applies
// environment overrides.
func (l *Loader) LoadFromReader(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := l.parseInto(data, cfg); err != nil {
		return nil, err
	}
	if err := l.applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (l *Loader) parseInto(data []byte, cfg *Config) error {
	content := l.substituteEnvVars(string(data))
	if err := yaml.Unmarshal([]byte(content), cfg); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	return nil
}

// substituteEnvVars replaces ${VAR} and ${VAR:-default} patterns with
// environment variable values. "$$" escapes a literal dollar sign.
func (l *Loader) substituteEnvVars(content string) string {
	content = strings.ReplaceAll(content, "$$", "\x00ESCAPED_DOLLAR\x00")

	result := envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}
		if value, exists := l.lookup(submatches[1]); exists {
			return value
		}
		if len(submatches) >= 3 {
			return submatches[2]
		}
		return ""
	})

	return strings.ReplaceAll(result, "\x00ESCAPED_DOLLAR\x00", "$")
}

// applyEnv overlays the well-known environment variables.
func (l *Loader) applyEnv(cfg *Config) error {
	var errs ValidationErrors

	str := func(key string, dst *string) {
		if v, ok := l.lookup(key); ok && v != "" {
			*dst = v
		}
	}
	integer := func(key string, dst *int) {
		v, ok := l.lookup(key)
		if !ok || v == "" {
			return
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, ValidationError{Path: key, Message: fmt.Sprintf("invalid integer %q", v)})
			return
		}
		*dst = n
	}
	boolean := func(key string, dst *bool) {
		v, ok := l.lookup(key)
		if !ok || v == "" {
			return
		}
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, ValidationError{Path: key, Message: fmt.Sprintf("invalid boolean %q", v)})
			return
		}
		*dst = b
	}
	duration := func(key string, dst *Duration) {
		v, ok := l.lookup(key)
		if !ok || v == "" {
			return
		}
		d, err := parseMillisOrDuration(v)
		if err != nil {
			errs = append(errs, ValidationError{Path: key, Message: err.Error()})
			return
		}
		*dst = Duration(d)
	}
	list := func(key string, dst *[]string) {
		if v, ok := l.lookup(key); ok && v != "" {
			*dst = splitList(v)
		}
	}

	str("APP_ENV", &cfg.Environment)
	str("APP_VERSION", &cfg.Version)
	str("HOST", &cfg.Server.Host)
	integer("PORT", &cfg.Server.Port)
	str("JWT_SECRET", &cfg.Auth.JWTSecret)
	boolean("VAULT_ENABLED", &cfg.Auth.Vault.Enabled)
	str("VAULT_ADDR", &cfg.Auth.Vault.Address)
	str("VAULT_TOKEN", &cfg.Auth.Vault.Token)
	list("CORS_ORIGINS", &cfg.CORS.AllowOrigins)
	duration("RATE_LIMIT_WINDOW_MS", &cfg.RateLimit.Global.Window)
	integer("RATE_LIMIT_MAX_REQUESTS", &cfg.RateLimit.Global.MaxRequests)
	duration("USER_RATE_LIMIT_WINDOW_MS", &cfg.RateLimit.User.Window)
	integer("USER_RATE_LIMIT_MAX_REQUESTS", &cfg.RateLimit.User.MaxRequests)
	str("RATE_LIMIT_STORE", &cfg.RateLimit.Store)
	str("REDIS_URL", &cfg.RateLimit.Redis.URL)
	duration("WS_HEARTBEAT_INTERVAL", &cfg.WebSocket.HeartbeatInterval)
	integer("WS_MAX_CONNECTIONS", &cfg.WebSocket.MaxConnections)
	boolean("WS_STRICT_AUTH", &cfg.WebSocket.StrictAuth)
	str("LOG_LEVEL", &cfg.Logging.Level)
	str("LOG_FORMAT", &cfg.Logging.Format)
	boolean("TRACING_ENABLED", &cfg.Tracing.Enabled)
	str("OTEL_EXPORTER_OTLP_ENDPOINT", &cfg.Tracing.OTLPEndpoint)

	if cfg.RateLimit.Redis.URL != "" && cfg.RateLimit.Store == StoreMemory {
		if _, set := l.lookup("RATE_LIMIT_STORE"); !set {
			cfg.RateLimit.Store = StoreRedis
		}
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

// parseMillisOrDuration accepts a bare integer as milliseconds or a Go
// duration string.
func parseMillisOrDuration(v string) (time.Duration, error) {
	v = strings.TrimSpace(v)
	if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", v)
	}
	return d, nil
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
