package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Path    string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	}
	return e.Message
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// HasErrors returns true if there are validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validate checks the configuration once at startup. Any returned error
// is fatal; a missing or short JWT secret is always reported.
func (c *Config) Validate() error {
	var errs ValidationErrors
	add := func(path, format string, args ...any) {
		errs = append(errs, ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
	}

	switch c.Environment {
	case EnvDevelopment, EnvProduction, EnvTest:
	default:
		add("environment", "must be one of development, production, test; got %q", c.Environment)
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		add("server.port", "must be between 1 and 65535")
	}
	if c.Server.MaxBodyBytes <= 0 {
		add("server.maxBodyBytes", "must be positive")
	}

	switch {
	case c.Auth.JWTSecret == "":
		add("auth.jwtSecret", "is required")
	case len(c.Auth.JWTSecret) < MinJWTSecretLength:
		add("auth.jwtSecret", "must be at least %d bytes", MinJWTSecretLength)
	}

	validateWindow(&errs, "rateLimit.global", c.RateLimit.Global)
	validateWindow(&errs, "rateLimit.user", c.RateLimit.User)
	switch c.RateLimit.Global.Scope {
	case "", ScopeGlobal, ScopeIP:
	default:
		add("rateLimit.global.scope", "must be %q or %q", ScopeGlobal, ScopeIP)
	}
	switch c.RateLimit.Store {
	case StoreMemory:
	case StoreRedis:
		if c.RateLimit.Redis.URL == "" {
			add("rateLimit.redis.url", "is required when store is redis")
		}
	default:
		add("rateLimit.store", "must be %q or %q", StoreMemory, StoreRedis)
	}

	if c.WebSocket.HeartbeatInterval.Duration() <= 0 {
		add("websocket.heartbeatInterval", "must be positive")
	}
	if c.WebSocket.MaxConnections < 1 {
		add("websocket.maxConnections", "must be at least 1")
	}

	switch strings.ToLower(c.Logging.Format) {
	case "", "json", "console":
	default:
		add("logging.format", "invalid log format: %s", c.Logging.Format)
	}

	if c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1 {
		add("tracing.samplingRate", "must be between 0 and 1")
	}

	if c.Auth.Vault.Enabled && c.Auth.Vault.Address == "" {
		add("auth.vault.address", "is required when vault is enabled")
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

func validateWindow(errs *ValidationErrors, path string, w WindowConfig) {
	if !w.Enabled {
		return
	}
	if w.MaxRequests < 1 {
		*errs = append(*errs, ValidationError{Path: path + ".maxRequests", Message: "must be at least 1"})
	}
	if w.Window.Duration() <= 0 {
		*errs = append(*errs, ValidationError{Path: path + ".window", Message: "must be positive"})
	}
}
