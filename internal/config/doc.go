// Package config defines the edge server configuration.
//
// Configuration is assembled once at startup from built-in defaults, an
// optional YAML file with ${VAR} and ${VAR:-default} substitution, and a
// fixed set of environment variables. The result is validated once with
// Config.Validate; a missing or short JWT secret is a fatal error. There
// is no hot reload.
package config
