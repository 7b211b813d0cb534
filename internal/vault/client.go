// Package vault reads signing secrets from a HashiCorp Vault KV v2 engine.
package vault

import (
	"context"
	"fmt"
	"time"

	vaultapi "github.com/hashicorp/vault/api"

	"github.com/vyrodovalexey/vibemuse-edge/internal/observability"
)

// DefaultTimeout bounds a single Vault request.
const DefaultTimeout = 10 * time.Second

// Config configures the Vault client.
type Config struct {
	Address string
	Token   string
	Timeout time.Duration
}

// Client reads KV v2 secrets.
type Client struct {
	api    *vaultapi.Client
	logger observability.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger for the client.
func WithLogger(logger observability.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a Vault client authenticated with a static token.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if cfg.Address == "" {
		return nil, newError("connect", "", fmt.Errorf("%w: address is required", ErrInvalidConfig))
	}

	apiConfig := vaultapi.DefaultConfig()
	apiConfig.Address = cfg.Address
	apiConfig.Timeout = cfg.Timeout
	if apiConfig.Timeout <= 0 {
		apiConfig.Timeout = DefaultTimeout
	}
	apiConfig.MaxRetries = 2

	api, err := vaultapi.NewClient(apiConfig)
	if err != nil {
		return nil, newError("connect", "", err)
	}
	if cfg.Token != "" {
		api.SetToken(cfg.Token)
	}

	c := &Client{api: api, logger: observability.NopLogger()}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Read reads the data map of a KV v2 secret.
func (c *Client) Read(ctx context.Context, mount, path string) (map[string]interface{}, error) {
	if mount == "" || path == "" {
		return nil, newError("kv_read", path, fmt.Errorf("%w: mount and path are required", ErrInvalidConfig))
	}

	fullPath := fmt.Sprintf("%s/data/%s", mount, path)
	secret, err := c.api.Logical().ReadWithContext(ctx, fullPath)
	if err != nil {
		return nil, newError("kv_read", fullPath, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, newError("kv_read", fullPath, ErrSecretNotFound)
	}

	// deleted KV v2 versions come back with data: null
	dataValue, hasData := secret.Data["data"]
	if hasData && dataValue == nil {
		return nil, newError("kv_read", fullPath, ErrSecretNotFound)
	}
	data, ok := dataValue.(map[string]interface{})
	if !ok {
		data = secret.Data
	}

	c.logger.Debug("secret read", observability.String("path", fullPath))
	return data, nil
}

// ReadString reads a single string value from a KV v2 secret.
func (c *Client) ReadString(ctx context.Context, mount, path, key string) (string, error) {
	data, err := c.Read(ctx, mount, path)
	if err != nil {
		return "", err
	}

	raw, ok := data[key]
	if !ok {
		return "", newError("kv_read", mount+"/"+path, fmt.Errorf("%w: key %q", ErrSecretNotFound, key))
	}
	value, ok := raw.(string)
	if !ok || value == "" {
		return "", newError("kv_read", mount+"/"+path, fmt.Errorf("%w: key %q", ErrInvalidSecret, key))
	}
	return value, nil
}
