package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vyrodovalexey/vibemuse-edge/internal/config"
	"github.com/vyrodovalexey/vibemuse-edge/internal/observability"
	"github.com/vyrodovalexey/vibemuse-edge/internal/retry"
	"github.com/vyrodovalexey/vibemuse-edge/internal/vault"
)

// vaultRetryPolicy covers Vault starting alongside the edge server.
var vaultRetryPolicy = retry.DefaultPolicy()

// resolveJWTSecret replaces the configured JWT secret with the one stored
// in Vault when Vault is enabled.
func resolveJWTSecret(ctx context.Context, cfg *config.Config, logger observability.Logger) error {
	vc := cfg.Auth.Vault
	if !vc.Enabled {
		return nil
	}

	client, err := vault.NewClient(vault.Config{
		Address: vc.Address,
		Token:   vc.Token,
	}, vault.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("failed to create vault client: %w", err)
	}

	var secret string
	err = retry.Do(ctx, vaultRetryPolicy, func(ctx context.Context) error {
		var readErr error
		secret, readErr = client.ReadString(ctx, vc.Mount, vc.Path, vc.Key)
		return readErr
	},
		retry.WithRetryIf(func(err error) bool {
			return !errors.Is(err, vault.ErrSecretNotFound) && !errors.Is(err, vault.ErrInvalidSecret)
		}),
		retry.WithOnRetry(func(attempt int, err error, wait time.Duration) {
			logger.Warn("vault read failed, retrying",
				observability.Int("attempt", attempt),
				observability.Duration("backoff", wait),
				observability.Error(err),
			)
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to read jwt secret from vault: %w", err)
	}

	cfg.Auth.JWTSecret = secret
	logger.Info("jwt secret loaded from vault",
		observability.String("mount", vc.Mount),
		observability.String("path", vc.Path),
	)
	return nil
}
