package vault

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFakeVault(t *testing.T) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-token", r.Header.Get("X-Vault-Token"))
		w.Header().Set("Content-Type", "application/json")

		switch r.URL.Path {
		case "/v1/secret/data/edge":
			_, _ = w.Write([]byte(`{"data":{"data":{"jwt_secret":"0123456789abcdef0123456789abcdef","count":3},"metadata":{"version":1}}}`))
		case "/v1/secret/data/deleted":
			_, _ = w.Write([]byte(`{"data":{"data":null,"metadata":{"version":2}}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"errors":[]}`))
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func TestNewClient_RequiresAddress(t *testing.T) {
	t.Parallel()

	_, err := NewClient(Config{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestClient_ReadString(t *testing.T) {
	t.Parallel()

	server := newFakeVault(t)
	client, err := NewClient(Config{Address: server.URL, Token: "test-token"})
	require.NoError(t, err)

	ctx := context.Background()

	t.Run("existing key", func(t *testing.T) {
		value, err := client.ReadString(ctx, "secret", "edge", "jwt_secret")
		require.NoError(t, err)
		assert.Equal(t, "0123456789abcdef0123456789abcdef", value)
	})

	t.Run("missing key", func(t *testing.T) {
		_, err := client.ReadString(ctx, "secret", "edge", "other")
		assert.ErrorIs(t, err, ErrSecretNotFound)
	})

	t.Run("non-string value", func(t *testing.T) {
		_, err := client.ReadString(ctx, "secret", "edge", "count")
		assert.ErrorIs(t, err, ErrInvalidSecret)
	})

	t.Run("missing secret", func(t *testing.T) {
		_, err := client.ReadString(ctx, "secret", "nope", "jwt_secret")
		assert.ErrorIs(t, err, ErrSecretNotFound)
	})

	t.Run("deleted secret", func(t *testing.T) {
		_, err := client.Read(ctx, "secret", "deleted")
		assert.ErrorIs(t, err, ErrSecretNotFound)
	})

	t.Run("empty path", func(t *testing.T) {
		_, err := client.Read(ctx, "secret", "")
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})
}

func TestError_Message(t *testing.T) {
	t.Parallel()

	err := newError("kv_read", "secret/data/x", ErrSecretNotFound)
	assert.Equal(t, "vault kv_read on path secret/data/x: vault: secret not found", err.Error())
	assert.Equal(t, "vault connect: vault: invalid configuration", newError("connect", "", ErrInvalidConfig).Error())
}
