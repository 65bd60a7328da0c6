package client

import (
	"bytes"
	"strings"
	"testing"

	"github.com/chirino/conversation-service/internal/config"
	"github.com/chirino/conversation-service/internal/security"
	"github.com/stretchr/testify/require"
)

func TestTokenCommandSignsVerifiableToken(t *testing.T) {
	const secret = "0123456789abcdef0123456789abcdef"
	var out bytes.Buffer
	cmd := Command()
	cmd.Writer = &out

	err := cmd.Run(t.Context(), []string{"chat", "token", "--jwt-secret", secret, "--ttl", "1h", "alice"})
	require.NoError(t, err)

	cfg := config.DefaultConfig()
	cfg.JWTSecret = secret
	id, err := security.NewTokenResolver(&cfg).Resolve(t.Context(), strings.TrimSpace(out.String()))
	require.NoError(t, err)
	require.Equal(t, "alice", id.UserID)
}

func TestTokenCommandRequiresUser(t *testing.T) {
	cmd := Command()
	cmd.Writer = &bytes.Buffer{}
	err := cmd.Run(t.Context(), []string{"chat", "token", "--jwt-secret", "0123456789abcdef0123456789abcdef"})
	require.Error(t, err)
}
