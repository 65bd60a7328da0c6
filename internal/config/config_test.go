package config

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestApplyEnv(t *testing.T) {
	t.Setenv("CONVERSATION_SERVICE_CACHE_TTL", "PT2M")
	t.Setenv("CONVERSATION_SERVICE_SOCKET_SEND_BUFFER", "8")
	t.Setenv("CONVERSATION_SERVICE_SOCKET_RECORD_MESSAGES", "false")
	t.Setenv("CONVERSATION_SERVICE_CORS_ENABLED", "true")
	t.Setenv("JWT_SECRET", "s3cret")

	cfg := DefaultConfig()
	require.NoError(t, cfg.ApplyEnv())

	require.Equal(t, 2*time.Minute, cfg.CacheTTL)
	require.Equal(t, 8, cfg.SocketSendBuffer)
	require.False(t, cfg.SocketRecordMessages)
	require.True(t, cfg.CORSEnabled)
	require.Equal(t, "s3cret", cfg.JWTSecret)
}

func TestApplyEnv_FlagSecretWins(t *testing.T) {
	t.Setenv("JWT_SECRET", "from-env")
	cfg := DefaultConfig()
	cfg.JWTSecret = "from-flag"
	require.NoError(t, cfg.ApplyEnv())
	require.Equal(t, "from-flag", cfg.JWTSecret)
}

func TestApplyEnv_RejectsBadValues(t *testing.T) {
	t.Setenv("CONVERSATION_SERVICE_DB_MIGRATE_AT_START", "maybe")
	cfg := DefaultConfig()
	require.ErrorContains(t, cfg.ApplyEnv(), "CONVERSATION_SERVICE_DB_MIGRATE_AT_START")
}

func TestParseDuration(t *testing.T) {
	for raw, want := range map[string]time.Duration{
		"30s":      30 * time.Second,
		"PT1H30M":  90 * time.Minute,
		"pt45s":    45 * time.Second,
		"PT1H2M3S": time.Hour + 2*time.Minute + 3*time.Second,
	} {
		got, err := parseDuration(raw)
		require.NoError(t, err, raw)
		require.Equal(t, want, got, raw)
	}
	for _, raw := range []string{"", "P1D", "PT", "PTXM"} {
		_, err := parseDuration(raw)
		require.Error(t, err, raw)
	}
}

func TestContextRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	ctx := WithContext(context.Background(), &cfg)
	require.Same(t, &cfg, FromContext(ctx))
	require.Nil(t, FromContext(context.Background()))
}
