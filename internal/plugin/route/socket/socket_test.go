package socket

import (
	"net/http"
	"testing"

	"github.com/chirino/conversation-service/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOriginChecker(t *testing.T) {
	cfg := config.DefaultConfig()
	assert.Nil(t, originChecker(&cfg))

	cfg.CORSEnabled = true
	cfg.CORSOrigins = "https://chat.example.com, http://localhost:3000"
	check := originChecker(&cfg)
	require.NotNil(t, check)

	req := func(origin string) *http.Request {
		r, _ := http.NewRequest(http.MethodGet, "http://api.example.com/socket", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		return r
	}
	assert.True(t, check(req("https://CHAT.example.com")))
	assert.True(t, check(req("http://localhost:3000")))
	assert.True(t, check(req("")))
	assert.False(t, check(req("https://evil.example.com")))

	cfg.CORSOrigins = "*"
	assert.True(t, originChecker(&cfg)(req("https://anything.example.com")))
}
