package serve

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/chirino/conversation-service/internal/security"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func corsRouter(origins string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(corsMiddleware(security.ParseOriginPolicy(origins)))
	router.GET("/conversation/", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.PUT("/conversation/rename", func(c *gin.Context) { c.Status(http.StatusOK) })
	return router
}

func TestCorsMiddlewareEchoesAllowedOrigin(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/conversation/", nil)
	req.Header.Set("Origin", "https://example.com")
	rec := httptest.NewRecorder()
	corsRouter("https://example.com").ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "https://example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
	require.Empty(t, rec.Header().Get("Access-Control-Allow-Methods"))
}

func TestCorsMiddlewarePreflight(t *testing.T) {
	req := httptest.NewRequest(http.MethodOptions, "/conversation/rename", nil)
	req.Header.Set("Origin", "https://chat.example.com")
	rec := httptest.NewRecorder()
	corsRouter("*").ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "https://chat.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	require.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "auth-token")
	require.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "PUT")
	require.Equal(t, "600", rec.Header().Get("Access-Control-Max-Age"))
}

func TestCorsMiddlewareIgnoresUnknownOrigin(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/conversation/", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec := httptest.NewRecorder()
	corsRouter("https://example.com").ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCorsMiddlewareWildcardOmitsCredentials(t *testing.T) {
	for _, origins := range []string{"", "*"} {
		req := httptest.NewRequest(http.MethodGet, "/conversation/", nil)
		req.Header.Set("Origin", "https://chat.example.com")
		rec := httptest.NewRecorder()
		corsRouter(origins).ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "https://chat.example.com", rec.Header().Get("Access-Control-Allow-Origin"), origins)
		require.Empty(t, rec.Header().Get("Access-Control-Allow-Credentials"), origins)
	}
}
