package serve

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chirino/conversation-service/internal/config"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func TestMaxBodySizeMiddleware_Enforces(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(maxBodySizeMiddleware(4))
	router.POST("/conversation/", readBodyLengthHandler)

	req := httptest.NewRequest(http.MethodPost, "/conversation/", strings.NewReader("0123456789"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestMaxBodySizeMiddleware_AllowsSmallBodies(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(maxBodySizeMiddleware(64))
	router.POST("/conversation/", readBodyLengthHandler)

	req := httptest.NewRequest(http.MethodPost, "/conversation/", strings.NewReader("0123456789"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "10", rec.Body.String())
}

func readBodyLengthHandler(c *gin.Context) {
	n, err := io.Copy(io.Discard, c.Request.Body)
	if err != nil {
		c.Status(http.StatusRequestEntityTooLarge)
		return
	}
	c.String(http.StatusOK, "%d", n)
}

func TestStartServerWithSQLite(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Mode = config.ModeTesting
	cfg.DatastoreType = "sqlite"
	cfg.DBURL = filepath.Join(t.TempDir(), "serve.db")
	cfg.CacheType = "local"
	cfg.Listener.Port = 0
	cfg.Listener.EnableTLS = false
	ctx := config.WithContext(t.Context(), &cfg)

	srv, err := StartServer(ctx, &cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Shutdown(t.Context()) })

	base := fmt.Sprintf("http://127.0.0.1:%d", srv.Running.Port)

	resp, err := http.Get(base + "/ready")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	req, err := http.NewRequest(http.MethodPost, base+"/conversation/", strings.NewReader(`{"members":["alice","bob"]}`))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("auth-token", "alice")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.NotEmpty(t, body["id"])
	require.Equal(t, false, body["isGroup"])

	resp, err = http.Get(base + "/conversation/")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestValidate(t *testing.T) {
	base := func() config.Config {
		cfg := config.DefaultConfig()
		cfg.DatastoreType = "sqlite"
		return cfg
	}

	cfg := base()
	require.NoError(t, validate(&cfg))

	cases := map[string]func(*config.Config){
		"unknown store":    func(c *config.Config) { c.DatastoreType = "oracle" },
		"postgres no url":  func(c *config.Config) { c.DatastoreType = "postgres" },
		"unknown cache":    func(c *config.Config) { c.CacheType = "memcached" },
		"redis no url":     func(c *config.Config) { c.CacheType = "redis" },
		"zero send buffer": func(c *config.Config) { c.SocketSendBuffer = 0 },
		"no listener": func(c *config.Config) {
			c.Listener.EnablePlainText = false
			c.Listener.EnableTLS = false
		},
		"bad mode": func(c *config.Config) { c.Mode = "debug" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := base()
			mutate(&cfg)
			require.Error(t, validate(&cfg))
		})
	}
}
