package system

import (
	"net/http"
	"net/http/httptest"
	"testing"

	registryroute "github.com/chirino/conversation-service/internal/registry/route"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func get(t *testing.T, r *gin.Engine, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestReadinessFollowsLifecycle(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	require.NoError(t, registryroute.Mount(r, registryroute.TypeManagement))

	state.Store(stateStarting)
	w := get(t, r, "/ready")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"status":"starting"}`, w.Body.String())

	MarkReady()
	assert.Equal(t, http.StatusOK, get(t, r, "/ready").Code)

	MarkDraining()
	w = get(t, r, "/ready")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"status":"draining"}`, w.Body.String())
}

func TestHealthIncludesDetails(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	require.NoError(t, registryroute.Mount(r, registryroute.TypeManagement))

	SetDetail("sockets", func() any { return 3 })
	t.Cleanup(func() { SetDetail("sockets", nil) })

	w := get(t, r, "/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","sockets":3}`, w.Body.String())
}
