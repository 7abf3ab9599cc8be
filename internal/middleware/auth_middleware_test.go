package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testSecret = "0123456789abcdef0123456789abcdef"

func adminRouter(m *AuthMiddleware) *gin.Engine {
	router := gin.New()
	router.GET("/admin", m.AdminAuth(), m.RBAC("admin"), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"role": c.GetString("role")})
	})
	return router
}

func doRequest(router *gin.Engine, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestAdminAuthRejectsMissingToken(t *testing.T) {
	m := NewAuthMiddleware(testSecret, nil)
	router := adminRouter(m)

	w := doRequest(router, "GET", "/admin", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doRequest(router, "GET", "/admin", map[string]string{"Authorization": "not-a-bearer"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doRequest(router, "GET", "/admin", map[string]string{"Authorization": "Bearer bogus"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdminAuthAcceptsIssuedToken(t *testing.T) {
	m := NewAuthMiddleware(testSecret, nil)
	router := adminRouter(m)

	token, err := m.GenerateJWT("u1", "admin", "admin")
	require.NoError(t, err)

	w := doRequest(router, "GET", "/admin", map[string]string{"Authorization": "Bearer " + token})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRBACRejectsInsufficientRole(t *testing.T) {
	m := NewAuthMiddleware(testSecret, nil)
	router := adminRouter(m)

	token, err := m.GenerateJWT("u2", "viewer", "viewer")
	require.NoError(t, err)

	w := doRequest(router, "GET", "/admin", map[string]string{"Authorization": "Bearer " + token})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestSourceAuthValidatesConfiguredKeys(t *testing.T) {
	m := NewAuthMiddleware(testSecret, map[string]string{"feed-key": "VirusTotal"})

	router := gin.New()
	router.POST("/ingest", m.SourceAuth(), func(c *gin.Context) {
		c.JSON(http.StatusCreated, gin.H{"source": c.GetString("source")})
	})

	w := doRequest(router, "POST", "/ingest", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doRequest(router, "POST", "/ingest", map[string]string{"X-API-Key": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doRequest(router, "POST", "/ingest", map[string]string{"X-API-Key": "feed-key"})
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), "VirusTotal")
}

func TestRegisterSourceIssuesAcceptedKey(t *testing.T) {
	m := NewAuthMiddleware(testSecret, nil)

	key := m.RegisterSource("Shodan")
	require.NotEmpty(t, key)

	router := gin.New()
	router.POST("/ingest", m.SourceAuth(), func(c *gin.Context) {
		c.Status(http.StatusCreated)
	})

	w := doRequest(router, "POST", "/ingest", map[string]string{"X-API-Key": key})
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestRateLimitBlocksOverLimit(t *testing.T) {
	m := NewAuthMiddleware(testSecret, nil)

	router := gin.New()
	router.GET("/limited", m.RateLimit(2, time.Minute), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	assert.Equal(t, http.StatusOK, doRequest(router, "GET", "/limited", nil).Code)
	assert.Equal(t, http.StatusOK, doRequest(router, "GET", "/limited", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, doRequest(router, "GET", "/limited", nil).Code)
}

func TestRateLimitDisabledWhenNonPositive(t *testing.T) {
	m := NewAuthMiddleware(testSecret, nil)

	router := gin.New()
	router.GET("/open", m.RateLimit(0, time.Minute), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	for i := 0; i < 10; i++ {
		assert.Equal(t, http.StatusOK, doRequest(router, "GET", "/open", nil).Code)
	}
}
