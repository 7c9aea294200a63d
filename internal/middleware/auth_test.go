package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"ragpipe-go/pkg/token"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupProtectedRouter(jwtManager *token.JWTManager) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/admin/ping", AdminAuthMiddleware(jwtManager), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	return r
}

func TestAdminAuthAllowsAdminToken(t *testing.T) {
	m := token.NewJWTManager("secret", 1)
	r := setupProtectedRouter(m)

	adminToken, err := m.GenerateToken("admin", "ADMIN")
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/admin/ping", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAdminAuthRejectsMissingHeader(t *testing.T) {
	r := setupProtectedRouter(token.NewJWTManager("secret", 1))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/admin/ping", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdminAuthRejectsMalformedHeader(t *testing.T) {
	r := setupProtectedRouter(token.NewJWTManager("secret", 1))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/admin/ping", nil)
	req.Header.Set("Authorization", "Token abc")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdminAuthRejectsNonAdminRole(t *testing.T) {
	m := token.NewJWTManager("secret", 1)
	r := setupProtectedRouter(m)

	userToken, err := m.GenerateToken("someone", "USER")
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/admin/ping", nil)
	req.Header.Set("Authorization", "Bearer "+userToken)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAdminAuthRejectsTokenSignedWithOtherSecret(t *testing.T) {
	r := setupProtectedRouter(token.NewJWTManager("secret", 1))
	other := token.NewJWTManager("other-secret", 1)

	forged, err := other.GenerateToken("admin", "ADMIN")
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/admin/ping", nil)
	req.Header.Set("Authorization", "Bearer "+forged)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
