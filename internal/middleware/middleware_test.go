package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zaqqye/simlab_backend/internal/apperr"
	"github.com/zaqqye/simlab_backend/internal/models"
)

const secret = "test-secret"

type users map[string]models.User

func (u users) FindUser(_ context.Context, id string) (models.User, error) {
	if user, ok := u[id]; ok {
		return user, nil
	}
	return models.User{}, apperr.ErrUserNotFound
}

func sign(t *testing.T, key string, c Claims) string {
	t.Helper()
	if c.ExpiresAt == nil {
		c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(time.Hour))
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(key))
	require.NoError(t, err)
	return s
}

func newRouter(lookup UserLookup, roles ...string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/x", AuthMiddleware(lookup, AuthConfig{JWTSecret: secret}), RequireRoles(roles...), func(c *gin.Context) {
		u, _ := CurrentUser(c)
		c.String(http.StatusOK, u.ID)
	})
	return r
}

func get(r http.Handler, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	lookup := users{
		"u1": {ID: "u1", Role: models.RoleInstructor, Active: true},
		"u2": {ID: "u2", Role: models.RoleStudent, Active: false},
		"a1": {ID: "a1", Role: models.RoleAdmin, Active: true},
	}
	r := newRouter(lookup, models.RoleInstructor)

	w := get(r, sign(t, secret, Claims{UserID: "u1"}))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u1", w.Body.String())

	assert.Equal(t, http.StatusUnauthorized, get(r, "").Code)
	assert.Equal(t, http.StatusUnauthorized, get(r, sign(t, "other", Claims{UserID: "u1"})).Code)
	assert.Equal(t, http.StatusUnauthorized, get(r, sign(t, secret, Claims{UserID: "u2"})).Code)
	assert.Equal(t, http.StatusUnauthorized, get(r, sign(t, secret, Claims{UserID: "nobody"})).Code)

	expired := Claims{UserID: "u1"}
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	assert.Equal(t, http.StatusUnauthorized, get(r, sign(t, secret, expired)).Code)

	assert.Equal(t, http.StatusOK, get(r, sign(t, secret, Claims{UserID: "a1"})).Code, "admin passes every gate")

	tok := sign(t, secret, Claims{UserID: "u1"})
	req := httptest.NewRequest(http.MethodGet, "/x?access_token="+tok, nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code, "query token only for websocket upgrades")

	req = httptest.NewRequest(http.MethodGet, "/x?access_token="+tok, nil)
	req.Header.Set("Connection", "upgrade")
	req.Header.Set("Upgrade", "websocket")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequireRolesForbidden(t *testing.T) {
	lookup := users{"s1": {ID: "s1", Role: models.RoleStudent, Active: true}}
	r := newRouter(lookup, models.RoleInstructor)
	assert.Equal(t, http.StatusForbidden, get(r, sign(t, secret, Claims{UserID: "s1"})).Code)

	gin.SetMode(gin.TestMode)
	bare := gin.New()
	bare.GET("/x", RequireRoles(models.RoleStudent), func(c *gin.Context) { c.Status(http.StatusOK) })
	assert.Equal(t, http.StatusUnauthorized, get(bare, "").Code)
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestLogger(zerolog.New(&buf)))
	r.GET("/x", func(c *gin.Context) {
		SetUser(c, models.User{ID: "u9"})
		c.Status(http.StatusTeapot)
	})
	get(r, "")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "warn", line["level"])
	assert.Equal(t, "/x", line["route"])
	assert.Equal(t, float64(http.StatusTeapot), line["status"])
	assert.Equal(t, "u9", line["user_id"])
}
