package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/zaqqye/simlab_backend/internal/models"
)

const userKey = "user"

// UserLookup resolves the subject of an access token.
type UserLookup interface {
	FindUser(ctx context.Context, id string) (models.User, error)
}

type AuthConfig struct {
	JWTSecret string
}

type Claims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

func AuthMiddleware(users UserLookup, cfg AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr, ok := bearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid authorization header"})
			return
		}

		claims := &Claims{}
		token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
			return []byte(cfg.JWTSecret), nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		user, err := users.FindUser(c.Request.Context(), claims.UserID)
		if err != nil || !user.Active {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user not found or inactive"})
			return
		}

		c.Set(userKey, user)
		c.Next()
	}
}

// bearerToken reads the Authorization header, falling back to the
// access_token query parameter for websocket upgrades.
func bearerToken(c *gin.Context) (string, bool) {
	auth := c.GetHeader("Authorization")
	if auth == "" && c.IsWebsocket() {
		tok := strings.TrimSpace(c.Query("access_token"))
		return tok, tok != ""
	}
	if !strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return "", false
	}
	tok := strings.TrimSpace(auth[len("Bearer "):])
	return tok, tok != ""
}

// CurrentUser returns the user set by AuthMiddleware.
func CurrentUser(c *gin.Context) (models.User, bool) {
	v, ok := c.Get(userKey)
	if !ok {
		return models.User{}, false
	}
	u, ok := v.(models.User)
	return u, ok
}

// SetUser stores u as the authenticated user of the request.
func SetUser(c *gin.Context, u models.User) {
	c.Set(userKey, u)
}

func RequireRoles(roles ...string) gin.HandlerFunc {
	allowed := map[string]struct{}{}
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		if _, ok := allowed[user.Role]; !ok {
			// admin passes every role gate
			if user.Role != models.RoleAdmin {
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
				return
			}
		}
		c.Next()
	}
}
