package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/zaqqye/simlab_backend/internal/middleware"
	"github.com/zaqqye/simlab_backend/internal/models"
	"github.com/zaqqye/simlab_backend/internal/utils"
)

const tokenIssuer = "simlab_backend"

type AuthController struct {
	DB            *gorm.DB
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

type registerRequest struct {
	FullName string `json:"full_name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
	Role     string `json:"role"`
	Active   *bool  `json:"active"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// Register creates a user. Mounted under the admin group only.
func (a *AuthController) Register(c *gin.Context) {
	var req registerRequest
	if !bindJSON(c, &req) {
		return
	}

	pw, err := utils.HashPassword(req.Password)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to hash password"})
		return
	}

	role := strings.ToLower(strings.TrimSpace(req.Role))
	if role == "" {
		role = models.RoleStudent
	}
	if !IsValidRole(role) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid role"})
		return
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	user := models.User{
		FullName: req.FullName,
		Email:    strings.ToLower(req.Email),
		Password: pw,
		Role:     role,
		Active:   active,
	}
	if err := a.DB.WithContext(c.Request.Context()).Create(&user).Error; err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":   "registered",
		"user_id":   user.ID,
		"email":     user.Email,
		"full_name": user.FullName,
		"role":      user.Role,
	})
}

func (a *AuthController) Login(c *gin.Context) {
	var req loginRequest
	if !bindJSON(c, &req) {
		return
	}

	var user models.User
	if err := a.DB.WithContext(c.Request.Context()).Where("email = ?", strings.ToLower(req.Email)).First(&user).Error; err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	if !user.Active || !utils.CheckPassword(user.Password, req.Password) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	access, refresh, err := a.issueTokens(a.DB.WithContext(c.Request.Context()), user)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"access_token":       access.Token,
		"token_type":         "Bearer",
		"expires_in":         int(a.AccessTTL.Seconds()),
		"role":               user.Role,
		"refresh_token":      refresh.Token,
		"refresh_expires_in": int(a.RefreshTTL.Seconds()),
	})
}

func (a *AuthController) Me(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)
	c.JSON(http.StatusOK, gin.H{
		"user_id":    user.ID,
		"email":      user.Email,
		"full_name":  user.FullName,
		"role":       user.Role,
		"active":     user.Active,
		"created_at": user.CreatedAt,
		"updated_at": user.UpdatedAt,
	})
}

type tokenPair struct {
	Token string
	JTI   string
}

func (a *AuthController) issueTokens(db *gorm.DB, user models.User) (access tokenPair, refresh tokenPair, err error) {
	now := time.Now().UTC()
	acl := middleware.Claims{
		UserID: user.ID,
		Role:   user.Role,
		Email:  user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.AccessTTL)),
			Subject:   user.ID,
		},
	}
	atStr, err := jwt.NewWithClaims(jwt.SigningMethodHS256, acl).SignedString([]byte(a.AccessSecret))
	if err != nil {
		return
	}
	access = tokenPair{Token: atStr}

	jti := uuid.NewString()
	rcl := jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(a.RefreshTTL)),
		Subject:   user.ID,
		ID:        jti,
	}
	rtStr, err := jwt.NewWithClaims(jwt.SigningMethodHS256, rcl).SignedString([]byte(a.RefreshSecret))
	if err != nil {
		return
	}
	refresh = tokenPair{Token: rtStr, JTI: jti}

	rec := models.RefreshToken{
		TokenID:   jti,
		UserIDRef: user.ID,
		TokenHash: utils.SHA256Hex(rtStr),
		ExpiresAt: now.Add(a.RefreshTTL),
	}
	err = db.Create(&rec).Error
	return
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// Refresh rotates a refresh token: the presented one is revoked and points
// at its replacement.
func (a *AuthController) Refresh(c *gin.Context) {
	var req refreshRequest
	if !bindJSON(c, &req) {
		return
	}
	tok, err := jwt.ParseWithClaims(req.RefreshToken, &jwt.RegisteredClaims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(a.RefreshSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !tok.Valid {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
		return
	}

	db := a.DB.WithContext(c.Request.Context())
	var rec models.RefreshToken
	if err := db.Where("token_hash = ?", utils.SHA256Hex(req.RefreshToken)).First(&rec).Error; err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "refresh token not found"})
		return
	}
	if rec.RevokedAt != nil || time.Now().UTC().After(rec.ExpiresAt) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "refresh token expired or revoked"})
		return
	}
	var user models.User
	if err := db.Where("id = ? AND active = ?", rec.UserIDRef, true).First(&user).Error; err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found or inactive"})
		return
	}

	var access, next tokenPair
	err = db.Transaction(func(tx *gorm.DB) error {
		var err error
		access, next, err = a.issueTokens(tx, user)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		return tx.Model(&rec).Updates(map[string]interface{}{
			"revoked_at":           &now,
			"replaced_by_token_id": next.JTI,
		}).Error
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"access_token":       access.Token,
		"token_type":         "Bearer",
		"expires_in":         int(a.AccessTTL.Seconds()),
		"refresh_token":      next.Token,
		"refresh_expires_in": int(a.RefreshTTL.Seconds()),
	})
}

type logoutRequest struct {
	RefreshToken string `json:"refresh_token"`
	All          bool   `json:"all"`
}

// Logout revokes one refresh token or all of the caller's. Access tokens stay
// valid until they expire.
func (a *AuthController) Logout(c *gin.Context) {
	var req logoutRequest
	_ = c.ShouldBindJSON(&req)
	db := a.DB.WithContext(c.Request.Context())
	now := time.Now().UTC()
	if req.RefreshToken != "" {
		if err := db.Model(&models.RefreshToken{}).
			Where("token_hash = ? AND revoked_at IS NULL", utils.SHA256Hex(req.RefreshToken)).
			Update("revoked_at", &now).Error; err != nil {
			respondError(c, err)
			return
		}
	}
	if req.All {
		if user, ok := middleware.CurrentUser(c); ok {
			if err := db.Model(&models.RefreshToken{}).
				Where("user_id_ref = ? AND revoked_at IS NULL", user.ID).
				Update("revoked_at", &now).Error; err != nil {
				respondError(c, err)
				return
			}
		}
	}
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}
