package controllers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/zaqqye/simlab_backend/internal/apperr"
	"github.com/zaqqye/simlab_backend/internal/logger"
	"github.com/zaqqye/simlab_backend/internal/middleware"
)

var log = logger.New("http")

// respondError renders err with the status its kind maps to. Unknown errors
// are logged and hidden behind a 500.
func respondError(c *gin.Context, err error) {
	var (
		verrs  validator.ValidationErrors
		appErr *apperr.Error
		pgErr  *pgconn.PgError
	)
	switch {
	case errors.As(err, &verrs):
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			fields[strings.ToLower(fe.Field())] = fe.Tag()
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "fields": fields})
	case errors.As(err, &appErr):
		body := gin.H{"error": appErr.Error(), "code": appErr.Code}
		if len(appErr.Metadata) > 0 {
			body["meta"] = appErr.Metadata
		}
		c.JSON(appErr.Code.HTTPStatus(), body)
	case errors.As(err, &pgErr) && pgErr.Code == "23505":
		c.JSON(http.StatusConflict, gin.H{"error": "already exists"})
	case errors.Is(err, gorm.ErrRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	default:
		log.Errorf("%s %s: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// bindJSON binds the body into req and answers 400 on failure.
func bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			respondError(c, err)
			return false
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	return true
}

// idParam reads a uuid path parameter, answering 400 when malformed.
func idParam(c *gin.Context, name string) (string, bool) {
	raw := strings.TrimSpace(c.Param(name))
	if _, err := uuid.Parse(raw); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return "", false
	}
	return raw, true
}

func currentUserID(c *gin.Context) (string, bool) {
	u, ok := middleware.CurrentUser(c)
	return u.ID, ok
}
