package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RequestLogger writes one structured line per request.
func RequestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		ev := log.Info()
		switch {
		case status >= 500:
			ev = log.Error()
		case status >= 400:
			ev = log.Warn()
		}
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		ev = ev.Str("method", c.Request.Method).
			Str("route", route).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("ip", c.ClientIP())
		if u, ok := CurrentUser(c); ok {
			ev = ev.Str("user_id", u.ID)
		}
		if len(c.Errors) > 0 {
			ev = ev.Str("errors", c.Errors.String())
		}
		ev.Msg("request")
	}
}
