package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tradelane/payhook/internal/shared/logger"
)

// Logging returns a middleware that writes one access log line per request.
func Logging(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		reqLog := log
		if requestID := GetRequestID(c); requestID != "" {
			reqLog = log.With("request_id", requestID)
		}

		status := c.Writer.Status()
		attrs := []any{
			"status", status,
			"method", c.Request.Method,
			"path", path,
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		}
		if route := c.FullPath(); route != "" && route != path {
			attrs = append(attrs, "route", route)
		}
		if provider := c.Param("provider"); provider != "" {
			attrs = append(attrs, "provider", provider)
		}
		if operator := GetOperator(c); operator != "" {
			attrs = append(attrs, "operator", operator)
		}
		if last := c.Errors.Last(); last != nil {
			attrs = append(attrs, logger.Err(last.Err))
		}

		msg := "HTTP Request"
		switch {
		case status >= 500:
			reqLog.Error(msg, attrs...)
		case status >= 400:
			reqLog.Warn(msg, attrs...)
		default:
			reqLog.Info(msg, attrs...)
		}
	}
}
