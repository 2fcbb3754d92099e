package logging

import (
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/flyashdesk/dashboard/internal/util"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

const ginRequestIDKey = "requestID"

// SetGinRequestID stores the request id on the gin context.
func SetGinRequestID(c *gin.Context, requestID string) {
	if c == nil {
		return
	}
	c.Set(ginRequestIDKey, requestID)
}

// GinRequestID returns the request id stored on the gin context.
func GinRequestID(c *gin.Context) string {
	if c == nil {
		return ""
	}
	if v, ok := c.Get(ginRequestIDKey); ok {
		if s, okString := v.(string); okString {
			return s
		}
	}
	return ""
}

// RequestID accepts a caller supplied X-Request-ID or generates one.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := strings.TrimSpace(c.GetHeader(RequestIDHeader))
		if requestID == "" || len(requestID) > 128 {
			requestID = uuid.NewString()
		}
		SetGinRequestID(c, requestID)
		c.Header(RequestIDHeader, requestID)
		c.Next()
	}
}

// RequestLogger logs one line per request.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := util.MaskSensitiveQuery(c.Request.URL.RawQuery)

		c.Next()

		status := c.Writer.Status()
		entry := log.WithFields(log.Fields{
			"request_id": GinRequestID(c),
			"method":     c.Request.Method,
			"path":       path,
			"query":      query,
			"status":     status,
			"latency":    time.Since(start).String(),
			"client_ip":  c.ClientIP(),
		})
		if userID, ok := c.Get("userID"); ok {
			entry = entry.WithField("user_id", userID)
		}
		switch {
		case status >= http.StatusInternalServerError:
			entry.Error("request failed")
		case status >= http.StatusBadRequest:
			entry.Warn("request rejected")
		default:
			entry.Info("request")
		}
	}
}

// Recovery turns panics into a 500 response and logs the stack.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if recovered := recover(); recovered != nil {
				log.WithFields(log.Fields{
					"request_id": GinRequestID(c),
					"path":       c.Request.URL.Path,
					"panic":      recovered,
				}).Errorf("panic recovered\n%s", debug.Stack())
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			}
		}()
		c.Next()
	}
}
