// file: internal/server/logger.go
// version: 2.1.0
// guid: 1d2e3f4a-5b6c-7d8e-9f0a-1b2c3d4e5f6a

package server

import (
	"time"

	"github.com/gin-gonic/gin"
	ulid "github.com/oklog/ulid/v2"

	"github.com/jdfalk/media-library/internal/logger"
)

const (
	requestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
	loggerKey       = "logger"
)

// requestLogger tags each request with an ID and logs its outcome. Server
// errors log at WARN, everything else at DEBUG.
func requestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = ulid.Make().String()
		}
		c.Set(requestIDKey, id)
		c.Set(loggerKey, log)
		c.Header(requestIDHeader, id)

		c.Next()

		status := c.Writer.Status()
		elapsed := time.Since(start)
		if status >= 500 {
			log.Warnf("%s %s -> %d in %v [request-id: %s]", c.Request.Method, c.Request.URL.Path, status, elapsed, id)
			return
		}
		log.Debugf("%s %s -> %d in %v [request-id: %s]", c.Request.Method, c.Request.URL.Path, status, elapsed, id)
	}
}

// requestLog returns the logger installed by requestLogger.
func requestLog(c *gin.Context) *logger.Logger {
	if v, ok := c.Get(loggerKey); ok {
		if l, ok := v.(*logger.Logger); ok {
			return l
		}
	}
	return logger.Nop()
}
