package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/arkeyez/arkdoc/archive"
	"github.com/arkeyez/arkdoc/observability"
)

// requestLogger tags each request with an id, logs it on completion, and
// persists an entry to the request log when an archive store is present.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := uuid.NewString()
		c.Header("X-Request-ID", requestID)

		c.Next()

		elapsed := time.Since(start)
		s.log.Info("request",
			observability.String("request_id", requestID),
			observability.String("method", c.Request.Method),
			observability.String("path", c.Request.URL.Path),
			observability.Int("status", c.Writer.Status()),
			observability.Duration("duration", elapsed),
			observability.String("client_ip", c.ClientIP()))

		if s.store == nil {
			return
		}
		entry := archive.RequestLog{
			Timestamp:  start,
			Method:     c.Request.Method,
			Endpoint:   c.Request.URL.Path,
			ClientIP:   c.ClientIP(),
			UserAgent:  c.Request.UserAgent(),
			StatusCode: c.Writer.Status(),
			Duration:   elapsed,
		}
		if err := s.store.LogRequest(entry); err != nil {
			s.log.Warn("persist request log", observability.Error("err", err))
		}
	}
}

// requireAuth enforces a valid bearer token and stores its subject in the
// request context under "user".
func (s *Server) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		subject, err := s.auth.Verify(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set("user", subject)
		c.Next()
	}
}
