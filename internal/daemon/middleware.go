package daemon

import (
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	requestIDHeader = "X-Request-ID"
	requestIDKey    = "requestID"
)

// requestID tags every request with an id, reusing the caller's if present.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func accessLog(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("request",
			"id", c.GetString(requestIDKey),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

// originMatcher reports whether origin matches one of the glob patterns.
// Each pattern is matched whole, so "http://localhost:*" does not admit
// "http://localhost.example.com".
func originMatcher(patterns []string) func(string) bool {
	return func(origin string) bool {
		for _, p := range patterns {
			if ok, err := path.Match(p, origin); err == nil && ok {
				return true
			}
		}
		return false
	}
}

func corsMiddleware(patterns []string) gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOriginFunc: originMatcher(patterns),
		AllowMethods:    []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{
			"Origin", "Content-Type", "Accept", "Authorization", requestIDHeader,
		},
		ExposeHeaders: []string{"Content-Type", requestIDHeader},
		MaxAge:        12 * time.Hour,
	})
}

// bearerAuth requires a token signed with secret. WebSocket clients cannot
// set headers, so /ws also accepts ?token=.
func bearerAuth(secret string, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if raw == "" || raw == c.GetHeader("Authorization") {
			raw = c.Query("token")
		}
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		if _, err := ValidateToken(raw, secret); err != nil {
			logger.Warn("rejected token", "id", c.GetString(requestIDKey), "error", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Next()
	}
}

func bodyLimit(n int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if n > 0 && c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, n)
		}
		c.Next()
	}
}
