package api

import (
	"crypto/subtle"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// isStream reports routes that answer with a long-lived event stream.
func isStream(c *gin.Context) bool {
	return c.Request.URL.Path == "/advisor/stream" || strings.HasSuffix(c.Request.URL.Path, "/stream")
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		latency := time.Since(start)
		statusCode := c.Writer.Status()
		requestID, _ := c.Get("requestID")
		if isStream(c) {
			log.Printf("%s %s %d stream closed after %s request_id=%v", method, path, statusCode, latency.Round(time.Millisecond), requestID)
			return
		}
		log.Printf("%s %s %d %s request_id=%v", method, path, statusCode, latency, requestID)
	}
}

func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("requestID", id)
		c.Writer.Header().Set("X-Request-ID", id)
		c.Next()
	}
}

func metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		elapsed := time.Since(start).Seconds()
		httpRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		if isStream(c) && c.Writer.Status() == http.StatusOK {
			httpStreamDuration.WithLabelValues(path).Observe(elapsed)
			return
		}
		httpRequestDuration.WithLabelValues(c.Request.Method, path).Observe(elapsed)
	}
}

// authMiddleware accepts the token as a bearer header, an X-API-Key header or,
// for GET event streams only, an access_token query parameter.
func authMiddleware(token string) gin.HandlerFunc {
	if token == "" {
		return func(c *gin.Context) {
			c.Next()
		}
	}
	return func(c *gin.Context) {
		presented := c.GetHeader("Authorization")
		if strings.HasPrefix(presented, "Bearer ") {
			presented = strings.TrimSpace(strings.TrimPrefix(presented, "Bearer "))
		}
		if presented == "" {
			presented = c.GetHeader("X-API-Key")
		}
		if presented == "" && c.Request.Method == http.MethodGet && isStream(c) {
			presented = c.Query("access_token")
		}

		if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}
