package gateway

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// MaxBodySize is the maximum accepted request body (50MB)
	MaxBodySize = 50 << 20

	headerRequestID = "X-Request-Id"
	ctxKeyRequestID = "request_id"
)

var corsHeaders = map[string]string{
	"Access-Control-Allow-Origin":  "*",
	"Access-Control-Allow-Methods": "GET, POST, OPTIONS",
	"Access-Control-Allow-Headers": "Content-Type, Authorization",
}

// corsMiddleware puts the CORS headers on every response and answers preflights
func (s *Server) corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		for k, v := range corsHeaders {
			c.Header(k, v)
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(headerRequestID))
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Set(ctxKeyRequestID, id)
		c.Header(headerRequestID, id)
		c.Next()
	}
}

func requestID(c *gin.Context) string {
	return c.GetString(ctxKeyRequestID)
}

// accessLogMiddleware logs one line per request and feeds the request metrics
func (s *Server) accessLogMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		elapsed := time.Since(start)
		status := c.Writer.Status()
		route := c.FullPath()
		if route == "" {
			route = routeUnmatched
		}

		s.metrics.ObserveRequest(route, status, elapsed)
		s.logger.WithRequestID(requestID(c)).Info("%s %s %d %s", c.Request.Method, c.Request.URL.Path, status, elapsed.Round(time.Microsecond))
	}
}

func (s *Server) maxBodySizeMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxBodySize)
		c.Next()
	}
}

// recoverPanic turns a handler panic into the generic 500 body
func (s *Server) recoverPanic(c *gin.Context, recovered any) {
	s.logger.WithRequestID(requestID(c)).Error("Panic while handling %s %s: %v", c.Request.Method, c.Request.URL.Path, recovered)
	if c.Writer.Written() {
		c.Abort()
		return
	}
	writeJSON(c, http.StatusInternalServerError, internalError)
	c.Abort()
}
