package obs

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"kindbossing/internal/app/middleware"
)

const (
	requestIDHeader = "X-Request-ID"
	maxRequestIDLen = 128
)

// Middleware carries the gin handlers for request ids and access logs.
type Middleware struct {
	Logger *slog.Logger
}

// RequestID keeps a caller supplied id when it looks sane and mints one
// otherwise. The id is echoed back and stored on the request context.
func (m Middleware) RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" || len(id) > maxRequestIDLen {
			id = uuid.NewString()
		}
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), requestIDKey{}, id))
		c.Writer.Header().Set(requestIDHeader, id)
		c.Set("request_id", id)
		c.Next()
	}
}

// LoggerMiddleware counts each request by route template and logs it. Probe
// and scrape routes log at debug so they do not drown the access log.
func (m Middleware) LoggerMiddleware() gin.HandlerFunc {
	log := m.Logger
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		HTTPRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		if log == nil {
			return
		}

		level := slog.LevelInfo
		switch {
		case status >= 500:
			level = slog.LevelError
		case route == "/livez" || route == "/readyz" || route == "/metrics":
			level = slog.LevelDebug
		}
		attrs := []any{"method", c.Request.Method, "path", route, "status", status, "duration", time.Since(start), "request_id", c.GetString("request_id")}
		// auth runs inside c.Next, so the actor is on the request by now
		if actor, ok := middleware.ActorFromContext(c.Request.Context()); ok {
			attrs = append(attrs, "user_id", actor.ID)
		}
		log.Log(c.Request.Context(), level, "http", attrs...)
	}
}

type requestIDKey struct{}

func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
