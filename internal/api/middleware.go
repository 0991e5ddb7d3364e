// internal/api/middleware.go
package api

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/Corphon/LectureCompanion/internal/utils"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	requestIDKey    = "request_id"
	requestIDHeader = "X-Request-ID"
)

// RequestID tags each request with an id, reusing a well-formed incoming one.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// RequestLogger logs completed requests and records their metrics.
func RequestLogger(metrics *utils.MetricsCollector) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		elapsed := time.Since(start)
		status := c.Writer.Status()

		if metrics != nil {
			metrics.RecordAPIRequest(c.FullPath(), c.Request.Method, status, elapsed)
		}

		fields := map[string]interface{}{
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"status":      status,
			"duration_ms": elapsed.Milliseconds(),
			"request_id":  getRequestID(c),
			"client_ip":   c.ClientIP(),
		}
		switch {
		case status >= http.StatusInternalServerError:
			utils.GetLogger().Warn("request", fields)
		default:
			utils.GetLogger().Debug("request", fields)
		}
	}
}

// CORS allows the configured browser origins.
func CORS(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With", requestIDHeader},
		ExposeHeaders:    []string{requestIDHeader, "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 1 && origins[0] == "*" {
		cfg.AllowAllOrigins = true
		cfg.AllowCredentials = false
	} else {
		cfg.AllowOrigins = origins
	}
	return cors.New(cfg)
}

// RateLimiter is a fixed-window limiter keyed by client.
type RateLimiter struct {
	visitors  map[string]*Visitor
	mu        sync.Mutex
	limit     int
	window    time.Duration
	lastSweep time.Time
	now       func() time.Time
}

// Visitor is one client's window.
type Visitor struct {
	Remaining int
	Reset     time.Time
}

// NewRateLimiter allows limit requests per window per key.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		visitors: make(map[string]*Visitor),
		limit:    limit,
		window:   window,
		now:      time.Now,
	}
}

// Allow consumes one request for key and returns the remaining budget and
// the window reset time.
func (rl *RateLimiter) Allow(key string) (bool, int, time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if now.Sub(rl.lastSweep) > rl.window {
		for k, v := range rl.visitors {
			if now.After(v.Reset) {
				delete(rl.visitors, k)
			}
		}
		rl.lastSweep = now
	}

	visitor, exists := rl.visitors[key]
	if !exists || now.After(visitor.Reset) {
		visitor = &Visitor{Remaining: rl.limit, Reset: now.Add(rl.window)}
		rl.visitors[key] = visitor
	}
	if visitor.Remaining <= 0 {
		return false, 0, visitor.Reset
	}
	visitor.Remaining--
	return true, visitor.Remaining, visitor.Reset
}

// Middleware limits by client IP.
func (rl *RateLimiter) Middleware(response *ResponseHelper) gin.HandlerFunc {
	return func(c *gin.Context) {
		ok, remaining, reset := rl.Allow(c.ClientIP())
		c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", rl.limit))
		c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))
		c.Header("X-RateLimit-Reset", fmt.Sprintf("%d", reset.Unix()))
		if !ok {
			response.Error(c, http.StatusTooManyRequests, ErrorRateLimited, "rate limit exceeded")
			return
		}
		c.Next()
	}
}
