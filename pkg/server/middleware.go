package server

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/entrhq/pilot/pkg/logging"
)

const apiKeyHeader = "X-API-Key"

// apiKeyAuth rejects requests without the service key. A missing header is
// 401, a wrong one 403.
func apiKeyAuth(expected string) gin.HandlerFunc {
	want := []byte(expected)
	return func(c *gin.Context) {
		provided := c.GetHeader(apiKeyHeader)
		if provided == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "API Key header is missing"})
			return
		}
		if subtle.ConstantTimeCompare([]byte(provided), want) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"detail": "Invalid API Key"})
			return
		}
		c.Next()
	}
}

// corsMiddleware allows the configured origins; "*" allows any.
func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Authorization", apiKeyHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	var allowed []string
	for _, o := range origins {
		if o == "*" {
			// Credentials cannot be combined with a literal wildcard.
			cfg.AllowOriginFunc = func(string) bool { return true }
			return cors.New(cfg)
		}
		if strings.HasPrefix(o, "http://") || strings.HasPrefix(o, "https://") {
			allowed = append(allowed, strings.TrimRight(o, "/"))
		}
	}
	if len(allowed) == 0 {
		return func(c *gin.Context) { c.Next() }
	}
	cfg.AllowOrigins = allowed
	return cors.New(cfg)
}

// requestLogger logs one line per request.
func requestLogger(logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		if len(c.Errors) > 0 {
			logger.Errorf("%s %s %d %s %s: %s", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), latency, c.ClientIP(), c.Errors.String())
			return
		}
		logger.Debugf("%s %s %d %s %s", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), latency, c.ClientIP())
	}
}

// recovery turns a handler panic into the error envelope.
func recovery(logger *logging.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, err any) {
		logger.Errorf("Panic serving %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"success": false, "error": "internal server error"})
	})
}

type rateLimitEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiter keeps one token bucket per client.
type rateLimiter struct {
	mu          sync.Mutex
	limit       rate.Limit
	burst       int
	entries     map[string]*rateLimitEntry
	entryTTL    time.Duration
	lastCleanup time.Time
}

func newRateLimiter(perMinute, burst int) *rateLimiter {
	return &rateLimiter{
		limit:       rate.Every(time.Minute / time.Duration(perMinute)),
		burst:       burst,
		entries:     make(map[string]*rateLimitEntry),
		entryTTL:    15 * time.Minute,
		lastCleanup: time.Now(),
	}
}

func (r *rateLimiter) allow(key string) bool {
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	if now.Sub(r.lastCleanup) >= r.entryTTL {
		for k, e := range r.entries {
			if now.Sub(e.lastSeen) > r.entryTTL {
				delete(r.entries, k)
			}
		}
		r.lastCleanup = now
	}

	e, ok := r.entries[key]
	if !ok {
		e = &rateLimitEntry{limiter: rate.NewLimiter(r.limit, r.burst)}
		r.entries[key] = e
	}
	e.lastSeen = now
	return e.limiter.Allow()
}

// rateLimit throttles task routes per client IP. Non-positive settings
// disable it.
func rateLimit(perMinute, burst int) gin.HandlerFunc {
	if perMinute <= 0 || burst <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	limiter := newRateLimiter(perMinute, burst)
	return func(c *gin.Context) {
		if !limiter.allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"success": false, "error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
