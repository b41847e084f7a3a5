package api

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// Per-IP rate limiters
var (
	ipLimiters = make(map[string]*rate.Limiter)
	ipMu       sync.RWMutex
)

func getIPLimiter(ip string) *rate.Limiter {
	ipMu.RLock()
	limiter, exists := ipLimiters[ip]
	ipMu.RUnlock()

	if exists {
		return limiter
	}

	ipMu.Lock()
	defer ipMu.Unlock()

	if limiter, exists := ipLimiters[ip]; exists {
		return limiter
	}

	// 20 req/s per IP, burst 50
	limiter = rate.NewLimiter(rate.Limit(20), 50)
	ipLimiters[ip] = limiter
	return limiter
}

func init() {
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			ipMu.Lock()
			ipLimiters = make(map[string]*rate.Limiter)
			ipMu.Unlock()
		}
	}()
}

// CORSMiddleware handles Cross-Origin Resource Sharing.
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, X-API-KEY, Authorization")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}

// RequestIDMiddleware adds a unique request id for tracking.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set("RequestID", requestID)
		c.Writer.Header().Set("X-Request-ID", requestID)
		c.Next()
	}
}

// RateLimitMiddleware prevents API abuse with per-IP rate limiting.
func RateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		limiter := getIPLimiter(ip)

		if !limiter.Allow() {
			log.Printf("[RATE_LIMIT] IP %s exceeded rate limit", ip)
			c.JSON(http.StatusTooManyRequests, gin.H{"code": -1003, "msg": "too many requests"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// TimeoutMiddleware prevents long-running requests from blocking resources.
func TimeoutMiddleware(timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)

		finished := make(chan struct{})
		panicChan := make(chan interface{}, 1)

		go func() {
			defer func() {
				if p := recover(); p != nil {
					panicChan <- p
				}
			}()
			c.Next()
			finished <- struct{}{}
		}()

		select {
		case <-panicChan:
			c.JSON(http.StatusInternalServerError, gin.H{"code": -1000, "msg": "internal error"})
			c.Abort()
		case <-finished:
			return
		case <-ctx.Done():
			log.Printf("[TIMEOUT] %s %s", c.Request.Method, c.Request.URL.Path)
			c.JSON(http.StatusRequestTimeout, gin.H{"code": -1001, "msg": "request timeout"})
			c.Abort()
		}
	}
}

// RequestLogger logs every request with timing and status.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method
		requestID := c.GetString("RequestID")
		if requestID == "" {
			requestID = "unknown"
		}

		c.Next()

		latency := time.Since(start)
		statusCode := c.Writer.Status()
		clientIP := c.ClientIP()

		idPrefix := requestID
		if len(idPrefix) > 8 {
			idPrefix = idPrefix[:8]
		}
		log.Printf("[API] %s | %s %s | %d | %v | %s", idPrefix, method, path, statusCode, latency, clientIP)
	}
}

// recvWindowMS is the default §6 recvWindow, overridable per-request via
// the order request body's recvWindow field.
const recvWindowMS = 5000

// checkTimestamp enforces §6's skew rule for timestamped endpoints,
// returning the stable -1021 envelope on failure.
func checkTimestamp(c *gin.Context, serverNowMS int64, timestampMS int64, recvWindow int64) bool {
	if recvWindow <= 0 {
		recvWindow = recvWindowMS
	}
	skew := timestampMS - serverNowMS
	if skew < 0 {
		skew = -skew
	}
	if skew > recvWindow {
		c.JSON(http.StatusBadRequest, gin.H{"code": -1021, "msg": "Timestamp for this request is outside of the recvWindow."})
		return false
	}
	return true
}
