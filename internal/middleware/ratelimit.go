package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"sentra-backend/pkg/utils"
)

// EnhancedRateLimiter provides rate limiting with multiple tiers
type EnhancedRateLimiter struct {
	loginLimiter         *IPRateLimiter
	registerLimiter      *IPRateLimiter
	passwordResetLimiter *IPRateLimiter
	generalLimiter       *IPRateLimiter
	failedAttempts       map[string]*FailedAttemptTracker
	mu                   sync.RWMutex
}

// FailedAttemptTracker tracks failed attempts for progressive rate limiting
type FailedAttemptTracker struct {
	Count        int
	LastFailed   time.Time
	BlockedUntil *time.Time
}

// IPRateLimiter manages rate limiters per IP
type IPRateLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex
	rate     rate.Limit
	burst    int
}

// NewIPRateLimiter creates a new IP-based rate limiter
func NewIPRateLimiter(r rate.Limit, b int) *IPRateLimiter {
	return &IPRateLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     r,
		burst:    b,
	}
}

// GetLimiter returns the rate limiter for an IP
func (i *IPRateLimiter) GetLimiter(ip string) *rate.Limiter {
	i.mu.Lock()
	defer i.mu.Unlock()

	limiter, exists := i.limiters[ip]
	if !exists {
		limiter = rate.NewLimiter(i.rate, i.burst)
		i.limiters[ip] = limiter
	}

	return limiter
}

// NewEnhancedRateLimiter creates a new enhanced rate limiter
func NewEnhancedRateLimiter() *EnhancedRateLimiter {
	return &EnhancedRateLimiter{
		loginLimiter:         NewIPRateLimiter(rate.Every(time.Minute), 5),
		registerLimiter:      NewIPRateLimiter(rate.Every(5*time.Minute), 3),
		passwordResetLimiter: NewIPRateLimiter(rate.Every(10*time.Minute), 2),
		generalLimiter:       NewIPRateLimiter(rate.Every(time.Second), 30),
		failedAttempts:       make(map[string]*FailedAttemptTracker),
	}
}

var enhancedLimiter = NewEnhancedRateLimiter()

func (erl *EnhancedRateLimiter) GetProgressiveDelay(key string) time.Duration {
	erl.mu.RLock()
	tracker, exists := erl.failedAttempts[key]
	erl.mu.RUnlock()

	if !exists {
		return 0
	}

	if tracker.BlockedUntil != nil && time.Now().Before(*tracker.BlockedUntil) {
		return time.Until(*tracker.BlockedUntil)
	}

	return progressiveDelay(tracker.Count)
}

func progressiveDelay(count int) time.Duration {
	switch {
	case count >= 10:
		return 30 * time.Minute
	case count >= 5:
		return 10 * time.Minute
	case count >= 3:
		return 5 * time.Minute
	case count >= 1:
		return 1 * time.Minute
	default:
		return 0
	}
}

func (erl *EnhancedRateLimiter) RecordFailedAttempt(key string) (bool, *time.Time, int) {
	erl.mu.Lock()
	defer erl.mu.Unlock()

	tracker, exists := erl.failedAttempts[key]
	if !exists {
		tracker = &FailedAttemptTracker{}
		erl.failedAttempts[key] = tracker
	}

	tracker.Count++
	tracker.LastFailed = time.Now()
	prevBlocked := tracker.BlockedUntil != nil && time.Now().Before(*tracker.BlockedUntil)
	var newlyBlocked bool
	var blockedUntil *time.Time

	if os.Getenv("DISABLE_PROGRESSIVE_LOGIN_DELAY") != "true" {
		if delay := progressiveDelay(tracker.Count); delay > 0 {
			until := time.Now().Add(delay)
			tracker.BlockedUntil = &until
			if !prevBlocked {
				newlyBlocked = true
			}
		} else {
			tracker.BlockedUntil = nil
		}
	}

	if tracker.BlockedUntil != nil {
		blockedUntil = tracker.BlockedUntil
	}

	return newlyBlocked, blockedUntil, tracker.Count
}

func (erl *EnhancedRateLimiter) RecordSuccessfulAttempt(key string) {
	erl.mu.Lock()
	defer erl.mu.Unlock()

	if tracker, exists := erl.failedAttempts[key]; exists {
		tracker.Count = 0
		tracker.BlockedUntil = nil
	}
}

func (erl *EnhancedRateLimiter) IsBlocked(key string) bool {
	erl.mu.RLock()
	defer erl.mu.RUnlock()

	tracker, exists := erl.failedAttempts[key]
	if !exists {
		return false
	}

	return tracker.BlockedUntil != nil && time.Now().Before(*tracker.BlockedUntil)
}

func (erl *EnhancedRateLimiter) CleanupExpiredEntries() {
	erl.mu.Lock()
	defer erl.mu.Unlock()

	cutoff := time.Now().Add(-24 * time.Hour)
	for key, tracker := range erl.failedAttempts {
		if tracker.LastFailed.Before(cutoff) {
			delete(erl.failedAttempts, key)
		}
	}
}

// Middleware functions

func buildLoginRateLimitKey(c *gin.Context) string {
	email := strings.ToLower(c.GetString("validated_email"))
	if email == "" {
		return getClientIP(c)
	}
	sum := sha256.Sum256([]byte(email))
	return hex.EncodeToString(sum[:])
}

func limitBy(limiter *IPRateLimiter, retryAfter, message string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := getClientIP(c)

		if enhancedLimiter.IsBlocked(ip) {
			delay := enhancedLimiter.GetProgressiveDelay(ip)
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "Too many failed attempts. IP temporarily blocked.",
				"retry_after": fmt.Sprintf("%.0f seconds", delay.Seconds()),
			})
			c.Abort()
			return
		}

		if !limiter.GetLimiter(ip).Allow() {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       message,
				"retry_after": retryAfter,
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

func LoginRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := buildLoginRateLimitKey(c)

		if enhancedLimiter.IsBlocked(key) {
			delay := enhancedLimiter.GetProgressiveDelay(key)
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":         "Too many failed login attempts. Temporarily blocked.",
				"retry_after":   fmt.Sprintf("%.0f seconds", delay.Seconds()),
				"blocked_until": time.Now().Add(delay).Format(time.RFC3339),
			})
			c.Abort()
			return
		}

		if !enhancedLimiter.loginLimiter.GetLimiter(key).Allow() {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "Too many login attempts. Please try again later.",
				"retry_after": "60 seconds",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

func RegisterRateLimit() gin.HandlerFunc {
	return limitBy(enhancedLimiter.registerLimiter, "5 minutes", "Too many registration attempts. Please try again later.")
}

func PasswordResetRateLimit() gin.HandlerFunc {
	return limitBy(enhancedLimiter.passwordResetLimiter, "10 minutes", "Too many password reset attempts. Please try again later.")
}

func GeneralRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Health, metrics, and gateway webhooks are never throttled.
		path := c.Request.URL.Path
		if path == "/health" || path == "/metrics" || path == "/api/v1/health" ||
			strings.HasPrefix(path, "/api/v1/webhooks/") ||
			strings.HasPrefix(path, "/api/v1/auth/") {
			c.Next()
			return
		}

		ip := getClientIP(c)

		if enhancedLimiter.IsBlocked(ip) {
			delay := enhancedLimiter.GetProgressiveDelay(ip)
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "Too many failed attempts. IP temporarily blocked.",
				"retry_after": fmt.Sprintf("%.0f seconds", delay.Seconds()),
			})
			c.Abort()
			return
		}

		if !enhancedLimiter.generalLimiter.GetLimiter(ip).Allow() {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "Too many requests. Please slow down.",
				"retry_after": "1 second",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// RecordFailedLoginAttempt records a failed login attempt
func RecordFailedLoginAttempt(c *gin.Context) {
	key := buildLoginRateLimitKey(c)
	if blocked, blockedUntil, count := enhancedLimiter.RecordFailedAttempt(key); blocked {
		extras := map[string]interface{}{
			"login_key":       key,
			"client_ip":       getClientIP(c),
			"failed_attempts": count,
		}
		if email := strings.ToLower(c.GetString("validated_email")); email != "" {
			extras["email"] = email
		}
		if blockedUntil != nil {
			extras["blocked_until"] = blockedUntil.Format(time.RFC3339)
		}
		utils.CaptureSentryError(c, nil, "rate_limit.login_blocked", extras)
	}
}

// RecordSuccessfulLoginAttempt resets failed login tracking
func RecordSuccessfulLoginAttempt(c *gin.Context) {
	enhancedLimiter.RecordSuccessfulAttempt(buildLoginRateLimitKey(c))
}

// StartCleanup starts the cleanup routine for expired entries
func StartCleanup() {
	ticker := time.NewTicker(1 * time.Hour)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				utils.CaptureSentryPanic("middleware.StartCleanup", r)
			}
		}()
		for range ticker.C {
			enhancedLimiter.CleanupExpiredEntries()
		}
	}()
}

func getClientIP(c *gin.Context) string {
	// Try X-Forwarded-For header
	if xff := c.GetHeader("X-Forwarded-For"); xff != "" {
		ips := strings.Split(xff, ",")
		if len(ips) > 0 {
			return strings.TrimSpace(ips[0])
		}
	}

	// Try X-Real-IP header
	if xri := c.GetHeader("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	// Fall back to RemoteAddr
	return c.ClientIP()
}
