package security

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Middleware provides security middleware for Fiber
type Middleware struct {
	rateLimiter *RateLimiter
}

// NewMiddleware creates a new security middleware
func NewMiddleware(rl *RateLimiter) *Middleware {
	return &Middleware{rateLimiter: rl}
}

// RateLimitMiddleware returns a rate limiting middleware
func (m *Middleware) RateLimitMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		// Get client identifier (prefer user ID, fallback to IP)
		clientID := c.Get("X-User-ID")
		if clientID == "" {
			clientID = c.Get("X-API-Key")
		}
		if clientID == "" {
			clientID = c.IP()
		}

		if !m.rateLimiter.Allow(clientID) {
			info := m.rateLimiter.GetInfo(clientID)

			c.Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
			c.Set("X-RateLimit-Remaining", "0")
			c.Set("X-RateLimit-Reset", strconv.FormatInt(info.ResetAt.Unix(), 10))
			c.Set("Retry-After", strconv.FormatInt(int64(time.Until(info.ResetAt).Seconds()), 10))

			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"success":     false,
				"error":       "Rate limit exceeded",
				"retry_after": int64(time.Until(info.ResetAt).Seconds()),
			})
		}

		info := m.rateLimiter.GetInfo(clientID)
		c.Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
		c.Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
		c.Set("X-RateLimit-Reset", strconv.FormatInt(info.ResetAt.Unix(), 10))

		return c.Next()
	}
}

// SecurityHeadersMiddleware adds security headers
func SecurityHeadersMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("X-XSS-Protection", "1; mode=block")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Set("Content-Security-Policy", "default-src 'self'")

		requestID := c.Get("X-Request-ID")
		if requestID == "" {
			requestID = GenerateRequestID()
		}
		c.Set("X-Request-ID", requestID)
		c.Locals("requestID", requestID)

		return c.Next()
	}
}
