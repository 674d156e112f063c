package api

import (
	"time"

	"github.com/ahrdadan/verq/internal/queue"
	"github.com/ahrdadan/verq/internal/security"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// SetupRoutes configures the synchronous verification routes
func SetupRoutes(app *fiber.App, browser Client, verifier Verifier, artifactDir string) {
	handler := NewHandler(browser, verifier, artifactDir)

	// Health check (simple path)
	app.Get("/health", handler.HealthCheck)

	registerRoutes(app.Group("/verq"), handler)
}

// RouteConfig holds configuration for routes
type RouteConfig struct {
	RateLimitRequests int           // requests per window
	RateLimitWindow   time.Duration // time window
	IdempotencyTTL    time.Duration // TTL for idempotency keys
	MaxRetries        int           // cap on per-run retries
}

// DefaultRouteConfig returns default route configuration
func DefaultRouteConfig() RouteConfig {
	return RouteConfig{
		RateLimitRequests: 100,
		RateLimitWindow:   time.Minute,
		IdempotencyTTL:    24 * time.Hour,
		MaxRetries:        5,
	}
}

// SetupRunRoutes configures run queue routes
func SetupRunRoutes(app *fiber.App, queueManager *queue.Manager) {
	SetupRunRoutesWithConfig(app, queueManager, DefaultRouteConfig())
}

// SetupRunRoutesWithConfig configures run queue routes with custom config
func SetupRunRoutesWithConfig(app *fiber.App, queueManager *queue.Manager, config RouteConfig) {
	rateLimiter := security.NewRateLimiter(security.RateLimitConfig{
		RequestsPerWindow: config.RateLimitRequests,
		WindowDuration:    config.RateLimitWindow,
		BurstMax:          20,
	})
	idempotencyStore := security.NewIdempotencyStore(config.IdempotencyTTL)

	runHandler := NewRunHandler(queueManager, idempotencyStore, config.MaxRetries)

	secMiddleware := security.NewMiddleware(rateLimiter)

	verq := app.Group("/verq")

	// Apply security headers to all verq routes
	verq.Use(security.SecurityHeadersMiddleware())

	// Run queue endpoints with rate limiting
	runsGroup := verq.Group("/runs")
	runsGroup.Use(secMiddleware.RateLimitMiddleware())

	runsGroup.Post("", runHandler.CreateRun)
	runsGroup.Get("/:run_id", runHandler.GetRunStatus)
	runsGroup.Get("/:run_id/result", runHandler.GetRunResult)
	runsGroup.Post("/:run_id/cancel", runHandler.CancelRun)
	runsGroup.Get("/:run_id/events", runHandler.StreamEvents)

	// WebSocket endpoint for run events
	app.Use("/verq/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/verq/ws", websocket.New(runHandler.HandleWebSocket))
}

func registerRoutes(verq fiber.Router, handler *Handler) {
	// Browser status
	verq.Get("/browser/status", handler.BrowserStatus)

	// One-shot verification
	verq.Post("/verify", handler.Verify)

	// Screenshot artifacts written by completed runs
	verq.Get("/artifacts/*", handler.GetArtifact)
}
