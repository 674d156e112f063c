package api

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ahrdadan/verq/internal/harness"
	"github.com/ahrdadan/verq/internal/queue"
	"github.com/gofiber/fiber/v2"
)

// Client defines the browser status surface used by the API handlers.
type Client interface {
	IsRunning() bool
	GetEndpoint() string
}

// Verifier executes verification runs synchronously.
type Verifier interface {
	Verify(ctx context.Context, req queue.RunRequest) (*harness.Report, error)
}

// Handler handles API requests
type Handler struct {
	browser     Client
	verifier    Verifier
	artifactDir string
}

// NewHandler creates a new handler
func NewHandler(browser Client, verifier Verifier, artifactDir string) *Handler {
	return &Handler{
		browser:     browser,
		verifier:    verifier,
		artifactDir: artifactDir,
	}
}

// Response represents a standard API response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// ErrorHandler is the custom error handler for Fiber
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}

	return c.Status(code).JSON(Response{
		Success: false,
		Error:   err.Error(),
	})
}

// HealthCheck returns health status
func (h *Handler) HealthCheck(c *fiber.Ctx) error {
	return c.JSON(Response{
		Success: true,
		Data: map[string]interface{}{
			"status":    "ok",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		},
	})
}

// BrowserStatus returns browser status
func (h *Handler) BrowserStatus(c *fiber.Ctx) error {
	return c.JSON(Response{
		Success: true,
		Data: map[string]interface{}{
			"running":  h.browser.IsRunning(),
			"endpoint": h.browser.GetEndpoint(),
		},
	})
}

// Verify runs a scenario synchronously and returns the full report.
// POST /verq/verify
func (h *Handler) Verify(c *fiber.Ctx) error {
	var req queue.RunRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}

	timeout := queue.DefaultRunTimeout
	if req.Timeout > 0 {
		timeout = time.Duration(req.Timeout) * time.Second
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	report, err := h.verifier.Verify(ctx, req)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	return c.JSON(Response{
		Success: !report.Failed(),
		Data:    report,
		Error:   report.Error,
	})
}

// GetArtifact serves a captured screenshot from the artifact directory.
// GET /verq/artifacts/*
func (h *Handler) GetArtifact(c *fiber.Ctx) error {
	name, err := url.PathUnescape(c.Params("*"))
	if err != nil || name == "" {
		return fiber.NewError(fiber.StatusBadRequest, "Artifact name is required")
	}
	if strings.Contains(name, "..") {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid artifact path")
	}

	path := filepath.Join(h.artifactDir, filepath.Clean(name))
	if _, err := os.Stat(path); err != nil {
		return fiber.NewError(fiber.StatusNotFound, "Artifact not found")
	}

	return c.SendFile(path)
}
