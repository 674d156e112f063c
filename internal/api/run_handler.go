package api

import (
	"bufio"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ahrdadan/verq/internal/queue"
	"github.com/ahrdadan/verq/internal/security"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// RunQueue is the queue surface the run handlers drive.
type RunQueue interface {
	EnqueueWithIdempotency(run *queue.Run) (*queue.Run, bool, error)
	GetRun(runID string) (*queue.Run, error)
	CancelRun(runID string) (*queue.Run, error)
	Subscribe(runID string) <-chan queue.Event
	Unsubscribe(runID string, ch <-chan queue.Event)
}

// RunHandler handles run-queue API requests
type RunHandler struct {
	queueManager     RunQueue
	idempotencyStore *security.IdempotencyStore
	maxRetries       int
}

// NewRunHandler creates a new run handler
func NewRunHandler(qm RunQueue, idempotencyStore *security.IdempotencyStore, maxRetries int) *RunHandler {
	if maxRetries < 1 {
		maxRetries = queue.DefaultMaxRetries
	}
	return &RunHandler{
		queueManager:     qm,
		idempotencyStore: idempotencyStore,
		maxRetries:       maxRetries,
	}
}

// CreateRunRequest extends RunRequest with queue-level fields
type CreateRunRequest struct {
	queue.RunRequest
	MaxRetries int `json:"max_retries,omitempty"`
}

// CreateRun enqueues a new verification run
// POST /verq/runs
func (h *RunHandler) CreateRun(c *fiber.Ctx) error {
	var req CreateRunRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}

	// An empty scenario falls back to the built-in fixture; a present one
	// must be well-formed before it is queued.
	if len(req.Scenario.Steps) > 0 {
		if err := req.Scenario.Validate(); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
	}

	// Check idempotency key from header or body
	idempotencyKey := c.Get("X-Idempotency-Key")
	if idempotencyKey == "" {
		idempotencyKey = req.IdempotencyKey
	}

	if idempotencyKey != "" && h.idempotencyStore != nil {
		if entry, exists := h.idempotencyStore.Check(idempotencyKey); exists {
			c.Set("X-Idempotency-Hit", "true")
			return c.Status(fiber.StatusAccepted).JSON(Response{
				Success: true,
				Data:    entry.Response,
			})
		}
	}

	req.RunRequest.IdempotencyKey = idempotencyKey

	// Cap timeout at 10 minutes: a run holds a real browser
	if req.RunRequest.Timeout > 600 {
		req.RunRequest.Timeout = 600
	}

	run := queue.NewRun(req.RunRequest)

	if req.RunRequest.Priority > 0 && req.RunRequest.Priority <= 10 {
		run.Priority = req.RunRequest.Priority
	} else {
		run.Priority = 5
	}

	if req.MaxRetries > 0 {
		if req.MaxRetries > h.maxRetries {
			req.MaxRetries = h.maxRetries
		}
		run.MaxRetries = req.MaxRetries
	}

	enqueued, wasDuplicate, err := h.queueManager.EnqueueWithIdempotency(run)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, fmt.Sprintf("Failed to enqueue run: %v", err))
	}

	response := queue.RunCreatedResponse{
		RunID:     enqueued.ID,
		Status:    enqueued.Status,
		StatusURL: fmt.Sprintf("/verq/runs/%s", enqueued.ID),
		ResultURL: fmt.Sprintf("/verq/runs/%s/result", enqueued.ID),
	}
	response.Events.SSEURL = fmt.Sprintf("/verq/runs/%s/events", enqueued.ID)
	response.Events.WSURL = fmt.Sprintf("/verq/ws?run_id=%s", enqueued.ID)

	if idempotencyKey != "" && h.idempotencyStore != nil && !wasDuplicate {
		h.idempotencyStore.Store(idempotencyKey, enqueued.ID, response)
	}

	if wasDuplicate {
		c.Set("X-Idempotency-Hit", "true")
	}

	return c.Status(fiber.StatusAccepted).JSON(Response{
		Success: true,
		Data:    response,
	})
}

// GetRunStatus returns the status of a run
// GET /verq/runs/:run_id
func (h *RunHandler) GetRunStatus(c *fiber.Ctx) error {
	runID := c.Params("run_id")
	if runID == "" {
		return fiber.NewError(fiber.StatusBadRequest, "Run ID is required")
	}

	run, err := h.queueManager.GetRun(runID)
	if err != nil {
		return fiber.NewError(fiber.StatusNotFound, "Run not found")
	}

	response := map[string]interface{}{
		"run_id":     run.ID,
		"status":     run.Status,
		"stage":      run.Stage,
		"progress":   run.Progress,
		"message":    run.Message,
		"created_at": run.CreatedAt,
		"updated_at": run.UpdatedAt,
		"priority":   run.Priority,
	}

	if run.Status == queue.RunStatusRetrying || run.RetryCount > 0 {
		response["retry_info"] = map[string]interface{}{
			"retry_count": run.RetryCount,
			"max_retries": run.MaxRetries,
			"last_error":  run.LastError,
		}
		if run.NextRetryAt > 0 {
			response["next_retry_at"] = time.Unix(run.NextRetryAt, 0).Format(time.RFC3339)
		}
	}

	if run.ExpiresAt > 0 {
		response["expires_at"] = time.Unix(run.ExpiresAt, 0).Format(time.RFC3339)
	}

	return c.JSON(Response{
		Success: true,
		Data:    response,
	})
}

// GetRunResult returns the report of a completed run
// GET /verq/runs/:run_id/result
func (h *RunHandler) GetRunResult(c *fiber.Ctx) error {
	runID := c.Params("run_id")
	if runID == "" {
		return fiber.NewError(fiber.StatusBadRequest, "Run ID is required")
	}

	run, err := h.queueManager.GetRun(runID)
	if err != nil {
		return fiber.NewError(fiber.StatusNotFound, "Run not found")
	}

	if run.Status != queue.RunStatusSucceeded && run.Status != queue.RunStatusFailed {
		return fiber.NewError(fiber.StatusConflict, "Run not completed yet")
	}

	return c.JSON(Response{
		Success: true,
		Data: queue.RunResultResponse{
			RunID:  run.ID,
			Status: run.Status,
			Result: run.Result,
			Error:  run.Error,
		},
	})
}

// CancelRun cancels a queued or running run
// POST /verq/runs/:run_id/cancel
func (h *RunHandler) CancelRun(c *fiber.Ctx) error {
	runID := c.Params("run_id")
	if runID == "" {
		return fiber.NewError(fiber.StatusBadRequest, "Run ID is required")
	}

	run, err := h.queueManager.CancelRun(runID)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	return c.JSON(Response{
		Success: true,
		Data: map[string]interface{}{
			"run_id": run.ID,
			"status": run.Status,
		},
	})
}

// StreamEvents streams run events via SSE
// GET /verq/runs/:run_id/events
func (h *RunHandler) StreamEvents(c *fiber.Ctx) error {
	runID := c.Params("run_id")
	if runID == "" {
		return fiber.NewError(fiber.StatusBadRequest, "Run ID is required")
	}

	run, err := h.queueManager.GetRun(runID)
	if err != nil {
		return fiber.NewError(fiber.StatusNotFound, "Run not found")
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("Transfer-Encoding", "chunked")

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		eventData, _ := json.Marshal(queue.Event{
			RunID:    run.ID,
			Status:   run.Status,
			Stage:    run.Stage,
			Progress: run.Progress,
			Message:  run.Message,
		})
		fmt.Fprintf(w, "data: %s\n\n", eventData)
		w.Flush()

		if isTerminal(run.Status) {
			return
		}

		events := h.queueManager.Subscribe(runID)
		defer h.queueManager.Unsubscribe(runID, events)

		// The run may have finished between the snapshot above and the
		// subscription, in which case no further event will arrive.
		if current, err := h.queueManager.GetRun(runID); err == nil && isTerminal(current.Status) {
			eventData, _ := json.Marshal(queue.Event{
				RunID:    current.ID,
				Status:   current.Status,
				Stage:    current.Stage,
				Progress: current.Progress,
				Message:  current.Message,
			})
			fmt.Fprintf(w, "data: %s\n\n", eventData)
			w.Flush()
			return
		}

		for event := range events {
			eventData, _ := json.Marshal(event)
			fmt.Fprintf(w, "data: %s\n\n", eventData)
			w.Flush()

			if isTerminal(event.Status) {
				return
			}
		}
	})

	return nil
}

// HandleWebSocket handles WebSocket connections for run events
func (h *RunHandler) HandleWebSocket(c *websocket.Conn) {
	runID := c.Query("run_id")
	if runID == "" {
		_ = c.WriteJSON(map[string]interface{}{
			"error": "run_id is required",
		})
		c.Close()
		return
	}

	run, err := h.queueManager.GetRun(runID)
	if err != nil {
		_ = c.WriteJSON(map[string]interface{}{
			"error": "run not found",
		})
		c.Close()
		return
	}

	_ = c.WriteJSON(queue.Event{
		RunID:    run.ID,
		Status:   run.Status,
		Stage:    run.Stage,
		Progress: run.Progress,
		Message:  run.Message,
	})

	if isTerminal(run.Status) {
		c.Close()
		return
	}

	events := h.queueManager.Subscribe(runID)
	defer h.queueManager.Unsubscribe(runID, events)

	// Same race as the SSE stream: re-check after subscribing so a run
	// that finished in between does not leave the socket open forever.
	if current, err := h.queueManager.GetRun(runID); err == nil && isTerminal(current.Status) {
		_ = c.WriteJSON(queue.Event{
			RunID:    current.ID,
			Status:   current.Status,
			Stage:    current.Stage,
			Progress: current.Progress,
			Message:  current.Message,
		})
		time.Sleep(100 * time.Millisecond)
		c.Close()
		return
	}

	for event := range events {
		if err := c.WriteJSON(event); err != nil {
			return
		}

		if isTerminal(event.Status) {
			time.Sleep(100 * time.Millisecond)
			return
		}
	}
}

func isTerminal(status queue.RunStatus) bool {
	return status == queue.RunStatusSucceeded ||
		status == queue.RunStatusFailed ||
		status == queue.RunStatusCanceled
}
