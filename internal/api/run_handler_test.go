package api_test

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ahrdadan/verq/internal/api"
	"github.com/ahrdadan/verq/internal/queue"
	"github.com/ahrdadan/verq/internal/security"
	"github.com/gofiber/fiber/v2"
)

// fakeRunQueue serves canned runs and a subscription channel that never
// carries events, so a stream must end on its own status checks.
type fakeRunQueue struct {
	runs    []*queue.Run
	getCall int
	events  chan queue.Event
}

func (q *fakeRunQueue) EnqueueWithIdempotency(run *queue.Run) (*queue.Run, bool, error) {
	return run, false, nil
}

func (q *fakeRunQueue) GetRun(runID string) (*queue.Run, error) {
	if len(q.runs) == 0 {
		return nil, fiber.NewError(fiber.StatusNotFound, "run not found")
	}
	run := q.runs[q.getCall]
	if q.getCall < len(q.runs)-1 {
		q.getCall++
	}
	return run, nil
}

func (q *fakeRunQueue) CancelRun(runID string) (*queue.Run, error) {
	return q.GetRun(runID)
}

func (q *fakeRunQueue) Subscribe(runID string) <-chan queue.Event {
	return q.events
}

func (q *fakeRunQueue) Unsubscribe(runID string, ch <-chan queue.Event) {}

func eventStreamApp(rq *fakeRunQueue) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: api.ErrorHandler,
	})

	store := security.NewIdempotencyStore(time.Hour)
	handler := api.NewRunHandler(rq, store, 5)
	app.Get("/verq/runs/:run_id/events", handler.StreamEvents)

	return app
}

func TestStreamEventsFinishedBeforeSubscribe(t *testing.T) {
	queued := &queue.Run{ID: "run_aaaa1111", Status: queue.RunStatusQueued}
	done := &queue.Run{ID: "run_aaaa1111", Status: queue.RunStatusSucceeded, Progress: 100}

	rq := &fakeRunQueue{
		runs:   []*queue.Run{queued, done},
		events: make(chan queue.Event),
	}
	app := eventStreamApp(rq)

	req := httptest.NewRequest("GET", "/verq/runs/run_aaaa1111/events", nil)
	resp, err := app.Test(req, 2000)
	if err != nil {
		t.Fatalf("Expected the stream to complete, got: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read response body: %v", err)
	}

	if !strings.Contains(string(body), `"status":"queued"`) {
		t.Errorf("Expected the initial snapshot event, got: %s", body)
	}
	if !strings.Contains(string(body), `"status":"succeeded"`) {
		t.Errorf("Expected a terminal event after subscribing, got: %s", body)
	}
}

func TestStreamEventsTerminalSnapshot(t *testing.T) {
	done := &queue.Run{ID: "run_bbbb2222", Status: queue.RunStatusFailed, Error: "navigate failed"}

	rq := &fakeRunQueue{
		runs:   []*queue.Run{done},
		events: make(chan queue.Event),
	}
	app := eventStreamApp(rq)

	req := httptest.NewRequest("GET", "/verq/runs/run_bbbb2222/events", nil)
	resp, err := app.Test(req, 2000)
	if err != nil {
		t.Fatalf("Expected the stream to complete, got: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read response body: %v", err)
	}

	if !strings.Contains(string(body), `"status":"failed"`) {
		t.Errorf("Expected the terminal snapshot event, got: %s", body)
	}
	if strings.Count(string(body), "data: ") != 1 {
		t.Errorf("Expected a single event for an already finished run, got: %s", body)
	}
}
