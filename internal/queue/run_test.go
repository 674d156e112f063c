package queue_test

import (
	"strings"
	"testing"
	"time"

	"github.com/ahrdadan/verq/internal/queue"
)

func TestNewRunDefaults(t *testing.T) {
	run := queue.NewRun(queue.RunRequest{})

	if !strings.HasPrefix(run.ID, "run_") {
		t.Errorf("Expected run_ prefix, got %s", run.ID)
	}
	if run.Status != queue.RunStatusQueued {
		t.Errorf("Expected queued status, got %s", run.Status)
	}
	if run.MaxRetries != queue.DefaultMaxRetries {
		t.Errorf("Expected default max retries, got %d", run.MaxRetries)
	}
	if run.ExpiresAt == 0 {
		t.Errorf("Expected a result expiry to be set")
	}
}

func TestRunStatusTransitions(t *testing.T) {
	run := queue.NewRun(queue.RunRequest{})

	run.SetStatus(queue.RunStatusRunning)
	if run.StartedAt == 0 {
		t.Errorf("Expected StartedAt to be set when the run starts")
	}

	run.SetResult(map[string]interface{}{"state": "closed"})
	if run.Status != queue.RunStatusSucceeded {
		t.Errorf("Expected succeeded status, got %s", run.Status)
	}
	if run.Progress != 100 {
		t.Errorf("Expected progress 100, got %d", run.Progress)
	}
	if run.CompletedAt == 0 {
		t.Errorf("Expected CompletedAt to be set")
	}
}

func TestRunSetErrorKeepsResult(t *testing.T) {
	run := queue.NewRun(queue.RunRequest{})
	run.Result = map[string]interface{}{"state": "failed", "captures": 2}

	run.SetError("load-bearing wait timed out")

	if run.Status != queue.RunStatusFailed {
		t.Errorf("Expected failed status, got %s", run.Status)
	}
	if run.Result == nil {
		t.Errorf("A failed run must keep its captured evidence")
	}
	if run.Error == "" || run.LastError == "" {
		t.Errorf("Expected error fields to be set")
	}
}

func TestRunRetryBackoff(t *testing.T) {
	run := queue.NewRun(queue.RunRequest{
		Retry: &queue.RetryConfig{MaxRetries: 3, RetryDelay: 10, BackoffFactor: 2.0},
	})

	if !run.CanRetry() {
		t.Fatalf("Fresh run should be retryable")
	}

	run.PrepareRetry()
	firstDelay := run.NextRetryAt - time.Now().Unix()
	if firstDelay < 8 || firstDelay > 12 {
		t.Errorf("Expected ~10s first retry delay, got %ds", firstDelay)
	}

	run.PrepareRetry()
	secondDelay := run.NextRetryAt - time.Now().Unix()
	if secondDelay < 18 || secondDelay > 22 {
		t.Errorf("Expected ~20s second retry delay, got %ds", secondDelay)
	}

	run.PrepareRetry()
	if run.CanRetry() {
		t.Errorf("Run at max retries must not be retryable")
	}
	if run.Status != queue.RunStatusRetrying {
		t.Errorf("Expected retrying status, got %s", run.Status)
	}
}

func TestRunJSONRoundTrip(t *testing.T) {
	run := queue.NewRun(queue.RunRequest{
		TargetHost: "10.0.0.5",
		TargetPort: 4000,
		Timeout:    120,
	})
	run.SetProgress("running", 50, "Executing steps")

	data, err := run.ToJSON()
	if err != nil {
		t.Fatalf("Failed to serialize run: %v", err)
	}

	decoded, err := queue.FromJSON(data)
	if err != nil {
		t.Fatalf("Failed to deserialize run: %v", err)
	}
	if decoded.ID != run.ID {
		t.Errorf("ID lost in round trip")
	}
	if decoded.Request.TargetPort != 4000 {
		t.Errorf("Request lost in round trip: %+v", decoded.Request)
	}
	if decoded.Stage != "running" || decoded.Progress != 50 {
		t.Errorf("Progress lost in round trip: %+v", decoded)
	}
}

func TestRunTimeoutDuration(t *testing.T) {
	run := queue.NewRun(queue.RunRequest{})
	if run.GetTimeoutDuration() != queue.DefaultRunTimeout {
		t.Errorf("Expected default timeout, got %s", run.GetTimeoutDuration())
	}

	run = queue.NewRun(queue.RunRequest{Timeout: 90})
	if run.GetTimeoutDuration() != 90*time.Second {
		t.Errorf("Expected 90s timeout, got %s", run.GetTimeoutDuration())
	}
}
