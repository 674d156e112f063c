package queue_test

import (
	"testing"

	"github.com/ahrdadan/verq/internal/queue"
)

func TestEventHubSubscribeAndEmit(t *testing.T) {
	hub := queue.NewEventHub()
	defer hub.Close()

	ch := hub.Subscribe("run_1")

	hub.Emit("run_1", queue.Event{RunID: "run_1", Status: queue.RunStatusRunning, Stage: "running", Progress: 50})

	event := <-ch
	if event.Status != queue.RunStatusRunning {
		t.Errorf("Expected running status, got %s", event.Status)
	}
	if event.Stage != "running" || event.Progress != 50 {
		t.Errorf("Unexpected event: %+v", event)
	}
}

func TestEventHubEmitToOtherRun(t *testing.T) {
	hub := queue.NewEventHub()
	defer hub.Close()

	ch := hub.Subscribe("run_1")
	hub.Emit("run_2", queue.Event{RunID: "run_2", Status: queue.RunStatusFailed})

	select {
	case event := <-ch:
		t.Errorf("Expected no event for run_1, got %+v", event)
	default:
	}
}

func TestEventHubUnsubscribeClosesChannel(t *testing.T) {
	hub := queue.NewEventHub()
	defer hub.Close()

	ch := hub.Subscribe("run_1")
	hub.Unsubscribe("run_1", ch)

	if _, open := <-ch; open {
		t.Errorf("Expected channel to be closed after unsubscribe")
	}

	// Emitting after unsubscribe must not panic
	hub.Emit("run_1", queue.Event{RunID: "run_1", Status: queue.RunStatusSucceeded})
}

func TestEventHubFullSubscriberDoesNotBlock(t *testing.T) {
	hub := queue.NewEventHub()
	defer hub.Close()

	hub.Subscribe("run_1")

	// Channel capacity is 10; emitting more must drop, not block.
	for i := 0; i < 25; i++ {
		hub.Emit("run_1", queue.Event{RunID: "run_1", Progress: i})
	}
}
