package queue

import (
	"context"
	"testing"
)

func TestManagerStopReleasesStore(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		store:     NewStore(),
		events:    NewEventHub(),
		ctx:       ctx,
		cancel:    cancel,
		isRunning: true,
	}

	m.Stop()

	select {
	case <-m.store.stopCleanup:
	default:
		t.Errorf("Expected the store cleanup goroutine to be signaled on Stop")
	}
	if m.isRunning {
		t.Errorf("Expected manager to report stopped")
	}

	// A second Stop is a no-op, not a double close
	m.Stop()
}
