package harness_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ahrdadan/verq/internal/harness"
)

// flakyTarget fails navigation until a set attempt succeeds.
type flakyTarget struct {
	probeTarget
	failUntil int
	attempts  int
}

func (t *flakyTarget) Navigate(ctx context.Context, url string) error {
	t.attempts++
	if t.attempts < t.failUntil {
		return errors.New("connection refused")
	}
	return nil
}

func connectConfig(retries int) harness.RunConfig {
	cfg := harness.DefaultRunConfig()
	cfg.ConnectRetries = retries
	cfg.ConnectRetryDelay = time.Millisecond
	return cfg
}

func TestEstablishFirstAttempt(t *testing.T) {
	target := &flakyTarget{failUntil: 1}

	attempts, err := harness.Establish(context.Background(), target, connectConfig(10))
	if err != nil {
		t.Fatalf("Expected connection to succeed: %v", err)
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", attempts)
	}
}

func TestEstablishRetriesUntilUp(t *testing.T) {
	// The app under test takes a few ticks to start listening.
	target := &flakyTarget{failUntil: 4}

	attempts, err := harness.Establish(context.Background(), target, connectConfig(10))
	if err != nil {
		t.Fatalf("Expected connection to succeed after retries: %v", err)
	}
	if attempts != 4 {
		t.Errorf("Expected 4 attempts, got %d", attempts)
	}
}

func TestEstablishExhaustsRetries(t *testing.T) {
	target := &flakyTarget{failUntil: 100}

	attempts, err := harness.Establish(context.Background(), target, connectConfig(3))
	if !errors.Is(err, harness.ErrTargetUnreachable) {
		t.Fatalf("Expected ErrTargetUnreachable, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
	if target.attempts != 3 {
		t.Errorf("Expected 3 navigations, got %d", target.attempts)
	}
}

func TestEstablishCanceledContext(t *testing.T) {
	target := &flakyTarget{failUntil: 100}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := harness.Establish(ctx, target, connectConfig(10))
	if err == nil {
		t.Fatalf("Expected error from canceled context")
	}
	if errors.Is(err, harness.ErrTargetUnreachable) {
		t.Errorf("Cancellation should not report the target as unreachable")
	}
	if target.attempts != 0 {
		t.Errorf("Expected no navigation after cancellation, got %d", target.attempts)
	}
}
