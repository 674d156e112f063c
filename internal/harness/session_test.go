package harness_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ahrdadan/verq/internal/harness"
)

// fakeBrowser hands out a prepared target and counts lifecycle calls.
type fakeBrowser struct {
	target     harness.Target
	startErr   error
	openErr    error
	startCalls int
	stopCalls  int
}

func (b *fakeBrowser) Start() error {
	b.startCalls++
	return b.startErr
}

func (b *fakeBrowser) OpenTarget(ctx context.Context) (harness.Target, error) {
	if b.openErr != nil {
		return nil, b.openErr
	}
	return b.target, nil
}

func (b *fakeBrowser) Stop() error {
	b.stopCalls++
	return nil
}

func sessionConfig(t *testing.T) harness.RunConfig {
	t.Helper()
	cfg := harness.DefaultRunConfig()
	cfg.ConnectRetries = 2
	cfg.ConnectRetryDelay = time.Millisecond
	cfg.PollInterval = time.Millisecond
	cfg.ArtifactDir = t.TempDir()
	return cfg
}

func testScenario() harness.Scenario {
	return harness.Scenario{
		Name: "test",
		Steps: []harness.Step{
			harness.WaitFor(harness.WaitVisible, "text=Ready", 50*time.Millisecond, true),
			harness.Click("button.go"),
		},
		Captures: []harness.CaptureTarget{
			harness.FullPageCapture("full.png"),
			harness.ElementCapture("div.detail", "detail.png"),
		},
	}
}

func TestControllerHappyPath(t *testing.T) {
	cfg := sessionConfig(t)
	browser := &fakeBrowser{target: newOpsTarget()}

	var states []harness.State
	controller := harness.NewController(browser, cfg)
	controller.OnStateChange(func(s harness.State) {
		states = append(states, s)
	})

	report := controller.Run(context.Background(), testScenario())

	if report.Failed() {
		t.Fatalf("Expected run to succeed: %s", report.Error)
	}
	if report.State != harness.StateClosed {
		t.Errorf("Expected closed state, got %s", report.State)
	}
	if report.ConnectAttempts != 1 {
		t.Errorf("Expected 1 connect attempt, got %d", report.ConnectAttempts)
	}
	if browser.stopCalls != 1 {
		t.Errorf("Expected browser released exactly once, got %d", browser.stopCalls)
	}

	expected := []harness.State{
		harness.StateLaunching,
		harness.StateConnecting,
		harness.StateRunning,
		harness.StateCapturing,
		harness.StateClosed,
	}
	if len(states) != len(expected) {
		t.Fatalf("Expected states %v, got %v", expected, states)
	}
	for i := range expected {
		if states[i] != expected[i] {
			t.Errorf("State %d: expected %s, got %s", i, expected[i], states[i])
		}
	}

	for _, name := range []string{"full.png", "detail.png"} {
		if _, err := os.Stat(filepath.Join(cfg.ArtifactDir, name)); err != nil {
			t.Errorf("Expected artifact %s to be written: %v", name, err)
		}
	}
}

func TestControllerLaunchFailure(t *testing.T) {
	browser := &fakeBrowser{startErr: errors.New("no usable chromium")}
	controller := harness.NewController(browser, sessionConfig(t))

	report := controller.Run(context.Background(), testScenario())

	if !report.Failed() {
		t.Fatalf("Expected run to fail")
	}
	if browser.stopCalls != 0 {
		t.Errorf("Browser that never started must not be stopped, got %d stops", browser.stopCalls)
	}
	if len(report.Captures) != 0 {
		t.Errorf("Expected no captures without a page")
	}
}

func TestControllerUnreachableTargetWritesNoArtifacts(t *testing.T) {
	cfg := sessionConfig(t)
	target := newOpsTarget()
	target.navigateErr = errors.New("connection refused")
	browser := &fakeBrowser{target: target}

	controller := harness.NewController(browser, cfg)
	report := controller.Run(context.Background(), testScenario())

	if !report.Failed() {
		t.Fatalf("Expected run to fail")
	}
	if report.Error == "" {
		t.Errorf("Expected an error message")
	}
	if report.ConnectAttempts != cfg.ConnectRetries {
		t.Errorf("Expected %d connect attempts, got %d", cfg.ConnectRetries, report.ConnectAttempts)
	}
	if browser.stopCalls != 1 {
		t.Errorf("Expected browser released exactly once, got %d", browser.stopCalls)
	}
	if len(report.Captures) != 0 {
		t.Errorf("Expected no capture attempts for an unreachable target, got %d", len(report.Captures))
	}

	entries, err := os.ReadDir(cfg.ArtifactDir)
	if err != nil {
		t.Fatalf("Failed to read artifact dir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("Expected empty artifact dir, found %d entries", len(entries))
	}
}

func TestControllerStepFailureStillCaptures(t *testing.T) {
	cfg := sessionConfig(t)
	target := newOpsTarget()
	target.missing["text=Ready"] = true
	browser := &fakeBrowser{target: target}

	controller := harness.NewController(browser, cfg)
	report := controller.Run(context.Background(), testScenario())

	if !report.Failed() {
		t.Fatalf("Expected run to fail on the load-bearing wait")
	}
	if browser.stopCalls != 1 {
		t.Errorf("Expected browser released exactly once, got %d", browser.stopCalls)
	}

	// The failure state itself is evidence: captures still run.
	if len(report.Captures) != 2 {
		t.Fatalf("Expected 2 capture attempts, got %d", len(report.Captures))
	}
	if _, err := os.Stat(filepath.Join(cfg.ArtifactDir, "full.png")); err != nil {
		t.Errorf("Expected diagnostic full-page capture: %v", err)
	}
}

func TestControllerOpenTargetFailure(t *testing.T) {
	browser := &fakeBrowser{openErr: errors.New("cdp connection lost")}
	controller := harness.NewController(browser, sessionConfig(t))

	report := controller.Run(context.Background(), testScenario())

	if !report.Failed() {
		t.Fatalf("Expected run to fail")
	}
	if browser.stopCalls != 1 {
		t.Errorf("Browser started before the failure must still be released, got %d stops", browser.stopCalls)
	}
}
