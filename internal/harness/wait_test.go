package harness_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ahrdadan/verq/internal/harness"
)

// probeTarget replays a scripted sequence of probe observations; the last
// entry repeats once the script is exhausted.
type probeTarget struct {
	script []probeResult
	calls  int
}

type probeResult struct {
	probe harness.Probe
	err   error
}

func (t *probeTarget) Probe(ctx context.Context, loc harness.Locator) (harness.Probe, error) {
	i := t.calls
	if i >= len(t.script) {
		i = len(t.script) - 1
	}
	t.calls++
	return t.script[i].probe, t.script[i].err
}

func (t *probeTarget) Navigate(ctx context.Context, url string) error { return nil }
func (t *probeTarget) Click(ctx context.Context, loc harness.Locator) error {
	return nil
}
func (t *probeTarget) Fill(ctx context.Context, loc harness.Locator, value string) error {
	return nil
}
func (t *probeTarget) CaptureFull(ctx context.Context) ([]byte, error) { return nil, nil }
func (t *probeTarget) CaptureElement(ctx context.Context, loc harness.Locator) ([]byte, error) {
	return nil, nil
}

func TestAwaitConditionSatisfiedImmediately(t *testing.T) {
	target := &probeTarget{script: []probeResult{
		{probe: harness.Probe{Matches: 1, Visible: true}},
	}}

	step := harness.WaitFor(harness.WaitVisible, "svg", time.Second, true)
	outcome := harness.AwaitCondition(context.Background(), target, step, 10*time.Millisecond)

	if !outcome.Satisfied {
		t.Errorf("Expected wait to be satisfied")
	}
	if target.calls != 1 {
		t.Errorf("Expected exactly one probe, got %d", target.calls)
	}
}

func TestAwaitConditionSatisfiedAfterPolling(t *testing.T) {
	target := &probeTarget{script: []probeResult{
		{probe: harness.Probe{}},
		{probe: harness.Probe{}},
		{probe: harness.Probe{Matches: 1, Visible: true}},
	}}

	step := harness.WaitFor(harness.WaitVisible, "svg", time.Second, true)
	outcome := harness.AwaitCondition(context.Background(), target, step, time.Millisecond)

	if !outcome.Satisfied {
		t.Errorf("Expected wait to be satisfied after polling")
	}
	if target.calls != 3 {
		t.Errorf("Expected 3 probes, got %d", target.calls)
	}
}

func TestAwaitConditionTimesOut(t *testing.T) {
	target := &probeTarget{script: []probeResult{
		{probe: harness.Probe{}},
	}}

	step := harness.WaitFor(harness.WaitVisible, "svg", 30*time.Millisecond, true)
	outcome := harness.AwaitCondition(context.Background(), target, step, 5*time.Millisecond)

	if outcome.Satisfied {
		t.Errorf("Expected wait to time out")
	}
	if outcome.ElapsedMs < 30 {
		t.Errorf("Expected elapsed >= 30ms, got %d", outcome.ElapsedMs)
	}
}

func TestAwaitConditionProbeErrorsAreNotFatal(t *testing.T) {
	// A probe during navigation fails, the next poll succeeds.
	target := &probeTarget{script: []probeResult{
		{err: errors.New("execution context destroyed")},
		{probe: harness.Probe{Matches: 1, Visible: true}},
	}}

	step := harness.WaitFor(harness.WaitVisible, "svg", time.Second, true)
	outcome := harness.AwaitCondition(context.Background(), target, step, time.Millisecond)

	if !outcome.Satisfied {
		t.Errorf("Expected wait to recover from a probe error")
	}
}

func TestAwaitConditionAnyMatchIgnoresVisibility(t *testing.T) {
	target := &probeTarget{script: []probeResult{
		{probe: harness.Probe{Matches: 2, Visible: false}},
	}}

	step := harness.WaitFor(harness.WaitAnyMatch, "text=Video Loaded", time.Second, false)
	outcome := harness.AwaitCondition(context.Background(), target, step, time.Millisecond)

	if !outcome.Satisfied {
		t.Errorf("Expected any_match to hold for hidden matches")
	}
}

func TestAwaitConditionCanceledContext(t *testing.T) {
	target := &probeTarget{script: []probeResult{
		{probe: harness.Probe{}},
	}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	step := harness.WaitFor(harness.WaitVisible, "svg", time.Minute, true)

	start := time.Now()
	outcome := harness.AwaitCondition(ctx, target, step, 10*time.Millisecond)

	if outcome.Satisfied {
		t.Errorf("Expected canceled wait to be unsatisfied")
	}
	if time.Since(start) > time.Second {
		t.Errorf("Expected canceled wait to return promptly")
	}
}
