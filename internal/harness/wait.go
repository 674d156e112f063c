package harness

import (
	"context"
	"time"
)

// AwaitCondition polls the target's DOM until the step's condition holds or
// its timeout elapses, checking every poll interval. It always returns a
// definite outcome: probe errors during a navigation or re-render count as
// unmatched polls, never as failures.
func AwaitCondition(ctx context.Context, target Target, step Step, poll time.Duration) WaitOutcome {
	if poll <= 0 {
		poll = DefaultPollInterval
	}

	start := time.Now()
	deadline := start.Add(step.Timeout())

	for {
		probe, err := target.Probe(ctx, step.Locator)
		if err == nil && conditionHolds(step.Condition, probe) {
			return WaitOutcome{Satisfied: true, ElapsedMs: time.Since(start).Milliseconds()}
		}

		remaining := time.Until(deadline)
		if remaining <= 0 || ctx.Err() != nil {
			return WaitOutcome{Satisfied: false, ElapsedMs: time.Since(start).Milliseconds()}
		}
		if remaining < poll {
			sleep(ctx, remaining)
		} else {
			sleep(ctx, poll)
		}
	}
}

func conditionHolds(kind WaitKind, probe Probe) bool {
	switch kind {
	case WaitVisible:
		return probe.Visible
	case WaitAnyMatch:
		return probe.Matches > 0
	}
	return false
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
