package harness

import (
	"context"
	"fmt"
	"log"
)

// StepResult records what happened to one executed step.
type StepResult struct {
	Index  int          `json:"index"`
	Action Action       `json:"action"`
	Wait   *WaitOutcome `json:"wait,omitempty"`
	Error  string       `json:"error,omitempty"`
}

// Driver executes a step sequence against the current page, one simulated
// user acting on one page at a time. A step never begins before the
// previous step's effect has settled.
type Driver struct {
	target Target
	cfg    RunConfig
}

// NewDriver creates a driver bound to a live target.
func NewDriver(target Target, cfg RunConfig) *Driver {
	return &Driver{target: target, cfg: cfg}
}

// Run executes the steps in order. It stops at the first fatal condition
// (a missing click/fill element, or a load-bearing wait that timed out)
// and returns the results gathered so far along with the fatal error.
// Best-effort wait timeouts are logged and the sequence continues.
func (d *Driver) Run(ctx context.Context, steps []Step) ([]StepResult, error) {
	results := make([]StepResult, 0, len(steps))

	for i, step := range steps {
		result := StepResult{Index: i, Action: step.Action}

		err := d.execute(ctx, i, step, &result)
		if err != nil {
			result.Error = err.Error()
			results = append(results, result)
			return results, err
		}

		results = append(results, result)
	}

	return results, nil
}

func (d *Driver) execute(ctx context.Context, index int, step Step, result *StepResult) error {
	switch step.Action {
	case ActionNavigate:
		return d.withTimeout(ctx, func(ctx context.Context) error {
			return d.target.Navigate(ctx, step.URL)
		})

	case ActionClick:
		// No implicit retry: a preceding wait step must have settled
		// visibility if the element appears asynchronously.
		return d.withTimeout(ctx, func(ctx context.Context) error {
			if err := d.target.Click(ctx, step.Locator); err != nil {
				return fmt.Errorf("step %d: click %s: %w", index, step.Locator, err)
			}
			return nil
		})

	case ActionFill:
		return d.withTimeout(ctx, func(ctx context.Context) error {
			if err := d.target.Fill(ctx, step.Locator, step.Value); err != nil {
				return fmt.Errorf("step %d: fill %s: %w", index, step.Locator, err)
			}
			return nil
		})

	case ActionWait:
		outcome := AwaitCondition(ctx, d.target, step, d.cfg.PollInterval)
		result.Wait = &outcome

		if outcome.Satisfied {
			log.Printf("Wait for %s (%s) satisfied after %dms", step.Locator, step.Condition, outcome.ElapsedMs)
			return nil
		}
		if step.LoadBearing {
			return fmt.Errorf("step %d: load-bearing wait for %s (%s): %w",
				index, step.Locator, step.Condition, ErrWaitTimedOut)
		}
		log.Printf("Wait for %s (%s) timed out after %dms, continuing", step.Locator, step.Condition, outcome.ElapsedMs)
		return nil

	default:
		return fmt.Errorf("step %d: unknown action: %q", index, step.Action)
	}
}

func (d *Driver) withTimeout(ctx context.Context, fn func(context.Context) error) error {
	if d.cfg.ActionTimeout <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, d.cfg.ActionTimeout)
	defer cancel()
	return fn(ctx)
}
