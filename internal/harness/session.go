package harness

import (
	"context"
	"fmt"
	"log"
)

// State is a session controller state.
type State string

const (
	StateIdle       State = "idle"
	StateLaunching  State = "launching"
	StateConnecting State = "connecting"
	StateRunning    State = "running"
	StateCapturing  State = "capturing"
	StateClosed     State = "closed"
	StateFailed     State = "failed"
)

// Report is the definite outcome of one verification run. A failed run
// still lists whatever artifacts were capturable.
type Report struct {
	Scenario        string          `json:"scenario"`
	State           State           `json:"state"`
	ConnectAttempts int             `json:"connect_attempts"`
	Steps           []StepResult    `json:"steps,omitempty"`
	Captures        []CaptureResult `json:"captures,omitempty"`
	Error           string          `json:"error,omitempty"`
}

// Failed reports whether the run ended in the failed state.
func (r *Report) Failed() bool {
	return r.State == StateFailed
}

// Controller composes browser lifecycle, connection establishment, step
// driving, and artifact capture into one verification run.
type Controller struct {
	browser Browser
	cfg     RunConfig
	store   *Store
	onState func(State)
}

// NewController creates a controller for one run.
func NewController(browser Browser, cfg RunConfig) *Controller {
	return &Controller{
		browser: browser,
		cfg:     cfg,
		store:   NewStore(cfg.ArtifactDir),
	}
}

// OnStateChange registers an observer called on every state transition.
func (c *Controller) OnStateChange(fn func(State)) {
	c.onState = fn
}

// Run executes the scenario. The browser handle, once opened, is released
// exactly once before Run returns, regardless of where a failure occurred.
func (c *Controller) Run(ctx context.Context, sc Scenario) *Report {
	report := &Report{Scenario: sc.Name, State: StateIdle}
	c.setState(report, StateLaunching)

	if err := c.browser.Start(); err != nil {
		return c.fail(report, fmt.Errorf("failed to launch browser: %w", err))
	}
	defer func() {
		if err := c.browser.Stop(); err != nil {
			log.Printf("Warning: failed to release browser: %v", err)
		}
	}()

	target, err := c.browser.OpenTarget(ctx)
	if err != nil {
		return c.fail(report, fmt.Errorf("failed to open page: %w", err))
	}

	c.setState(report, StateConnecting)
	attempts, err := Establish(ctx, target, c.cfg)
	report.ConnectAttempts = attempts
	if err != nil {
		// The page never showed target content, so there is no
		// evidence worth capturing.
		return c.fail(report, err)
	}

	c.setState(report, StateRunning)
	results, stepErr := NewDriver(target, c.cfg).Run(ctx, sc.Steps)
	report.Steps = results

	// Capture runs even after a fatal step failure so the failure state
	// itself is preserved as evidence.
	c.setState(report, StateCapturing)
	for _, ct := range sc.Captures {
		report.Captures = append(report.Captures, c.store.Capture(ctx, target, ct))
	}

	if stepErr != nil {
		return c.fail(report, stepErr)
	}

	c.setState(report, StateClosed)
	return report
}

func (c *Controller) fail(report *Report, err error) *Report {
	log.Printf("Run failed: %v", err)
	report.Error = err.Error()
	c.setState(report, StateFailed)
	return report
}

func (c *Controller) setState(report *Report, s State) {
	report.State = s
	if c.onState != nil {
		c.onState(s)
	}
}
