package harness

import (
	"context"
	"fmt"
	"time"
)

// Default values for run configuration, matching the fixture verification
// session the harness was built around.
const (
	DefaultTargetHost        = "127.0.0.1"
	DefaultTargetPort        = 3000
	DefaultConnectRetries    = 10
	DefaultConnectRetryDelay = 2 * time.Second
	DefaultActionTimeout     = 15 * time.Second
	DefaultPollInterval      = 100 * time.Millisecond
	DefaultArtifactDir       = "./verification"
)

// RunConfig holds the immutable parameters of one verification run.
type RunConfig struct {
	TargetHost        string
	TargetPort        int
	ConnectRetries    int
	ConnectRetryDelay time.Duration
	ActionTimeout     time.Duration
	PollInterval      time.Duration
	ArtifactDir       string
}

// DefaultRunConfig returns the default run configuration.
func DefaultRunConfig() RunConfig {
	return RunConfig{
		TargetHost:        DefaultTargetHost,
		TargetPort:        DefaultTargetPort,
		ConnectRetries:    DefaultConnectRetries,
		ConnectRetryDelay: DefaultConnectRetryDelay,
		ActionTimeout:     DefaultActionTimeout,
		PollInterval:      DefaultPollInterval,
		ArtifactDir:       DefaultArtifactDir,
	}
}

// TargetURL returns the root URL of the target under test.
func (c RunConfig) TargetURL() string {
	return fmt.Sprintf("http://%s:%d", c.TargetHost, c.TargetPort)
}

// Action identifies a step variant.
type Action string

const (
	ActionNavigate Action = "navigate"
	ActionClick    Action = "click"
	ActionFill     Action = "fill"
	ActionWait     Action = "wait"
)

// WaitKind is the condition a wait step polls for.
type WaitKind string

const (
	// WaitVisible holds when at least one match has a non-zero rendered box.
	WaitVisible WaitKind = "visible"
	// WaitAnyMatch holds when at least one element matches, visible or not.
	WaitAnyMatch WaitKind = "any_match"
)

// Step is one simulated user action. Steps execute strictly in order and
// each is consumed exactly once; only the connection stage ever retries.
type Step struct {
	Action      Action   `json:"action"`
	URL         string   `json:"url,omitempty"`
	Locator     Locator  `json:"locator,omitzero"`
	Value       string   `json:"value,omitempty"`
	Condition   WaitKind `json:"condition,omitempty"`
	TimeoutMs   int      `json:"timeout_ms,omitempty"`
	LoadBearing bool     `json:"load_bearing,omitempty"`
}

// Navigate returns a step that loads a URL. It does not wait for any
// post-load condition; waiting is always a separate, explicit step.
func Navigate(url string) Step {
	return Step{Action: ActionNavigate, URL: url}
}

// Click returns a step that clicks the element matching the locator.
func Click(locator string) Step {
	return Step{Action: ActionClick, Locator: ParseLocator(locator)}
}

// FillText returns a step that replaces an input element's content.
func FillText(locator, value string) Step {
	return Step{Action: ActionFill, Locator: ParseLocator(locator), Value: value}
}

// WaitFor returns a step that polls for a condition. Load-bearing waits
// abort the remaining sequence on timeout; best-effort waits do not.
func WaitFor(kind WaitKind, locator string, timeout time.Duration, loadBearing bool) Step {
	return Step{
		Action:      ActionWait,
		Condition:   kind,
		Locator:     ParseLocator(locator),
		TimeoutMs:   int(timeout.Milliseconds()),
		LoadBearing: loadBearing,
	}
}

// Timeout returns the wait timeout as a duration.
func (s Step) Timeout() time.Duration {
	if s.TimeoutMs <= 0 {
		return DefaultActionTimeout
	}
	return time.Duration(s.TimeoutMs) * time.Millisecond
}

// Validate checks that the step is well-formed.
func (s Step) Validate() error {
	switch s.Action {
	case ActionNavigate:
		if s.URL == "" {
			return fmt.Errorf("navigate step requires a url")
		}
	case ActionClick:
		if s.Locator.IsZero() {
			return fmt.Errorf("click step requires a locator")
		}
	case ActionFill:
		if s.Locator.IsZero() {
			return fmt.Errorf("fill step requires a locator")
		}
	case ActionWait:
		if s.Locator.IsZero() {
			return fmt.Errorf("wait step requires a locator")
		}
		if s.Condition != WaitVisible && s.Condition != WaitAnyMatch {
			return fmt.Errorf("unknown wait condition: %q", s.Condition)
		}
	default:
		return fmt.Errorf("unknown step action: %q", s.Action)
	}
	return nil
}

// WaitOutcome is the definite result of a wait. Waits never escalate past
// the harness boundary on their own; callers branch on Satisfied.
type WaitOutcome struct {
	Satisfied bool  `json:"satisfied"`
	ElapsedMs int64 `json:"elapsed_ms"`
}

// Probe is one observation of the DOM against a locator.
type Probe struct {
	Matches int
	Visible bool
}

// Target is the single live page under test. The harness is a pure client
// of its DOM; implementations must not retry on their own.
type Target interface {
	Navigate(ctx context.Context, url string) error
	Probe(ctx context.Context, loc Locator) (Probe, error)
	Click(ctx context.Context, loc Locator) error
	Fill(ctx context.Context, loc Locator, value string) error
	CaptureFull(ctx context.Context) ([]byte, error)
	CaptureElement(ctx context.Context, loc Locator) ([]byte, error)
}

// Browser owns the browser process behind a run. It is acquired once per
// run and released exactly once on every exit path.
type Browser interface {
	Start() error
	OpenTarget(ctx context.Context) (Target, error)
	Stop() error
}
