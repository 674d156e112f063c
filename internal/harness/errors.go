package harness

import "errors"

// Sentinel errors for the harness failure taxonomy. Fatal conditions wrap
// one of these so callers can branch with errors.Is.
var (
	// ErrTargetUnreachable means every connection attempt was exhausted
	// without the target application responding.
	ErrTargetUnreachable = errors.New("target unreachable")

	// ErrElementNotFound means a click or fill target did not match any
	// element at invocation time.
	ErrElementNotFound = errors.New("element not found")

	// ErrWaitTimedOut means a load-bearing wait condition did not hold
	// within its timeout.
	ErrWaitTimedOut = errors.New("wait timed out")
)
