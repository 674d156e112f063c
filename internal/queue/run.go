package queue

import (
	"encoding/json"
	"time"

	"github.com/ahrdadan/verq/internal/harness"
	"github.com/google/uuid"
)

// Default values for run configuration
const (
	// DefaultRunTimeout bounds a whole verification run, including the
	// connection retry window.
	DefaultRunTimeout = 2 * time.Minute
	DefaultMaxRetries = 3
	DefaultResultTTL  = 7 * 24 * time.Hour // 7 days
	DefaultRetryDelay = 5 * time.Second
	MaxRetryDelay     = 5 * time.Minute
)

// RunStatus represents the status of a verification run
type RunStatus string

const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCanceled  RunStatus = "canceled"
	RunStatusRetrying  RunStatus = "retrying"
)

// NotifyConfig holds notification settings for a run
type NotifyConfig struct {
	WebhookURL    string `json:"webhook_url,omitempty"`
	WebhookSecret string `json:"webhook_secret,omitempty"` // For HMAC signature
	WebSocket     bool   `json:"websocket,omitempty"`
}

// RetryConfig holds retry settings for a run
type RetryConfig struct {
	MaxRetries    int     `json:"max_retries"`    // Maximum retry attempts (default: 3)
	RetryDelay    int     `json:"retry_delay"`    // Initial delay between retries in seconds
	BackoffFactor float64 `json:"backoff_factor"` // Exponential backoff multiplier (default: 2.0)
}

// RunRequest describes one requested verification run. An empty scenario
// runs the built-in fixture. Target fields override the server defaults.
type RunRequest struct {
	Scenario            harness.Scenario `json:"scenario,omitzero"`
	TargetHost          string           `json:"target_host,omitempty"`
	TargetPort          int              `json:"target_port,omitempty"`
	ConnectRetries      int              `json:"connect_retries,omitempty"`
	ConnectRetryDelayMs int              `json:"connect_retry_delay_ms,omitempty"`
	ActionTimeoutMs     int              `json:"action_timeout_ms,omitempty"`
	Timeout             int              `json:"timeout,omitempty"` // whole-run timeout in seconds
	Notify              *NotifyConfig    `json:"notify,omitempty"`
	Retry               *RetryConfig     `json:"retry,omitempty"`
	IdempotencyKey      string           `json:"idempotency_key,omitempty"`
	Priority            int              `json:"priority,omitempty"`
	ResultTTL           int              `json:"result_ttl,omitempty"` // seconds (default: 7 days)
}

// Run represents a queued verification run
type Run struct {
	ID             string        `json:"run_id"`
	Status         RunStatus     `json:"status"`
	Progress       int           `json:"progress"`
	Stage          string        `json:"stage,omitempty"` // session controller state
	Message        string        `json:"message,omitempty"`
	Request        RunRequest    `json:"request"`
	Result         interface{}   `json:"result,omitempty"`
	Error          string        `json:"error,omitempty"`
	CreatedAt      int64         `json:"created_at"`
	UpdatedAt      int64         `json:"updated_at"`
	StartedAt      int64         `json:"started_at,omitempty"`
	CompletedAt    int64         `json:"completed_at,omitempty"`
	ExpiresAt      int64         `json:"expires_at,omitempty"` // When result will be deleted
	Notify         *NotifyConfig `json:"notify,omitempty"`
	RetryCount     int           `json:"retry_count"`
	MaxRetries     int           `json:"max_retries"`
	NextRetryAt    int64         `json:"next_retry_at,omitempty"`
	LastError      string        `json:"last_error,omitempty"`
	IdempotencyKey string        `json:"idempotency_key,omitempty"`
	Priority       int           `json:"priority"`
	Timeout        int           `json:"timeout"` // Run timeout in seconds
}

// NewRun creates a new run from a request
func NewRun(req RunRequest) *Run {
	now := time.Now().Unix()

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = int(DefaultRunTimeout.Seconds())
	}

	maxRetries := DefaultMaxRetries
	if req.Retry != nil && req.Retry.MaxRetries > 0 {
		maxRetries = req.Retry.MaxRetries
	}

	resultTTL := DefaultResultTTL
	if req.ResultTTL > 0 {
		resultTTL = time.Duration(req.ResultTTL) * time.Second
	}
	expiresAt := time.Now().Add(resultTTL).Unix()

	return &Run{
		ID:             generateRunID(),
		Status:         RunStatusQueued,
		Progress:       0,
		Request:        req,
		CreatedAt:      now,
		UpdatedAt:      now,
		ExpiresAt:      expiresAt,
		Notify:         req.Notify,
		MaxRetries:     maxRetries,
		RetryCount:     0,
		IdempotencyKey: req.IdempotencyKey,
		Priority:       req.Priority,
		Timeout:        timeout,
	}
}

// SetStatus updates the run status
func (r *Run) SetStatus(status RunStatus) {
	r.Status = status
	r.UpdatedAt = time.Now().Unix()

	if status == RunStatusRunning && r.StartedAt == 0 {
		r.StartedAt = time.Now().Unix()
	}

	if status == RunStatusSucceeded || status == RunStatusFailed || status == RunStatusCanceled {
		r.CompletedAt = time.Now().Unix()
	}
}

// SetProgress updates the run progress
func (r *Run) SetProgress(stage string, progress int, message string) {
	r.Stage = stage
	r.Progress = progress
	r.Message = message
	r.UpdatedAt = time.Now().Unix()
}

// SetResult sets the run result
func (r *Run) SetResult(result interface{}) {
	r.Result = result
	r.Status = RunStatusSucceeded
	r.Progress = 100
	r.CompletedAt = time.Now().Unix()
	r.UpdatedAt = time.Now().Unix()
}

// SetError sets the run error. The result is left in place so a failed run
// still exposes whatever evidence was captured.
func (r *Run) SetError(err string) {
	r.Error = err
	r.LastError = err
	r.Status = RunStatusFailed
	r.CompletedAt = time.Now().Unix()
	r.UpdatedAt = time.Now().Unix()
}

// CanRetry returns true if the run can be retried
func (r *Run) CanRetry() bool {
	return r.RetryCount < r.MaxRetries
}

// PrepareRetry prepares the run for retry
func (r *Run) PrepareRetry() {
	r.RetryCount++
	r.Status = RunStatusRetrying

	backoffFactor := 2.0
	if r.Request.Retry != nil && r.Request.Retry.BackoffFactor > 0 {
		backoffFactor = r.Request.Retry.BackoffFactor
	}

	baseDelay := DefaultRetryDelay
	if r.Request.Retry != nil && r.Request.Retry.RetryDelay > 0 {
		baseDelay = time.Duration(r.Request.Retry.RetryDelay) * time.Second
	}

	// Delay grows as baseDelay * (backoffFactor ^ (retryCount-1))
	delay := baseDelay
	for i := 1; i < r.RetryCount; i++ {
		delay = time.Duration(float64(delay) * backoffFactor)
	}

	if delay > MaxRetryDelay {
		delay = MaxRetryDelay
	}

	r.NextRetryAt = time.Now().Add(delay).Unix()
	r.UpdatedAt = time.Now().Unix()
}

// IsExpired checks if the run result has expired
func (r *Run) IsExpired() bool {
	if r.ExpiresAt == 0 {
		return false
	}
	return time.Now().Unix() > r.ExpiresAt
}

// GetTimeoutDuration returns the run timeout as a time.Duration
func (r *Run) GetTimeoutDuration() time.Duration {
	if r.Timeout <= 0 {
		return DefaultRunTimeout
	}
	return time.Duration(r.Timeout) * time.Second
}

// ToJSON serializes a run to JSON
func (r *Run) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}

// FromJSON deserializes a run from JSON
func FromJSON(data []byte) (*Run, error) {
	var run Run
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// RunResultResponse represents a run result response
type RunResultResponse struct {
	RunID  string      `json:"run_id"`
	Status RunStatus   `json:"status"`
	Result interface{} `json:"result,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// RunCreatedResponse represents the response when a run is created
type RunCreatedResponse struct {
	RunID     string    `json:"run_id"`
	Status    RunStatus `json:"status"`
	StatusURL string    `json:"status_url"`
	ResultURL string    `json:"result_url"`
	Events    struct {
		SSEURL string `json:"sse_url"`
		WSURL  string `json:"ws_url"`
	} `json:"events"`
}

func generateRunID() string {
	return "run_" + uuid.New().String()[:8]
}
