package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"path/filepath"
	"time"

	"github.com/ahrdadan/verq/internal/harness"
	"github.com/ahrdadan/verq/internal/security"
)

// BrowserFactory hands out a fresh browser handle for one verification
// run. The handle is owned by that run's session controller, which
// releases it on every exit path.
type BrowserFactory func() harness.Browser

// VerifyProcessor executes verification runs from the queue
type VerifyProcessor struct {
	browsers BrowserFactory
	defaults harness.RunConfig
	baseURL  string
}

// NewVerifyProcessor creates a new verification processor
func NewVerifyProcessor(browsers BrowserFactory, defaults harness.RunConfig, baseURL string) *VerifyProcessor {
	return &VerifyProcessor{
		browsers: browsers,
		defaults: defaults,
		baseURL:  baseURL,
	}
}

// stagePercent maps session controller states to coarse progress.
func stagePercent(s harness.State) int {
	switch s {
	case harness.StateLaunching:
		return 10
	case harness.StateConnecting:
		return 25
	case harness.StateRunning:
		return 50
	case harness.StateCapturing:
		return 85
	case harness.StateClosed:
		return 100
	}
	return 0
}

// Verify runs a scenario synchronously against the default artifact
// directory. The report is returned whether or not the run failed; err is
// reserved for requests that could not be executed at all.
func (p *VerifyProcessor) Verify(ctx context.Context, req RunRequest) (*harness.Report, error) {
	sc := p.scenario(req)
	if err := sc.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	controller := harness.NewController(p.browsers(), p.config(req, ""))
	return controller.Run(ctx, sc), nil
}

// Process executes one queued verification run. Artifacts land in a
// per-run directory so concurrent and repeated runs never clobber each
// other's evidence.
func (p *VerifyProcessor) Process(ctx context.Context, run *Run, progress func(stage string, percent int, message string)) (interface{}, error) {
	sc := p.scenario(run.Request)
	if err := sc.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	controller := harness.NewController(p.browsers(), p.config(run.Request, run.ID))
	controller.OnStateChange(func(s harness.State) {
		progress(string(s), stagePercent(s), fmt.Sprintf("Session %s", s))
	})

	report := controller.Run(ctx, sc)

	if report.Failed() {
		if run.Notify != nil && run.Notify.WebhookURL != "" {
			go sendWebhook(run, "failed")
		}
		return report, fmt.Errorf("verification failed: %s", report.Error)
	}

	if run.Notify != nil && run.Notify.WebhookURL != "" {
		go sendWebhook(run, "succeeded")
	}

	return report, nil
}

func (p *VerifyProcessor) scenario(req RunRequest) harness.Scenario {
	if len(req.Scenario.Steps) == 0 {
		return harness.SheetMusicScenario()
	}
	return req.Scenario
}

func (p *VerifyProcessor) config(req RunRequest, runID string) harness.RunConfig {
	cfg := p.defaults

	if req.TargetHost != "" {
		cfg.TargetHost = req.TargetHost
	}
	if req.TargetPort > 0 {
		cfg.TargetPort = req.TargetPort
	}
	if req.ConnectRetries > 0 {
		cfg.ConnectRetries = req.ConnectRetries
	}
	if req.ConnectRetryDelayMs > 0 {
		cfg.ConnectRetryDelay = time.Duration(req.ConnectRetryDelayMs) * time.Millisecond
	}
	if req.ActionTimeoutMs > 0 {
		cfg.ActionTimeout = time.Duration(req.ActionTimeoutMs) * time.Millisecond
	}
	if runID != "" {
		cfg.ArtifactDir = filepath.Join(cfg.ArtifactDir, runID)
	}

	return cfg
}

// sendWebhook sends a webhook notification, signed when a secret is set.
func sendWebhook(run *Run, status string) {
	payload := map[string]interface{}{
		"run_id":      run.ID,
		"status":      status,
		"result_url":  fmt.Sprintf("/verq/runs/%s/result", run.ID),
		"finished_at": time.Now().Unix(),
	}

	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("Failed to marshal webhook payload: %v", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, run.Notify.WebhookURL, bytes.NewReader(data))
	if err != nil {
		log.Printf("Failed to create webhook request: %v", err)
		return
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Verq-Event", "run."+status)
	if run.Notify.WebhookSecret != "" {
		req.Header.Set("X-Verq-Signature", security.GenerateWebhookSignature(data, run.Notify.WebhookSecret))
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Printf("Failed to send webhook: %v", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		log.Printf("Webhook returned error status: %d", resp.StatusCode)
	}
}
