package harness

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Scenario is a named step sequence plus the artifacts to capture once the
// sequence has run.
type Scenario struct {
	Name     string          `json:"name"`
	Steps    []Step          `json:"steps"`
	Captures []CaptureTarget `json:"captures,omitempty"`
}

// Validate checks the scenario and every step in it.
func (s Scenario) Validate() error {
	if len(s.Steps) == 0 {
		return fmt.Errorf("scenario has no steps")
	}
	for i, step := range s.Steps {
		if err := step.Validate(); err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}
	}
	for i, ct := range s.Captures {
		if ct.Path == "" {
			return fmt.Errorf("capture %d: path is required", i)
		}
		if ct.Scope == ScopeElement && ct.Locator.IsZero() {
			return fmt.Errorf("capture %d: element capture requires a locator", i)
		}
	}
	return nil
}

// LoadScenario reads a scenario from a JSON file.
func LoadScenario(path string) (Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Scenario{}, fmt.Errorf("failed to read scenario file: %w", err)
	}
	var sc Scenario
	if err := json.Unmarshal(data, &sc); err != nil {
		return Scenario{}, fmt.Errorf("failed to parse scenario file: %w", err)
	}
	if err := sc.Validate(); err != nil {
		return Scenario{}, fmt.Errorf("invalid scenario: %w", err)
	}
	return sc, nil
}

// SheetMusicScenario is the built-in verification fixture: load a YouTube
// source in the note-rendering app and confirm sheet music appears. The
// video URL seeds deterministic app behavior.
func SheetMusicScenario() Scenario {
	return Scenario{
		Name: "sheet-music",
		Steps: []Step{
			WaitFor(WaitVisible, "text=Music Note Creator", 30*time.Second, true),
			Click(`button[title='Use YouTube Source']`),
			FillText(`input[placeholder='Paste YouTube URL...']`, "https://www.youtube.com/watch?v=dQw4w9WgXcQ"),
			Click(`button[title='Load Video']`),
			// The toast is transient and may already be gone: best-effort.
			WaitFor(WaitAnyMatch, "text=Video Loaded", 15*time.Second, false),
			WaitFor(WaitVisible, "svg", 15*time.Second, true),
		},
		Captures: []CaptureTarget{
			FullPageCapture("sheet_music_full.png"),
			ElementCapture(`div.w-full.h-\[400px\]`, "sheet_music_detail.png"),
		},
	}
}
