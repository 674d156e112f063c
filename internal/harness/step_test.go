package harness_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ahrdadan/verq/internal/harness"
)

func TestParseLocator(t *testing.T) {
	loc := harness.ParseLocator("text=Music Note Creator")
	if loc.Kind != harness.LocatorText || loc.Value != "Music Note Creator" {
		t.Errorf("Unexpected text locator: %+v", loc)
	}

	loc = harness.ParseLocator("button[title='Load Video']")
	if loc.Kind != harness.LocatorCSS || loc.Value != "button[title='Load Video']" {
		t.Errorf("Unexpected css locator: %+v", loc)
	}

	if loc.String() != "button[title='Load Video']" {
		t.Errorf("Unexpected css expression: %s", loc)
	}
	if harness.Text("Ready").String() != "text=Ready" {
		t.Errorf("Unexpected text expression: %s", harness.Text("Ready"))
	}
}

func TestLocatorJSONRoundTrip(t *testing.T) {
	step := harness.Click("text=Load Video")

	data, err := json.Marshal(step)
	if err != nil {
		t.Fatalf("Failed to marshal step: %v", err)
	}

	var decoded harness.Step
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Failed to unmarshal step: %v", err)
	}
	if decoded.Locator.Kind != harness.LocatorText || decoded.Locator.Value != "Load Video" {
		t.Errorf("Locator lost in round trip: %+v", decoded.Locator)
	}
}

func TestStepValidate(t *testing.T) {
	valid := []harness.Step{
		harness.Navigate("http://127.0.0.1:3000"),
		harness.Click("button.go"),
		harness.FillText("input", "value"),
		harness.WaitFor(harness.WaitVisible, "svg", time.Second, true),
	}
	for i, step := range valid {
		if err := step.Validate(); err != nil {
			t.Errorf("Step %d unexpectedly invalid: %v", i, err)
		}
	}

	invalid := []harness.Step{
		{Action: harness.ActionNavigate},
		{Action: harness.ActionClick},
		{Action: harness.ActionFill},
		{Action: harness.ActionWait, Locator: harness.CSS("svg"), Condition: "hidden"},
		{Action: "hover"},
	}
	for i, step := range invalid {
		if err := step.Validate(); err == nil {
			t.Errorf("Step %d unexpectedly valid: %+v", i, step)
		}
	}
}

func TestStepTimeoutDefault(t *testing.T) {
	step := harness.Step{Action: harness.ActionWait}
	if step.Timeout() != harness.DefaultActionTimeout {
		t.Errorf("Expected default timeout, got %s", step.Timeout())
	}

	step.TimeoutMs = 2500
	if step.Timeout() != 2500*time.Millisecond {
		t.Errorf("Expected 2.5s timeout, got %s", step.Timeout())
	}
}

func TestScenarioValidate(t *testing.T) {
	if err := (harness.Scenario{Name: "empty"}).Validate(); err == nil {
		t.Errorf("Expected empty scenario to be invalid")
	}

	sc := harness.Scenario{
		Name:  "bad-capture",
		Steps: []harness.Step{harness.Click("button.go")},
		Captures: []harness.CaptureTarget{
			{Scope: harness.ScopeElement, Path: "detail.png"},
		},
	}
	if err := sc.Validate(); err == nil {
		t.Errorf("Expected element capture without locator to be invalid")
	}
}

func TestSheetMusicScenarioIsValid(t *testing.T) {
	sc := harness.SheetMusicScenario()
	if err := sc.Validate(); err != nil {
		t.Fatalf("Built-in fixture must validate: %v", err)
	}
	if len(sc.Steps) != 6 {
		t.Errorf("Expected 6 steps, got %d", len(sc.Steps))
	}
	if len(sc.Captures) != 2 {
		t.Errorf("Expected 2 captures, got %d", len(sc.Captures))
	}
}

func TestLoadScenario(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenario.json")
	content := `{
		"name": "smoke",
		"steps": [
			{"action": "wait", "condition": "visible", "locator": "text=Ready", "timeout_ms": 5000, "load_bearing": true},
			{"action": "click", "locator": "button.go"}
		],
		"captures": [
			{"scope": "full_page", "path": "smoke.png"}
		]
	}`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write scenario file: %v", err)
	}

	sc, err := harness.LoadScenario(path)
	if err != nil {
		t.Fatalf("Failed to load scenario: %v", err)
	}
	if sc.Name != "smoke" {
		t.Errorf("Unexpected name: %s", sc.Name)
	}
	if sc.Steps[0].Locator.Kind != harness.LocatorText {
		t.Errorf("Expected text locator, got %+v", sc.Steps[0].Locator)
	}
	if !sc.Steps[0].LoadBearing {
		t.Errorf("Expected load-bearing wait")
	}
}

func TestLoadScenarioRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenario.json")
	if err := os.WriteFile(path, []byte(`{"name": "empty", "steps": []}`), 0644); err != nil {
		t.Fatalf("Failed to write scenario file: %v", err)
	}

	if _, err := harness.LoadScenario(path); err == nil {
		t.Errorf("Expected invalid scenario to be rejected")
	}
}
