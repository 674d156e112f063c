package harness

import (
	"encoding/json"
	"strings"
)

// LocatorKind distinguishes structural and text-based match expressions.
type LocatorKind string

const (
	// LocatorCSS matches elements by CSS selector.
	LocatorCSS LocatorKind = "css"
	// LocatorText matches elements whose rendered text contains a value.
	LocatorText LocatorKind = "text"
)

// Locator is an expression used to find DOM elements on the target page.
type Locator struct {
	Kind  LocatorKind
	Value string
}

// CSS returns a structural locator for a CSS selector.
func CSS(selector string) Locator {
	return Locator{Kind: LocatorCSS, Value: selector}
}

// Text returns a text-content locator.
func Text(text string) Locator {
	return Locator{Kind: LocatorText, Value: text}
}

// ParseLocator parses a locator expression. Expressions prefixed with
// "text=" match by text content, everything else is a CSS selector.
func ParseLocator(expr string) Locator {
	if v, ok := strings.CutPrefix(expr, "text="); ok {
		return Text(v)
	}
	return CSS(expr)
}

// IsZero reports whether the locator is unset.
func (l Locator) IsZero() bool {
	return l.Value == ""
}

func (l Locator) String() string {
	if l.Kind == LocatorText {
		return "text=" + l.Value
	}
	return l.Value
}

// MarshalJSON encodes the locator in its expression form.
func (l Locator) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

// UnmarshalJSON decodes a locator from its expression form.
func (l *Locator) UnmarshalJSON(data []byte) error {
	var expr string
	if err := json.Unmarshal(data, &expr); err != nil {
		return err
	}
	*l = ParseLocator(expr)
	return nil
}
