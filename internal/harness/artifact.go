package harness

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
)

// CaptureScope selects what a capture covers.
type CaptureScope string

const (
	// ScopeFullPage captures the whole page.
	ScopeFullPage CaptureScope = "full_page"
	// ScopeElement captures a single element, best-effort.
	ScopeElement CaptureScope = "element"
)

// CaptureTarget describes one screenshot to take. Element-scoped captures
// are diagnostic aids, not assertions: a locator with zero matches skips
// the capture instead of failing the run.
type CaptureTarget struct {
	Scope   CaptureScope `json:"scope"`
	Locator Locator      `json:"locator,omitzero"`
	Path    string       `json:"path"`
}

// FullPageCapture returns a capture of the whole page.
func FullPageCapture(path string) CaptureTarget {
	return CaptureTarget{Scope: ScopeFullPage, Path: path}
}

// ElementCapture returns a best-effort capture of one element.
func ElementCapture(locator, path string) CaptureTarget {
	return CaptureTarget{Scope: ScopeElement, Locator: ParseLocator(locator), Path: path}
}

// CaptureResult is the explicit outcome of one capture attempt.
type CaptureResult struct {
	Path    string `json:"path"`
	Written bool   `json:"written"`
	Bytes   int    `json:"bytes,omitempty"`
	Skipped bool   `json:"skipped,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Store writes screenshot artifacts to fixed paths under a base directory,
// overwriting files from prior runs.
type Store struct {
	dir string
}

// NewStore creates an artifact store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the store's base directory.
func (s *Store) Dir() string {
	return s.dir
}

// Capture takes one screenshot and writes it. Element captures whose
// locator resolves to zero elements are skipped and logged, never fatal.
func (s *Store) Capture(ctx context.Context, target Target, ct CaptureTarget) CaptureResult {
	result := CaptureResult{Path: ct.Path}

	var data []byte
	var err error
	switch ct.Scope {
	case ScopeElement:
		data, err = target.CaptureElement(ctx, ct.Locator)
		if errors.Is(err, ErrElementNotFound) {
			result.Skipped = true
			log.Printf("Capture %s skipped: no element matches %s", ct.Path, ct.Locator)
			return result
		}
	default:
		data, err = target.CaptureFull(ctx)
	}
	if err != nil {
		result.Error = err.Error()
		log.Printf("Capture %s failed: %v", ct.Path, err)
		return result
	}

	if err := s.write(ct.Path, data); err != nil {
		result.Error = err.Error()
		log.Printf("Capture %s failed: %v", ct.Path, err)
		return result
	}

	result.Written = true
	result.Bytes = len(data)
	log.Printf("Capture written: %s (%d bytes)", filepath.Join(s.dir, ct.Path), len(data))
	return result
}

func (s *Store) write(name string, data []byte) error {
	path := filepath.Join(s.dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create artifact directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write artifact: %w", err)
	}
	return nil
}
