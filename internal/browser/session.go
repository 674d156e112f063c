package browser

import (
	"context"
	"fmt"
	"sync"

	"github.com/ahrdadan/verq/internal/harness"
)

// Session scopes one verification run onto a shared browser. Stop releases
// the run's page but leaves the browser process running for the next run;
// the manager itself is stopped at service shutdown.
type Session struct {
	m      *Manager
	mu     sync.Mutex
	target *Target
	closed bool
}

// Session returns a run-scoped handle over the shared browser.
func (m *Manager) Session() *Session {
	return &Session{m: m}
}

// Start makes sure the shared browser is up.
func (s *Session) Start() error {
	return s.m.Start()
}

// OpenTarget creates the run's page.
func (s *Session) OpenTarget(ctx context.Context) (harness.Target, error) {
	target, err := s.m.OpenTarget(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.target = target.(*Target)
	s.mu.Unlock()

	return target, nil
}

// Stop releases the run's page exactly once.
func (s *Session) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if s.target == nil {
		return nil
	}
	if err := s.target.Close(); err != nil {
		return fmt.Errorf("failed to close page: %w", err)
	}
	return nil
}
