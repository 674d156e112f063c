package queue

import (
	"fmt"
	"log"
	"sync"
	"time"
)

// Store is an in-memory run store with TTL support
type Store struct {
	runs           map[string]*Run
	idempotencyMap map[string]string // idempotency_key -> run_id
	mu             sync.RWMutex
	cleanupTicker  *time.Ticker
	stopCleanup    chan struct{}
}

// NewStore creates a new run store
func NewStore() *Store {
	s := &Store{
		runs:           make(map[string]*Run),
		idempotencyMap: make(map[string]string),
		stopCleanup:    make(chan struct{}),
	}

	// Start TTL cleanup goroutine
	s.startCleanup()

	return s
}

func (s *Store) startCleanup() {
	s.cleanupTicker = time.NewTicker(1 * time.Hour)

	go func() {
		for {
			select {
			case <-s.cleanupTicker.C:
				s.cleanupExpired()
			case <-s.stopCleanup:
				s.cleanupTicker.Stop()
				return
			}
		}
	}()
}

func (s *Store) cleanupExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for runID, run := range s.runs {
		if run.IsExpired() {
			if run.IdempotencyKey != "" {
				delete(s.idempotencyMap, run.IdempotencyKey)
			}
			delete(s.runs, runID)
			deleted++
		}
	}

	if deleted > 0 {
		log.Printf("Cleaned up %d expired runs", deleted)
	}
}

// Stop stops the cleanup goroutine
func (s *Store) Stop() {
	close(s.stopCleanup)
}

// Save saves a run to the store
func (s *Store) Save(run *Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs[run.ID] = run

	if run.IdempotencyKey != "" {
		s.idempotencyMap[run.IdempotencyKey] = run.ID
	}

	return nil
}

// GetByIdempotencyKey retrieves a run by idempotency key
func (s *Store) GetByIdempotencyKey(key string) (*Run, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runID, exists := s.idempotencyMap[key]
	if !exists {
		return nil, false
	}

	run, exists := s.runs[runID]
	if !exists || run.IsExpired() {
		return nil, false
	}

	return run, true
}

// Get retrieves a run by ID
func (s *Store) Get(runID string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[runID]
	if !ok {
		return nil, fmt.Errorf("run not found: %s", runID)
	}

	if run.IsExpired() {
		return nil, fmt.Errorf("run expired: %s", runID)
	}

	return run, nil
}

// Update updates a run in the store
func (s *Store) Update(run *Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[run.ID]; !ok {
		return fmt.Errorf("run not found: %s", run.ID)
	}
	s.runs[run.ID] = run
	return nil
}

// Delete removes a run from the store
func (s *Store) Delete(runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.runs, runID)
	return nil
}

// List returns all runs
func (s *Store) List() ([]*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	runs := make([]*Run, 0, len(s.runs))
	for _, run := range s.runs {
		runs = append(runs, run)
	}
	return runs, nil
}
