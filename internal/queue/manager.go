package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

const (
	// StreamName is the name of the JetStream stream
	StreamName = "VERQ_RUNS"
	// SubjectName is the subject for run messages
	SubjectName = "verq.runs"
	// ConsumerName is the name of the durable consumer
	ConsumerName = "verq-worker"
)

// RunProcessor defines the interface for processing verification runs.
// The returned result is stored even when err is non-nil, so a failed run
// still carries its partial evidence.
type RunProcessor interface {
	Process(ctx context.Context, run *Run, progress func(stage string, percent int, message string)) (interface{}, error)
}

// Manager manages the run queue
type Manager struct {
	js        jetstream.JetStream
	store     *Store
	events    *EventHub
	stream    jetstream.Stream
	consumer  jetstream.Consumer
	mu        sync.Mutex
	isRunning bool
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewManager creates a new queue manager
func NewManager(js jetstream.JetStream) (*Manager, error) {
	ctx, cancel := context.WithCancel(context.Background())

	m := &Manager{
		js:     js,
		store:  NewStore(),
		events: NewEventHub(),
		ctx:    ctx,
		cancel: cancel,
	}

	if err := m.setupStream(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to setup stream: %w", err)
	}

	return m, nil
}

func (m *Manager) setupStream() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stream, err := m.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Description: "Verq verification run queue",
		Subjects:    []string{SubjectName},
		Retention:   jetstream.WorkQueuePolicy,
		MaxAge:      24 * time.Hour,
		Storage:     jetstream.FileStorage,
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}
	m.stream = stream

	consumer, err := m.js.CreateOrUpdateConsumer(ctx, StreamName, jetstream.ConsumerConfig{
		Name:          ConsumerName,
		Durable:       ConsumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverAllPolicy,
		MaxDeliver:    3,
		AckWait:       10 * time.Minute,
	})
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}
	m.consumer = consumer

	return nil
}

// Start starts processing runs from the queue. Runs execute one at a time:
// one browser, one page, one step sequence.
func (m *Manager) Start(processor RunProcessor) error {
	m.mu.Lock()
	if m.isRunning {
		m.mu.Unlock()
		return nil
	}
	m.isRunning = true
	m.mu.Unlock()

	log.Println("Starting verification run worker...")

	go func() {
		for {
			select {
			case <-m.ctx.Done():
				return
			default:
				msgs, err := m.consumer.Fetch(1, jetstream.FetchMaxWait(5*time.Second))
				if err != nil {
					continue
				}

				for msg := range msgs.Messages() {
					m.processMessage(msg, processor)
				}
			}
		}
	}()

	return nil
}

// Stop stops the queue manager
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.isRunning {
		return
	}

	m.cancel()
	m.store.Stop()
	m.isRunning = false
	log.Println("Verification run worker stopped")
}

// Enqueue adds a run to the queue
func (m *Manager) Enqueue(run *Run) error {
	if err := m.store.Save(run); err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	data, err := run.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to serialize run: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := m.js.Publish(ctx, SubjectName, data); err != nil {
		return fmt.Errorf("failed to publish run: %w", err)
	}

	m.events.Emit(run.ID, Event{
		RunID:   run.ID,
		Status:  run.Status,
		Message: "Run queued",
	})

	return nil
}

// EnqueueWithIdempotency enqueues a run unless one with the same
// idempotency key already exists.
func (m *Manager) EnqueueWithIdempotency(run *Run) (*Run, bool, error) {
	if run.IdempotencyKey != "" {
		existing, exists := m.store.GetByIdempotencyKey(run.IdempotencyKey)
		if exists {
			return existing, true, nil
		}
	}

	if err := m.Enqueue(run); err != nil {
		return nil, false, err
	}

	return run, false, nil
}

// GetRun retrieves a run by ID
func (m *Manager) GetRun(runID string) (*Run, error) {
	return m.store.Get(runID)
}

// UpdateRun updates a run and emits an event
func (m *Manager) UpdateRun(run *Run) error {
	if err := m.store.Update(run); err != nil {
		return err
	}

	m.events.Emit(run.ID, Event{
		RunID:    run.ID,
		Status:   run.Status,
		Stage:    run.Stage,
		Progress: run.Progress,
		Message:  run.Message,
	})

	return nil
}

// CancelRun cancels a run
func (m *Manager) CancelRun(runID string) (*Run, error) {
	run, err := m.store.Get(runID)
	if err != nil {
		return nil, err
	}

	if run.Status != RunStatusQueued && run.Status != RunStatusRunning {
		return nil, fmt.Errorf("cannot cancel run with status: %s", run.Status)
	}

	run.SetStatus(RunStatusCanceled)
	if err := m.store.Update(run); err != nil {
		return nil, err
	}

	m.events.Emit(run.ID, Event{
		RunID:   run.ID,
		Status:  run.Status,
		Message: "Run canceled",
	})

	return run, nil
}

// Subscribe subscribes to run events
func (m *Manager) Subscribe(runID string) <-chan Event {
	return m.events.Subscribe(runID)
}

// Unsubscribe unsubscribes from run events
func (m *Manager) Unsubscribe(runID string, ch <-chan Event) {
	m.events.Unsubscribe(runID, ch)
}

// GetStore returns the run store
func (m *Manager) GetStore() *Store {
	return m.store
}

func (m *Manager) processMessage(msg jetstream.Msg, processor RunProcessor) {
	var run Run
	if err := json.Unmarshal(msg.Data(), &run); err != nil {
		log.Printf("Failed to unmarshal run: %v", err)
		msg.Nak()
		return
	}

	stored, err := m.store.Get(run.ID)
	if err != nil {
		log.Printf("Failed to get run from store: %v", err)
		msg.Nak()
		return
	}

	if stored.Status == RunStatusCanceled {
		msg.Ack()
		return
	}

	// Honor the retry backoff before re-running
	if stored.Status == RunStatusRetrying && stored.NextRetryAt > 0 {
		waitUntil := time.Unix(stored.NextRetryAt, 0)
		if time.Now().Before(waitUntil) {
			msg.NakWithDelay(time.Until(waitUntil))
			return
		}
	}

	stored.SetStatus(RunStatusRunning)
	stored.SetProgress("", 0, "Verification started")
	m.UpdateRun(stored)

	ctx, cancel := context.WithTimeout(m.ctx, stored.GetTimeoutDuration())
	defer cancel()

	result, err := processor.Process(ctx, stored, func(stage string, percent int, message string) {
		stored.SetProgress(stage, percent, message)
		m.UpdateRun(stored)
	})

	// Keep partial evidence from failed runs
	if result != nil {
		stored.Result = result
	}

	if err != nil {
		if stored.CanRetry() {
			stored.LastError = err.Error()
			stored.PrepareRetry()
			m.UpdateRun(stored)

			m.events.Emit(stored.ID, Event{
				RunID:    stored.ID,
				Status:   stored.Status,
				Progress: stored.Progress,
				Message:  fmt.Sprintf("Retrying (%d/%d): %s", stored.RetryCount, stored.MaxRetries, err.Error()),
			})

			data, _ := stored.ToJSON()
			retryCtx, retryCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer retryCancel()

			if _, pubErr := m.js.Publish(retryCtx, SubjectName, data); pubErr != nil {
				log.Printf("Failed to re-enqueue run for retry: %v", pubErr)
			}

			msg.Ack()
			return
		}

		stored.SetError(err.Error())
		m.UpdateRun(stored)
		msg.Ack()
		return
	}

	stored.SetResult(result)
	m.UpdateRun(stored)
	msg.Ack()
}
