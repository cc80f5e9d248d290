package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// EventType represents the type of execution event.
type EventType string

const (
	// EventRunning is posted when a run starts (StepIndex -1) and before
	// each step executes.
	EventRunning EventType = "running"

	// EventFinished is posted when a run completes normally or stops itself.
	EventFinished EventType = "finished"

	// EventCancelled is posted when a run is cancelled from outside or
	// aborts on an internal error.
	EventCancelled EventType = "cancelled"

	// EventFailure is posted when a step fails under the stop policy.
	EventFailure EventType = "failure"

	// EventStepProgress carries a progress message from an action.
	EventStepProgress EventType = "step.progress"

	// EventStepRetry is posted before a failed step is retried.
	EventStepRetry EventType = "step.retry"
)

// IsTerminal reports whether the event ends a run.
func (t EventType) IsTerminal() bool {
	return t == EventFinished || t == EventCancelled || t == EventFailure
}

// Event is a state broadcast for a run.
type Event struct {
	Type      EventType `json:"type"`
	ProgramID string    `json:"program_id"`
	RunID     string    `json:"run_id,omitempty"`
	StepIndex int       `json:"step_index"`
	Message   string    `json:"message,omitempty"`
	Log       string    `json:"log,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Listener handles execution events.
type Listener func(ctx context.Context, event *Event) error

type subscription struct {
	id       int
	types    map[EventType]bool
	listener Listener
}

func (s *subscription) matches(t EventType) bool {
	return s.types == nil || s.types[t]
}

// Bus dispatches execution events to subscribers in subscription order.
type Bus struct {
	mu     sync.RWMutex
	subs   []*subscription
	nextID int
	async  bool // If true, listeners are called concurrently
}

// NewBus creates a new event bus.
func NewBus(async bool) *Bus {
	return &Bus{async: async}
}

// Subscribe registers a listener for the given event types, or for every
// event when no types are given. The returned function removes it.
func (b *Bus) Subscribe(listener Listener, types ...EventType) (unsubscribe func()) {
	sub := &subscription{listener: listener}
	if len(types) > 0 {
		sub.types = make(map[EventType]bool, len(types))
		for _, t := range types {
			sub.types[t] = true
		}
	}

	b.mu.Lock()
	sub.id = b.nextID
	b.nextID++
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for i, s := range b.subs {
				if s.id == sub.id {
					b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// Post dispatches an event to all matching listeners. Listener errors do
// not stop delivery; the last one is returned.
func (b *Bus) Post(ctx context.Context, event *Event) error {
	if b == nil {
		return nil
	}
	if event == nil {
		return fmt.Errorf("event cannot be nil")
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.RLock()
	var listeners []Listener
	for _, sub := range b.subs {
		if sub.matches(event.Type) {
			listeners = append(listeners, sub.listener)
		}
	}
	b.mu.RUnlock()

	if b.async {
		return postAsync(ctx, event, listeners)
	}
	return postSync(ctx, event, listeners)
}

func postSync(ctx context.Context, event *Event, listeners []Listener) error {
	var lastErr error
	for _, l := range listeners {
		if err := l(ctx, event); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

func postAsync(ctx context.Context, event *Event, listeners []Listener) error {
	var wg sync.WaitGroup
	errCh := make(chan error, len(listeners))

	for _, l := range listeners {
		wg.Add(1)
		go func(l Listener) {
			defer wg.Done()
			ev := *event
			if err := l(ctx, &ev); err != nil {
				errCh <- err
			}
		}(l)
	}

	wg.Wait()
	close(errCh)

	var lastErr error
	for err := range errCh {
		lastErr = err
	}
	return lastErr
}

// ListenerCount returns the number of active subscriptions.
func (b *Bus) ListenerCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
