package workflow

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

func TestBusSubscribe(t *testing.T) {
	t.Run("register and remove listener", func(t *testing.T) {
		bus := NewBus(false)

		unsubscribe := bus.Subscribe(func(ctx context.Context, event *Event) error {
			return nil
		})
		if count := bus.ListenerCount(); count != 1 {
			t.Errorf("ListenerCount = %d, want 1", count)
		}

		unsubscribe()
		unsubscribe()
		if count := bus.ListenerCount(); count != 0 {
			t.Errorf("ListenerCount after unsubscribe = %d, want 0", count)
		}
	})

	t.Run("filters by type", func(t *testing.T) {
		bus := NewBus(false)
		var got []EventType

		bus.Subscribe(func(ctx context.Context, event *Event) error {
			got = append(got, event.Type)
			return nil
		}, EventFinished, EventFailure)

		for _, typ := range []EventType{EventRunning, EventFinished, EventStepRetry, EventFailure} {
			if err := bus.Post(context.Background(), &Event{Type: typ}); err != nil {
				t.Fatalf("Post() error = %v", err)
			}
		}

		if len(got) != 2 || got[0] != EventFinished || got[1] != EventFailure {
			t.Errorf("received %v, want [finished failure]", got)
		}
	})
}

func TestBusPost(t *testing.T) {
	t.Run("delivers in subscription order", func(t *testing.T) {
		bus := NewBus(false)
		var order []int
		for i := range 3 {
			bus.Subscribe(func(ctx context.Context, event *Event) error {
				order = append(order, i)
				return nil
			})
		}

		if err := bus.Post(context.Background(), &Event{Type: EventRunning}); err != nil {
			t.Fatalf("Post() error = %v", err)
		}
		if len(order) != 3 || order[0] != 0 || order[1] != 1 || order[2] != 2 {
			t.Errorf("order = %v, want [0 1 2]", order)
		}
	})

	t.Run("sets timestamp", func(t *testing.T) {
		bus := NewBus(false)
		event := &Event{Type: EventRunning}
		_ = bus.Post(context.Background(), event)
		if event.Timestamp.IsZero() {
			t.Error("Timestamp not set")
		}
	})

	t.Run("listener errors do not stop delivery", func(t *testing.T) {
		bus := NewBus(false)
		wantErr := errors.New("listener failed")
		called := false

		bus.Subscribe(func(ctx context.Context, event *Event) error { return wantErr })
		bus.Subscribe(func(ctx context.Context, event *Event) error {
			called = true
			return nil
		})

		err := bus.Post(context.Background(), &Event{Type: EventRunning})
		if !errors.Is(err, wantErr) {
			t.Errorf("Post() error = %v, want %v", err, wantErr)
		}
		if !called {
			t.Error("second listener not called")
		}
	})

	t.Run("nil event", func(t *testing.T) {
		if err := NewBus(false).Post(context.Background(), nil); err == nil {
			t.Error("Post(nil) should fail")
		}
	})

	t.Run("nil bus", func(t *testing.T) {
		var bus *Bus
		if err := bus.Post(context.Background(), &Event{Type: EventRunning}); err != nil {
			t.Errorf("Post() on nil bus error = %v", err)
		}
	})

	t.Run("async delivers to all listeners", func(t *testing.T) {
		bus := NewBus(true)
		var count atomic.Int32
		var wg sync.WaitGroup
		for range 5 {
			wg.Add(1)
			bus.Subscribe(func(ctx context.Context, event *Event) error {
				defer wg.Done()
				count.Add(1)
				return nil
			})
		}

		if err := bus.Post(context.Background(), &Event{Type: EventFinished}); err != nil {
			t.Fatalf("Post() error = %v", err)
		}
		wg.Wait()
		if got := count.Load(); got != 5 {
			t.Errorf("delivered %d times, want 5", got)
		}
	})
}

func TestEventTypeIsTerminal(t *testing.T) {
	tests := []struct {
		typ  EventType
		want bool
	}{
		{EventRunning, false},
		{EventStepProgress, false},
		{EventStepRetry, false},
		{EventFinished, true},
		{EventCancelled, true},
		{EventFailure, true},
	}
	for _, tt := range tests {
		if got := tt.typ.IsTerminal(); got != tt.want {
			t.Errorf("%s.IsTerminal() = %v, want %v", tt.typ, got, tt.want)
		}
	}
}
