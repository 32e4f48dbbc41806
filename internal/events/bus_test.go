package events_test

import (
	"context"
	"errors"
	"slices"
	"testing"

	"docflow/internal/events"
)

func TestPublishDeliversInSubscriptionOrder(t *testing.T) {
	bus := events.NewBus(10, nil)
	var calls []string
	bus.Subscribe(events.SignalJobFinished, "first", func(_ context.Context, evt events.Event) error {
		calls = append(calls, "first:"+evt.JobID)
		return nil
	})
	bus.Subscribe(events.SignalJobFinished, "second", func(_ context.Context, evt events.Event) error {
		calls = append(calls, "second:"+evt.JobID)
		return nil
	})
	bus.Subscribe(events.SignalJobFailed, "other", func(context.Context, events.Event) error {
		calls = append(calls, "other")
		return nil
	})

	evt := bus.Publish(context.Background(), events.Event{Signal: events.SignalJobFinished, JobID: "j1"})
	if evt.Sequence != 1 || evt.Timestamp.IsZero() {
		t.Fatalf("expected sequence and timestamp assigned, got %+v", evt)
	}
	if !slices.Equal(calls, []string{"first:j1", "second:j1"}) {
		t.Fatalf("unexpected deliveries %v", calls)
	}
}

func TestListenerFailuresAreIsolated(t *testing.T) {
	bus := events.NewBus(10, nil)
	delivered := false
	bus.Subscribe(events.SignalJobFinished, "panics", func(context.Context, events.Event) error {
		panic("boom")
	})
	bus.Subscribe(events.SignalJobFinished, "errors", func(context.Context, events.Event) error {
		return errors.New("nope")
	})
	bus.Subscribe(events.SignalJobFinished, "ok", func(context.Context, events.Event) error {
		delivered = true
		return nil
	})

	bus.Publish(context.Background(), events.Event{Signal: events.SignalJobFinished})
	if !delivered {
		t.Fatal("expected later listener to run after failures")
	}
}

func TestUnsubscribe(t *testing.T) {
	bus := events.NewBus(10, nil)
	count := 0
	unsubscribe := bus.Subscribe(events.SignalJobAborted, "counter", func(context.Context, events.Event) error {
		count++
		return nil
	})
	bus.Publish(context.Background(), events.Event{Signal: events.SignalJobAborted})
	unsubscribe()
	unsubscribe()
	bus.Publish(context.Background(), events.Event{Signal: events.SignalJobAborted})
	if count != 1 {
		t.Fatalf("expected one delivery, got %d", count)
	}
	if bus.Listeners(events.SignalJobAborted) != 0 {
		t.Fatal("expected no listeners left")
	}
}

func TestHistoryIsBounded(t *testing.T) {
	bus := events.NewBus(3, nil)
	for i := 0; i < 5; i++ {
		bus.Publish(context.Background(), events.Event{Signal: events.SignalEntityStatus})
	}

	all, latest := bus.Since(0)
	if latest != 5 {
		t.Fatalf("expected latest sequence 5, got %d", latest)
	}
	var seqs []uint64
	for _, evt := range all {
		seqs = append(seqs, evt.Sequence)
	}
	if !slices.Equal(seqs, []uint64{3, 4, 5}) {
		t.Fatalf("unexpected history %v", seqs)
	}

	tail, _ := bus.Since(4)
	if len(tail) != 1 || tail[0].Sequence != 5 {
		t.Fatalf("unexpected tail %v", tail)
	}
	none, _ := bus.Since(5)
	if len(none) != 0 {
		t.Fatalf("expected nothing after latest, got %v", none)
	}
}
