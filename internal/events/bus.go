package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"docflow/internal/logging"
)

const defaultHistory = 512

type subscription struct {
	id       uint64
	name     string
	listener Listener
}

// Bus fans events out to listeners and remembers the most recent ones.
type Bus struct {
	logger *slog.Logger

	mu       sync.Mutex
	capacity int
	history  []Event
	nextSeq  uint64
	nextSub  uint64
	subs     map[Signal][]subscription
}

// NewBus constructs a bus keeping at most capacity events of history.
func NewBus(capacity int, logger *slog.Logger) *Bus {
	if capacity <= 0 {
		capacity = defaultHistory
	}
	return &Bus{
		logger:   logging.NewComponentLogger(logger, "events"),
		capacity: capacity,
		subs:     make(map[Signal][]subscription),
	}
}

// Subscribe registers listener for signal and returns a func that removes it.
func (b *Bus) Subscribe(signal Signal, name string, listener Listener) func() {
	if b == nil || listener == nil {
		return func() {}
	}
	b.mu.Lock()
	b.nextSub++
	id := b.nextSub
	b.subs[signal] = append(b.subs[signal], subscription{id: id, name: name, listener: listener})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			current := b.subs[signal]
			for i, sub := range current {
				if sub.id == id {
					b.subs[signal] = append(current[:i:i], current[i+1:]...)
					return
				}
			}
		})
	}
}

// Publish records evt and delivers it synchronously. The stored copy, with
// sequence and timestamp assigned, is returned.
func (b *Bus) Publish(ctx context.Context, evt Event) Event {
	if b == nil {
		return evt
	}
	b.mu.Lock()
	b.nextSeq++
	evt.Sequence = b.nextSeq
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	if len(b.history) == b.capacity {
		copy(b.history, b.history[1:])
		b.history = b.history[:b.capacity-1]
	}
	b.history = append(b.history, evt)
	subs := append([]subscription(nil), b.subs[evt.Signal]...)
	b.mu.Unlock()

	for _, sub := range subs {
		b.deliver(ctx, sub, evt)
	}
	return evt
}

func (b *Bus) deliver(ctx context.Context, sub subscription, evt Event) {
	logger := b.logger.With(
		logging.String("listener", sub.name),
		logging.String("signal", string(evt.Signal)),
		logging.String(logging.FieldJobID, evt.JobID),
	)
	defer func() {
		if r := recover(); r != nil {
			logger.Error("event listener panicked",
				logging.String(logging.FieldEventType, "listener_panic"),
				logging.String("panic", fmt.Sprint(r)),
			)
		}
	}()
	if err := sub.listener(ctx, evt); err != nil {
		logging.WarnWithContext(logger, "event listener failed", "listener_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "follow-up work for this event was skipped"),
		)
	}
}

// Since returns buffered events with a sequence greater than seq, oldest
// first, plus the latest sequence assigned.
func (b *Bus) Since(seq uint64) ([]Event, uint64) {
	if b == nil {
		return nil, 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	start := len(b.history)
	for i, evt := range b.history {
		if evt.Sequence > seq {
			start = i
			break
		}
	}
	out := make([]Event, len(b.history)-start)
	copy(out, b.history[start:])
	return out, b.nextSeq
}

// Listeners reports how many listeners are subscribed to signal.
func (b *Bus) Listeners(signal Signal) int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[signal])
}
