package events

import (
	"sync"
	"sync/atomic"
	"time"
)

const (
	// DefaultBufferSize is used when NewEventBus is given zero.
	DefaultBufferSize = 1000
	// MaxBufferSize caps per-subscriber buffers.
	MaxBufferSize = 10000
	// DefaultTerminalWait is how long a terminal event waits for room in a
	// full subscriber buffer before it is dropped.
	DefaultTerminalWait = 5 * time.Second
)

type subscriber struct {
	ch    chan Event
	kinds map[EventType]struct{} // nil accepts every type
}

func (s *subscriber) wants(t EventType) bool {
	if s.kinds == nil {
		return true
	}
	_, ok := s.kinds[t]
	return ok
}

// EventBus fans events out to buffered subscriber channels. A nil *EventBus
// accepts and discards publishes.
type EventBus struct {
	size         int
	terminalWait time.Duration

	mu     sync.RWMutex
	subs   []*subscriber
	closed bool

	dropped atomic.Int64
}

// NewEventBus returns a bus whose subscribers each get a buffer of size
// events, clamped to (0, MaxBufferSize].
func NewEventBus(size int) *EventBus {
	switch {
	case size <= 0:
		size = DefaultBufferSize
	case size > MaxBufferSize:
		size = MaxBufferSize
	}
	return &EventBus{size: size, terminalWait: DefaultTerminalWait}
}

// Subscribe returns a channel receiving events of the given types, or of
// every type when none are given. On a closed bus the channel is already
// closed.
func (eb *EventBus) Subscribe(types ...EventType) <-chan Event {
	s := &subscriber{ch: make(chan Event, eb.size)}
	if len(types) > 0 {
		s.kinds = make(map[EventType]struct{}, len(types))
		for _, t := range types {
			s.kinds[t] = struct{}{}
		}
	}

	eb.mu.Lock()
	defer eb.mu.Unlock()
	if eb.closed {
		close(s.ch)
		return s.ch
	}
	eb.subs = append(eb.subs, s)
	return s.ch
}

// SubscribeAll is Subscribe with no filter.
func (eb *EventBus) SubscribeAll() <-chan Event {
	return eb.Subscribe()
}

// Unsubscribe detaches ch and closes it. Unknown channels are ignored.
func (eb *EventBus) Unsubscribe(ch <-chan Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	for i, s := range eb.subs {
		if s.ch == ch {
			close(s.ch)
			eb.subs = append(eb.subs[:i], eb.subs[i+1:]...)
			return
		}
	}
}

// Publish delivers e to every interested subscriber with room in its
// buffer and counts the rest as dropped. Terminal events instead wait up to
// the terminal wait for a slow subscriber to make room.
func (eb *EventBus) Publish(e Event) {
	if eb == nil || e == nil {
		return
	}
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	if eb.closed {
		return
	}
	t := e.Type()
	var (
		timer   *time.Timer
		expired bool
	)
	for _, s := range eb.subs {
		if !s.wants(t) {
			continue
		}
		select {
		case s.ch <- e:
			continue
		default:
		}
		if !t.Terminal() || expired {
			eb.dropped.Add(1)
			continue
		}
		if timer == nil {
			timer = time.NewTimer(eb.terminalWait)
			defer timer.Stop()
		}
		select {
		case s.ch <- e:
		case <-timer.C:
			expired = true
			eb.dropped.Add(1)
		}
	}
}

// PublishLog publishes a LogEvent stamped with the current time.
func (eb *EventBus) PublishLog(level LogLevel, taskID, stream, message string) {
	eb.Publish(&LogEvent{
		Header:  stamp(EventLog),
		Level:   level,
		TaskID:  taskID,
		Stream:  stream,
		Message: message,
	})
}

// PublishTransfer stamps e with eventType and the current time and
// publishes it.
func (eb *EventBus) PublishTransfer(eventType EventType, e TransferEvent) {
	e.Header = stamp(eventType)
	eb.Publish(&e)
}

// Dropped returns how many deliveries were skipped because a subscriber's
// buffer was full.
func (eb *EventBus) Dropped() int64 {
	return eb.dropped.Load()
}

// Close closes every subscriber channel. Later publishes are discarded and
// later subscriptions receive a closed channel.
func (eb *EventBus) Close() {
	if eb == nil {
		return
	}
	eb.mu.Lock()
	defer eb.mu.Unlock()
	if eb.closed {
		return
	}
	eb.closed = true
	for _, s := range eb.subs {
		close(s.ch)
	}
	eb.subs = nil
}
