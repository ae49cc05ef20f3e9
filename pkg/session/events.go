package session

import (
	"sync"
	"sync/atomic"
	"time"
)

// EventKind identifies a coordinator event.
type EventKind string

const (
	// EventTranscription carries the recognized text of the user's speech.
	EventTranscription EventKind = "transcription-received"
	// EventResponse carries the backend's text reply.
	EventResponse EventKind = "response-received"
	// EventConnectionState reports a connection state transition.
	EventConnectionState EventKind = "connection-state-changed"
	// EventError carries a backend or device error.
	EventError EventKind = "error"
)

// Event is one coordinator notification. Exactly the fields for the
// event's Kind are meaningful.
type Event struct {
	Kind      EventKind `json:"kind"`
	Text      string    `json:"text,omitempty"`  // transcription / response
	State     string    `json:"state,omitempty"` // connection-state-changed
	Error     string    `json:"error,omitempty"` // error
	Timestamp time.Time `json:"timestamp"`
}

// subscriberBuffer is the per-subscriber queue depth before events are
// dropped for that subscriber.
const subscriberBuffer = 16

// EventBus fans coordinator events out to subscribers. Publish never
// blocks: a subscriber that stops draining its channel loses events, not
// the audio path.
type EventBus struct {
	mu     sync.Mutex
	subs   map[uint64]chan Event
	nextID uint64
	closed bool

	published atomic.Int64
	dropped   atomic.Int64
}

// NewEventBus creates an empty event bus.
func NewEventBus() *EventBus {
	return &EventBus{
		subs: make(map[uint64]chan Event),
	}
}

// Subscribe registers a new subscriber. The returned cancel function
// removes the subscription and closes the channel.
func (b *EventBus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, subscriberBuffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
}

// Publish delivers an event to every subscriber without blocking.
func (b *EventBus) Publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	b.published.Add(1)
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.dropped.Add(1)
		}
	}
}

// Close unsubscribes everyone. Subsequent Publish calls are no-ops and
// subsequent Subscribe calls return a closed channel.
func (b *EventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}

// Stats returns publish/drop counters.
func (b *EventBus) Stats() (published, dropped int64) {
	return b.published.Load(), b.dropped.Load()
}
