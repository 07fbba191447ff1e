package events

import (
	"context"
	"sync"
	"time"
)

// Topic names published by the auth service. External consumers subscribe to
// these over the stream endpoint; the broker transport itself lives outside
// this service.
const (
	TopicUserRegistered = "auth.user.registered"
	TopicUserLoggedIn   = "auth.user.loggedin"
	TopicTokenRevoked   = "auth.token.revoked"
)

// Event is a lifecycle notification. Payload carries topic-specific fields
// such as user_id or revoked_count.
type Event struct {
	Topic     string            `json:"topic"`
	Timestamp time.Time         `json:"timestamp"`
	Payload   map[string]string `json:"payload,omitempty"`
}

// Publisher is what the auth service needs: fire-and-forget delivery.
type Publisher interface {
	Publish(evt Event)
}

// Bus fan-outs events to all active subscribers (SSE clients, tests).
type Bus struct {
	mu   sync.RWMutex
	subs map[int]chan Event
	next int
}

// New initialises an empty bus.
func New() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe registers a subscriber and returns a channel which will receive
// events. The channel is closed when the provided context ends.
func (b *Bus) Subscribe(ctx context.Context) <-chan Event {
	ch := make(chan Event, 16)

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, id)
		close(ch)
		b.mu.Unlock()
	}()

	return ch
}

// Publish fan-outs the event to all subscribers.
func (b *Bus) Publish(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- evt:
		default:
			// Drop when subscriber is slow to avoid blocking.
		}
	}
}
