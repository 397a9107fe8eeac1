package events

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cuemby/canopy/pkg/metrics"
)

// EventType names a session lifecycle event
type EventType string

const (
	EventSessionCreated   EventType = "session.created"
	EventSessionExpired   EventType = "session.expired"
	EventSessionClosed    EventType = "session.closed"
	EventRootCreated      EventType = "root.created"
	EventSecurityFailure  EventType = "security.failure"
	EventOutOfSync        EventType = "protocol.out_of_sync"
	EventPushConnected    EventType = "push.connected"
	EventPushDisconnected EventType = "push.disconnected"
)

const (
	queueSize      = 100
	subscriberSize = 50
)

// Event is one session lifecycle notification
type Event struct {
	ID        string
	Type      EventType
	Timestamp time.Time
	SessionID string
	Message   string
	Metadata  map[string]string
}

// Filter selects the events a subscriber receives
type Filter func(*Event) bool

// ForSession selects the events of one session
func ForSession(sessionID string) Filter {
	return func(e *Event) bool { return e.SessionID == sessionID }
}

// OfType selects events of the given types
func OfType(types ...EventType) Filter {
	return func(e *Event) bool {
		for _, t := range types {
			if e.Type == t {
				return true
			}
		}
		return false
	}
}

// Subscriber is a channel that receives events
type Subscriber chan *Event

// Broker fans lifecycle events out to subscribers. Publish never blocks:
// the manager publishes while holding an application lock.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[Subscriber][]Filter

	queue    chan *Event
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewBroker creates a broker; call Start to begin delivery
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber][]Filter),
		queue:       make(chan *Event, queueSize),
		stopCh:      make(chan struct{}),
	}
}

// Start begins delivering queued events
func (b *Broker) Start() {
	go b.run()
}

// Stop ends delivery. It is safe to call more than once.
func (b *Broker) Stop() {
	b.stopOnce.Do(func() { close(b.stopCh) })
}

// Subscribe returns a channel receiving the events matching every filter.
// Without filters it receives all events.
func (b *Broker) Subscribe(filters ...Filter) Subscriber {
	sub := make(Subscriber, subscriberSize)

	b.mu.Lock()
	b.subscribers[sub] = filters
	b.mu.Unlock()
	return sub
}

// Unsubscribe removes sub and closes it
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subscribers[sub]; !ok {
		return
	}
	delete(b.subscribers, sub)
	close(sub)
}

// Publish queues event and reports whether it was accepted. A full queue
// or a stopped broker drops it.
func (b *Broker) Publish(event *Event) bool {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}

	select {
	case <-b.stopCh:
		return false
	default:
	}
	select {
	case b.queue <- event:
		return true
	default:
		metrics.EventsDropped.WithLabelValues("queue").Inc()
		return false
	}
}

// SubscriberCount returns the number of active subscribers
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

func (b *Broker) run() {
	for {
		select {
		case event := <-b.queue:
			b.deliver(event)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Broker) deliver(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub, filters := range b.subscribers {
		if !matches(event, filters) {
			continue
		}
		select {
		case sub <- event:
		default:
			metrics.EventsDropped.WithLabelValues("subscriber").Inc()
		}
	}
}

func matches(event *Event, filters []Filter) bool {
	for _, f := range filters {
		if !f(event) {
			return false
		}
	}
	return true
}
