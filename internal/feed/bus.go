package feed

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ErrSubscriberNotFound  = errors.New("subscriber is not registered on feed")
	ErrSubscriberQueueFull = errors.New("subscriber queue is full")
)

var droppedEvents = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "clawpulse_feed_dropped_events_total",
	Help: "Feed events dropped because a subscriber queue was full",
}, []string{"table"})

type Table string

const (
	TableAgentStatus   Table = "agent_status"
	TableMessages      Table = "agent_messages"
	TableTasks         Table = "tasks"
	TableUsage         Table = "token_usage"
	TableNotifications Table = "notifications"
)

type Kind string

const (
	KindInsert Kind = "insert"
	KindUpdate Kind = "update"

	// KindSnapshot carries the full current state of a table, sent to a
	// single subscriber when it joins.
	KindSnapshot Kind = "snapshot"
)

// Event is one row change. Payload is the changed record.
type Event struct {
	Table   Table     `json:"table"`
	Kind    Kind      `json:"kind"`
	Payload any       `json:"payload,omitempty"`
	At      time.Time `json:"at"`
}

type Bus struct {
	mu      sync.RWMutex
	subs    map[string]chan Event
	buffer  int
	dropped atomic.Int64
}

func New(buffer int) *Bus {
	if buffer <= 0 {
		buffer = 64
	}
	return &Bus{
		subs:   make(map[string]chan Event),
		buffer: buffer,
	}
}

func (b *Bus) Subscribe(id string) <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.subs[id]; ok {
		return ch
	}
	ch := make(chan Event, b.buffer)
	b.subs[id] = ch
	return ch
}

func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, ok := b.subs[id]
	if !ok {
		return
	}
	delete(b.subs, id)
	close(ch)
}

// Publish fans ev out to every subscriber without blocking. Subscribers whose
// queue is full miss the event and the drop is counted.
func (b *Bus) Publish(ev Event) int {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	delivered := 0
	for _, ch := range b.subs {
		select {
		case ch <- ev:
			delivered++
		default:
			b.dropped.Add(1)
			droppedEvents.WithLabelValues(string(ev.Table)).Inc()
		}
	}
	return delivered
}

// Send delivers ev to a single subscriber.
func (b *Bus) Send(id string, ev Event) error {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	ch, ok := b.subs[id]
	if !ok {
		return ErrSubscriberNotFound
	}
	select {
	case ch <- ev:
		return nil
	default:
		b.dropped.Add(1)
		droppedEvents.WithLabelValues(string(ev.Table)).Inc()
		return ErrSubscriberQueueFull
	}
}

func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}

func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
