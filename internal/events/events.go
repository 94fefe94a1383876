package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/biocore-hpc/seqjob/internal/constants"
)

// StatusFunc receives (id, status) notifications. The id is a process id for
// local shell invocations and a scheduler job or array element id while a
// job is being polled. Implementations must not block.
type StatusFunc func(id string, status string)

// Chain returns a StatusFunc that calls every non-nil fn in order.
func Chain(fns ...StatusFunc) StatusFunc {
	var live []StatusFunc
	for _, fn := range fns {
		if fn != nil {
			live = append(live, fn)
		}
	}
	switch len(live) {
	case 0:
		return nil
	case 1:
		return live[0]
	}
	return func(id, status string) {
		for _, fn := range live {
			fn(id, status)
		}
	}
}

// EventType defines the types of events that can be emitted
type EventType string

const (
	EventStatus         EventType = "status"
	EventStageStarted   EventType = "stage_started"
	EventStageCompleted EventType = "stage_completed"
	EventStageFailed    EventType = "stage_failed"
)

// Event is the base interface for all events
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// BaseEvent provides common event fields
type BaseEvent struct {
	EventType EventType
	Time      time.Time
}

func (e BaseEvent) Type() EventType      { return e.EventType }
func (e BaseEvent) Timestamp() time.Time { return e.Time }

// StatusEvent carries one StatusFunc notification.
type StatusEvent struct {
	BaseEvent
	Stage  string
	ID     string
	Status string
}

// StageEvent represents a pipeline stage transition.
type StageEvent struct {
	BaseEvent
	Stage    string
	Index    int
	Total    int
	JobID    string
	Duration time.Duration
	Error    error
}

// EventBus manages event subscriptions and publishing
type EventBus struct {
	subscribers   map[EventType][]chan Event
	all           []chan Event // Subscribers to all events
	mu            sync.RWMutex
	bufferSize    int
	closed        bool
	droppedEvents atomic.Int64 // Count of dropped events due to full buffers
}

// NewEventBus creates a new event bus with specified buffer size
func NewEventBus(bufferSize int) *EventBus {
	if bufferSize <= 0 {
		bufferSize = constants.EventBusDefaultBuffer
	}
	if bufferSize > constants.EventBusMaxBuffer {
		bufferSize = constants.EventBusMaxBuffer
	}
	return &EventBus{
		subscribers: make(map[EventType][]chan Event),
		all:         make([]chan Event, 0),
		bufferSize:  bufferSize,
	}
}

// Subscribe creates a subscription to a specific event type
func (eb *EventBus) Subscribe(eventType EventType) <-chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	ch := make(chan Event, eb.bufferSize)
	eb.subscribers[eventType] = append(eb.subscribers[eventType], ch)
	return ch
}

// SubscribeAll creates a subscription to all events
func (eb *EventBus) SubscribeAll() <-chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	ch := make(chan Event, eb.bufferSize)
	eb.all = append(eb.all, ch)
	return ch
}

// Publish sends an event to all subscribers. It never blocks: events for a
// full subscriber are dropped and counted.
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if eb.closed {
		return
	}

	for _, ch := range eb.subscribers[event.Type()] {
		select {
		case ch <- event:
		default:
			eb.droppedEvents.Add(1)
		}
	}

	for _, ch := range eb.all {
		select {
		case ch <- event:
		default:
			eb.droppedEvents.Add(1)
		}
	}
}

// Close shuts down the event bus and closes all channels
func (eb *EventBus) Close() {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}

	eb.closed = true

	for _, channels := range eb.subscribers {
		for _, ch := range channels {
			close(ch)
		}
	}

	for _, ch := range eb.all {
		close(ch)
	}
}

// StatusSink returns a StatusFunc that publishes StatusEvents tagged with
// the given stage name. A nil bus yields a nil StatusFunc.
func (eb *EventBus) StatusSink(stage string) StatusFunc {
	if eb == nil {
		return nil
	}
	return func(id, status string) {
		eb.Publish(&StatusEvent{
			BaseEvent: BaseEvent{EventType: EventStatus, Time: time.Now()},
			Stage:     stage,
			ID:        id,
			Status:    status,
		})
	}
}

// PublishStage is a convenience method for publishing stage transitions
func (eb *EventBus) PublishStage(eventType EventType, ev StageEvent) {
	ev.BaseEvent = BaseEvent{EventType: eventType, Time: time.Now()}
	eb.Publish(&ev)
}

// GetDroppedEventCount returns the total number of events dropped due to full buffers
func (eb *EventBus) GetDroppedEventCount() int64 {
	return eb.droppedEvents.Load()
}
