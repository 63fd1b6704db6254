// Package diagnostic implements the optional diagnostic sink: an
// in-process pub/sub broker applications can subscribe to in order to
// observe cache activity (inserts, invalidations, fetch failures)
// without the engine taking a hard dependency on any particular logging
// or metrics backend.
package diagnostic

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind identifies what a DiagnosticEvent reports.
type Kind string

const (
	KindInsert                 Kind = "insert"
	KindGet                    Kind = "get"
	KindInvalidate             Kind = "invalidate"
	KindInvalidateAll          Kind = "invalidate_all"
	KindFetch                  Kind = "fetch"
	KindFetchDeduplicated      Kind = "fetch_deduplicated"
	KindVacuum                 Kind = "vacuum"
	KindError                  Kind = "error"
	KindInsertAfterFetchFailed Kind = "insert_after_fetch_failed"
)

// Event is one diagnostic occurrence. ID correlates an event across log
// lines and subscribers; Publish stamps it if left empty.
type Event struct {
	ID        string
	Kind      Kind
	Key       string
	TypeName  string
	Err       error
	Timestamp time.Time
}

// Subscriber is a channel that receives Events.
type Subscriber chan Event

// Sink is a broker: any number of goroutines may Publish, any number may
// Subscribe, and a slow subscriber only drops its own events rather than
// blocking the publisher.
type Sink struct {
	mu          sync.RWMutex
	subscribers map[Subscriber]bool
	eventCh     chan Event
	stopCh      chan struct{}
	stopOnce    sync.Once
}

// NewSink builds a Sink and starts its distribution loop.
func NewSink() *Sink {
	s := &Sink{
		subscribers: make(map[Subscriber]bool),
		eventCh:     make(chan Event, 256),
		stopCh:      make(chan struct{}),
	}
	go s.run()
	return s
}

// Stop terminates the distribution loop. Publish becomes a no-op after
// Stop returns; already-open subscriber channels are left open so a
// subscriber's own range loop can drain and exit on its own terms.
func (s *Sink) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// Subscribe returns a new Subscriber. The caller should Unsubscribe when
// done to stop the broker holding a reference to its channel.
func (s *Sink) Subscribe() Subscriber {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub := make(Subscriber, 64)
	s.subscribers[sub] = true
	return sub
}

// Unsubscribe removes and closes sub.
func (s *Sink) Unsubscribe(sub Subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.subscribers[sub] {
		delete(s.subscribers, sub)
		close(sub)
	}
}

// Publish delivers event to every current subscriber. If the Sink has
// been stopped, Publish is a no-op.
func (s *Sink) Publish(event Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	select {
	case s.eventCh <- event:
	case <-s.stopCh:
	}
}

func (s *Sink) run() {
	for {
		select {
		case event := <-s.eventCh:
			s.broadcast(event)
		case <-s.stopCh:
			return
		}
	}
}

func (s *Sink) broadcast(event Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for sub := range s.subscribers {
		select {
		case sub <- event:
		default:
			// subscriber buffer full: diagnostics are best-effort,
			// never worth blocking cache operations over.
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (s *Sink) SubscriberCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subscribers)
}
