// Package bus provides the in-process event bus used for communication
// between the audio pipeline, conversation core, motion resolver, and the
// external gateway adapter. Unlike a plain pub/sub map-of-handlers, it gives
// every subscriber a bounded, ordered queue: a slow subscriber can fall
// behind but never blocks the publisher, and never gets events out of order.
package bus

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Handler receives events in the order Publish delivered them, on a
// dedicated goroutine owned by the subscription.
type Handler func(Event)

// Unsubscribe stops a subscription's delivery goroutine and releases its
// queue. Safe to call more than once.
type Unsubscribe func()

type subscriber struct {
	id       uint64
	types    map[EventType]struct{} // nil means "all types"
	ch       chan Event
	mu       sync.Mutex // guards send-or-drop against concurrent Publish calls
	stopped  atomic.Bool
	done     chan struct{}
}

func (s *subscriber) interestedIn(t EventType) bool {
	if s.types == nil {
		return true
	}
	_, ok := s.types[t]
	return ok
}

// Bus is a bounded, ordered, multi-subscriber event bus.
type Bus struct {
	mu         sync.RWMutex
	subs       map[uint64]*subscriber
	nextID     uint64
	queueDepth int
	log        zerolog.Logger
}

// New creates a Bus. queueDepth is the per-subscriber channel capacity;
// once full, the oldest undelivered event for that subscriber is dropped
// to admit the newest one.
func New(queueDepth int, log zerolog.Logger) *Bus {
	if queueDepth <= 0 {
		queueDepth = 64
	}
	return &Bus{
		subs:       make(map[uint64]*subscriber),
		queueDepth: queueDepth,
		log:        log.With().Str("component", "bus").Logger(),
	}
}

// Subscribe registers handler for the given event types (or all types, if
// none are given) and starts its delivery goroutine. The returned
// Unsubscribe stops delivery and releases the subscription's queue.
func (b *Bus) Subscribe(handler Handler, types ...EventType) Unsubscribe {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	sub := &subscriber{
		id:   id,
		ch:   make(chan Event, b.queueDepth),
		done: make(chan struct{}),
	}
	if len(types) > 0 {
		sub.types = make(map[EventType]struct{}, len(types))
		for _, t := range types {
			sub.types[t] = struct{}{}
		}
	}
	b.subs[id] = sub
	b.mu.Unlock()

	go func() {
		for event := range sub.ch {
			handler(event)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()

			sub.mu.Lock()
			sub.stopped.Store(true)
			close(sub.ch)
			sub.mu.Unlock()
			close(sub.done)
		})
	}
}

// Publish delivers event to every interested subscriber. It never blocks:
// a subscriber whose queue is full has its oldest event dropped in favor of
// the new one, and a bus.subscriber_overflow warning is logged.
func (b *Bus) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.RLock()
	subs := make([]*subscriber, 0, len(b.subs))
	for _, s := range b.subs {
		if s.interestedIn(event.Type) {
			subs = append(subs, s)
		}
	}
	b.mu.RUnlock()

	for _, s := range subs {
		b.sendOrDropOldest(s, event)
	}
}

func (b *Bus) sendOrDropOldest(s *subscriber, event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped.Load() {
		return
	}

	select {
	case s.ch <- event:
		return
	default:
	}

	// Queue is full: drop the oldest entry, then admit the new one.
	var dropped EventType
	select {
	case old := <-s.ch:
		dropped = old.Type
	default:
	}

	select {
	case s.ch <- event:
	default:
		// Another send raced us and refilled the queue; give up rather
		// than block the publisher.
	}

	b.log.Warn().
		Uint64("subscriber_id", s.id).
		Str("dropped_type", string(dropped)).
		Str("new_type", string(event.Type)).
		Msg("subscriber queue overflow, dropped oldest event")
}

// Close unsubscribes and stops every active subscriber. Intended for
// shutdown; safe to call once.
func (b *Bus) Close() {
	b.mu.Lock()
	subs := make([]*subscriber, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.subs = make(map[uint64]*subscriber)
	b.mu.Unlock()

	for _, s := range subs {
		s.mu.Lock()
		if !s.stopped.Load() {
			s.stopped.Store(true)
			close(s.ch)
			close(s.done)
		}
		s.mu.Unlock()
	}
}
