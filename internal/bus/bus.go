// Package bus implements the Event Bus (spec.md §4.3): a per-mode
// bounded queue of typed events, fan-out to the Recording Manager,
// Alert Engine, and Temporal Pattern Detector, and an SSE-ready
// subscriber model with keepalives.
package bus

import (
	"log"
	"sync"
	"time"
)

// Sink receives every published event except {keepalive, ping}. A sink
// must never block or panic the hot path; Bus recovers and logs any
// panic and treats a returned error the same way (spec.md §4.3,
// §7 SinkError).
type Sink interface {
	Handle(ev Event) error
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(ev Event) error

func (f SinkFunc) Handle(ev Event) error { return f(ev) }

// Metrics is the subset of internal/metrics.Metrics the bus updates;
// declared locally to avoid an import cycle.
type Metrics interface {
	ObserveQueueDepth(mode string, depth int)
	ObserveDropped(mode string)
	ObservePublished(mode string, eventType string)
}

// Bus owns one canonical bounded queue per mode plus a set of fan-out
// sinks and live SSE/websocket subscribers.
type Bus struct {
	mu       sync.RWMutex
	capacity int
	queues   map[string]*boundedQueue
	subs     map[string]map[uint64]*boundedQueue
	nextSub  uint64
	sinks    []Sink
	metrics  Metrics
}

// New constructs a Bus with the given per-mode queue capacity (~500-1000
// per spec.md §4.3).
func New(capacity int, metrics Metrics) *Bus {
	return &Bus{
		capacity: capacity,
		queues:   make(map[string]*boundedQueue),
		subs:     make(map[string]map[uint64]*boundedQueue),
		metrics:  metrics,
	}
}

// AddSink registers a fan-out sink (Recording Manager, Alert Engine,
// Pattern Detector). Sinks are invoked in registration order.
func (b *Bus) AddSink(s Sink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sinks = append(b.sinks, s)
}

func (b *Bus) queueFor(mode string) *boundedQueue {
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.queues[mode]
	if !ok {
		q = newBoundedQueue(b.capacity)
		b.queues[mode] = q
	}
	return q
}

// Publish enqueues ev onto mode's canonical queue and fans it out to
// every subscriber queue and every sink, in that order, synchronously.
// keepalive/ping events never reach sinks (spec.md §4.3 "Ignored
// events").
func (b *Bus) Publish(mode string, ev Event) {
	if ev.Mode == "" {
		ev.Mode = mode
	}
	if ev.IngestedAt.IsZero() {
		ev.IngestedAt = time.Now()
	}

	q := b.queueFor(mode)
	if dropped := q.Push(ev); dropped && b.metrics != nil {
		b.metrics.ObserveDropped(mode)
	}
	if b.metrics != nil {
		b.metrics.ObserveQueueDepth(mode, q.Len())
		b.metrics.ObservePublished(mode, string(ev.Type))
	}

	b.mu.RLock()
	subs := make([]*boundedQueue, 0, len(b.subs[mode]))
	for _, sq := range b.subs[mode] {
		subs = append(subs, sq)
	}
	sinks := append([]Sink(nil), b.sinks...)
	b.mu.RUnlock()

	for _, sq := range subs {
		sq.Push(ev)
	}

	if ignoredBySinks[ev.Type] {
		return
	}
	for _, s := range sinks {
		b.invokeSink(s, ev)
	}
}

// invokeSink calls a sink, recovering from panics and logging errors so
// a broken sink can never break the hot path (spec.md §4.3, §7).
func (b *Bus) invokeSink(s Sink, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("bus: sink panic for mode=%s type=%s: %v", ev.Mode, ev.Type, r)
		}
	}()
	if err := s.Handle(ev); err != nil {
		log.Printf("bus: sink error for mode=%s type=%s: %v", ev.Mode, ev.Type, err)
	}
}

// Subscription is a live SSE/websocket consumer handle.
type Subscription struct {
	id   uint64
	mode string
	q    *boundedQueue
	bus  *Bus
}

// Subscribe registers a new subscriber queue for mode and returns a
// handle to drain it. Call Close when the client disconnects.
func (b *Bus) Subscribe(mode string) *Subscription {
	b.mu.Lock()
	id := b.nextSub
	b.nextSub++
	if b.subs[mode] == nil {
		b.subs[mode] = make(map[uint64]*boundedQueue)
	}
	q := newBoundedQueue(b.capacity)
	b.subs[mode][id] = q
	b.mu.Unlock()

	return &Subscription{id: id, mode: mode, q: q, bus: b}
}

// Next waits up to timeout for the next event, or returns ok=false on
// timeout so the SSE handler can emit a keepalive frame.
func (s *Subscription) Next(timeout time.Duration) (Event, bool) {
	return s.q.PopWithTimeout(timeout)
}

// Close unregisters the subscription.
func (s *Subscription) Close() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	delete(s.bus.subs[s.mode], s.id)
}

// SubscriberCount reports the number of live subscribers for mode.
func (b *Bus) SubscriberCount(mode string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[mode])
}

// QueueStats reports the canonical queue's current length and
// cumulative drop count for mode, for the /status endpoint.
func (b *Bus) QueueStats(mode string) (length int, dropped int64) {
	q := b.queueFor(mode)
	return q.Len(), q.Dropped()
}
