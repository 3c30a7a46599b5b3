// Package bus implements the typed publish/subscribe hub decoupling
// ingress, aggregation, override resolution, broadcast, and telemetry.
// Subscriber lists are read-copy-on-write: publishing iterates an immutable
// snapshot and never takes the subscription lock, so the hot path of input
// acceptance and tick fan-out stays contention-free. Publishing never
// blocks: a subscriber that cannot keep up has its oldest pending event
// dropped and the drop counted against it.
package bus

import (
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"github.com/tutti-live/tutti/engine/feed"
)

var log = logrus.WithField("prefix", "bus")

// DefaultBuffer is the subscription channel capacity used when callers pass
// a non-positive buffer size.
const DefaultBuffer = 64

// Subscription is one subscriber's handle on a single event kind.
type Subscription struct {
	kind    feed.EventKind
	ch      chan *feed.Event
	bus     *Bus
	dropped uint64
	once    sync.Once
}

// C returns the channel on which events are delivered in publish order.
func (s *Subscription) C() <-chan *feed.Event {
	return s.ch
}

// Kind returns the subscribed event kind.
func (s *Subscription) Kind() feed.EventKind {
	return s.kind
}

// Dropped returns the number of events dropped because this subscriber was
// too slow.
func (s *Subscription) Dropped() uint64 {
	return atomic.LoadUint64(&s.dropped)
}

// Unsubscribe synchronously removes the subscription and discards its
// pending deliveries.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.bus.remove(s)
		for {
			select {
			case <-s.ch:
			default:
				return
			}
		}
	})
}

// Bus is the parameter bus. The zero value is not usable; construct with New.
type Bus struct {
	mu        sync.Mutex // guards subscriber list replacement only
	subs      [feed.NumKinds]atomic.Value
	published [feed.NumKinds]uint64
	dropped   uint64
}

// New constructs an empty bus.
func New() *Bus {
	b := &Bus{}
	for kind := range b.subs {
		b.subs[kind].Store([]*Subscription{})
	}
	return b
}

// Subscribe registers a subscriber for one event kind with the given channel
// buffer. A non-positive buffer uses DefaultBuffer.
func (b *Bus) Subscribe(kind feed.EventKind, buffer int) *Subscription {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	sub := &Subscription{
		kind: kind,
		ch:   make(chan *feed.Event, buffer),
		bus:  b,
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	current := b.subs[kind].Load().([]*Subscription)
	next := make([]*Subscription, len(current)+1)
	copy(next, current)
	next[len(current)] = sub
	b.subs[kind].Store(next)
	return sub
}

func (b *Bus) remove(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	current := b.subs[sub.kind].Load().([]*Subscription)
	next := make([]*Subscription, 0, len(current))
	for _, s := range current {
		if s != sub {
			next = append(next, s)
		}
	}
	b.subs[sub.kind].Store(next)
}

// Publish delivers the event to every current subscriber of its kind.
// Delivery order per kind matches publish order under the
// single-producer-per-kind discipline. Publish never blocks: when a
// subscriber's queue is full its oldest pending event is discarded to make
// room.
func (b *Bus) Publish(evt *feed.Event) {
	atomic.AddUint64(&b.published[evt.Kind], 1)
	subs := b.subs[evt.Kind].Load().([]*Subscription)
	for _, sub := range subs {
		select {
		case sub.ch <- evt:
			continue
		default:
		}
		// Queue full: drop the oldest pending event, then retry once. The
		// second attempt can still lose a race with the consumer, in which
		// case the new event is the one dropped.
		select {
		case <-sub.ch:
		default:
		}
		atomic.AddUint64(&sub.dropped, 1)
		atomic.AddUint64(&b.dropped, 1)
		select {
		case sub.ch <- evt:
		default:
		}
		log.WithField("kind", evt.Kind.String()).Debug("Dropped event for slow subscriber")
	}
}

// SubscriberCounts returns the number of active subscribers per event kind,
// keyed by wire name. Kinds with no subscribers are omitted.
func (b *Bus) SubscriberCounts() map[string]int {
	counts := make(map[string]int)
	for kind := feed.AudienceInput; kind <= feed.Stats; kind++ {
		if n := len(b.subs[kind].Load().([]*Subscription)); n > 0 {
			counts[kind.String()] = n
		}
	}
	return counts
}

// Published returns the number of events published for a kind.
func (b *Bus) Published(kind feed.EventKind) uint64 {
	return atomic.LoadUint64(&b.published[kind])
}

// Dropped returns the total number of events dropped across all
// subscribers.
func (b *Bus) Dropped() uint64 {
	return atomic.LoadUint64(&b.dropped)
}
