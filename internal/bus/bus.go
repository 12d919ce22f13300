package bus

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

const defaultSubscriberCapacity = 64

// Bus is an in-process broadcast channel scoped to a single run. It is
// passed explicitly to the scheduler and stages rather than shared as a
// package singleton, so concurrent runs stay isolated.
//
// Delivery is best-effort and at-most-once: there is no backlog, so events
// published before a subscriber registers are lost, and a subscriber that
// falls behind its buffer loses its oldest events first.
type Bus struct {
	mu          sync.Mutex
	subscribers []*subscriber
	closed      bool
	channelSize int
	clock       func() time.Time
	logger      *zap.Logger
}

// Option customizes Bus construction.
type Option func(*Bus)

// WithLogger injects a logger for drop and handler-failure diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(b *Bus) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithSubscriberCapacity overrides the buffered channel size per subscriber.
func WithSubscriberCapacity(capacity int) Option {
	return func(b *Bus) {
		if capacity > 0 {
			b.channelSize = capacity
		}
	}
}

// WithClock overrides the publish timestamp clock.
func WithClock(clock func() time.Time) Option {
	return func(b *Bus) {
		if clock != nil {
			b.clock = clock
		}
	}
}

// New constructs a bus with sane defaults.
func New(opts ...Option) *Bus {
	b := &Bus{
		channelSize: defaultSubscriberCapacity,
		clock:       time.Now,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// Subscription represents an active topic subscription.
type Subscription struct {
	Events <-chan Event
	cancel func()
}

// Close terminates the subscription and closes its channel.
func (s Subscription) Close() {
	if s.cancel != nil {
		s.cancel()
	}
}

// Subscribe registers for the given topics. With no topics it receives
// everything. Events arrive in publish order per subscription.
func (b *Bus) Subscribe(topics ...Topic) Subscription {
	sub := newSubscriber(b.channelSize, topics, b.logger)
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		sub.close()
		return Subscription{Events: sub.ch}
	}
	b.subscribers = append(b.subscribers, sub)
	b.mu.Unlock()
	return Subscription{
		Events: sub.ch,
		cancel: func() { b.remove(sub) },
	}
}

// Handler consumes events delivered through SubscribeFunc.
type Handler func(Event)

// SubscribeFunc drains a subscription on its own goroutine and invokes the
// handler per event. A panicking handler is logged and isolated; it never
// propagates to the publisher or to other subscribers. The returned
// Subscription's Close stops the goroutine once pending events drain.
func (b *Bus) SubscribeFunc(handler Handler, topics ...Topic) Subscription {
	sub := b.Subscribe(topics...)
	go func() {
		for event := range sub.Events {
			b.invoke(handler, event)
		}
	}()
	return sub
}

func (b *Bus) invoke(handler Handler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Warn("bus: handler panicked",
				zap.String("kind", string(event.Kind)),
				zap.String("source", event.Source),
				zap.Any("panic", r))
		}
	}()
	handler(event)
}

// Publish validates the event, stamps it, and broadcasts it to every
// matching subscriber registered at publish time.
func (b *Bus) Publish(event Event) error {
	if err := event.Validate(); err != nil {
		return err
	}
	if event.At.IsZero() {
		event.At = b.clock()
	}
	b.mu.Lock()
	subs := make([]*subscriber, len(b.subscribers))
	copy(subs, b.subscribers)
	b.mu.Unlock()
	for _, sub := range subs {
		if sub.wants(event.Topic) {
			sub.deliver(event)
		}
	}
	return nil
}

// Close shuts the bus down and closes every subscriber channel. Publishing
// after Close is a silent no-op for delivery purposes.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := b.subscribers
	b.subscribers = nil
	b.mu.Unlock()
	for _, sub := range subs {
		sub.close()
	}
}

func (b *Bus) remove(target *subscriber) {
	b.mu.Lock()
	for i, sub := range b.subscribers {
		if sub == target {
			b.subscribers = append(b.subscribers[:i], b.subscribers[i+1:]...)
			break
		}
	}
	b.mu.Unlock()
	target.close()
}

type subscriber struct {
	ch     chan Event
	topics map[Topic]struct{}
	logger *zap.Logger

	closeMu sync.Mutex
	closed  bool
}

func newSubscriber(capacity int, topics []Topic, logger *zap.Logger) *subscriber {
	sub := &subscriber{
		ch:     make(chan Event, capacity),
		logger: logger,
	}
	if len(topics) > 0 {
		sub.topics = make(map[Topic]struct{}, len(topics))
		for _, topic := range topics {
			sub.topics[topic] = struct{}{}
		}
	}
	return sub
}

func (s *subscriber) wants(topic Topic) bool {
	if s.topics == nil {
		return true
	}
	_, ok := s.topics[topic]
	return ok
}

// deliver never blocks the publisher: when the buffer is full the oldest
// queued event is dropped to make room.
func (s *subscriber) deliver(event Event) {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	if s.closed {
		return
	}
	for {
		select {
		case s.ch <- event:
			return
		default:
		}
		select {
		case dropped := <-s.ch:
			s.logger.Warn("bus: dropped event on slow subscriber",
				zap.String("kind", string(dropped.Kind)),
				zap.String("source", dropped.Source))
		default:
		}
	}
}

func (s *subscriber) close() {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}
