// Package eventbus implements the in-process bus carrying bridge lifecycle
// events from the bridge to subscribers. Every event is published exactly
// once, after the operation it reports has committed; unbuffered
// subscribers therefore see the full, ordered event stream as long as they
// keep receiving.
package eventbus

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/oprelay/oprelay/libs/log"
	"github.com/oprelay/oprelay/libs/service"
	"github.com/oprelay/oprelay/types"
)

// ErrSubscriptionNotFound is returned when a client tries to unsubscribe
// from a subscription the bus does not hold.
var ErrSubscriptionNotFound = errors.New("subscription not found")

var validEventTypes = map[string]struct{}{
	types.EventFinalizeValue:   {},
	types.EventFraudValue:      {},
	types.EventPruneValue:      {},
	types.EventSubmissionValue: {},
}

// EventBus is a common bus for all events going through the system. It is a
// type-aware wrapper around an internal subscription table; all events
// should be published via the bus.
type EventBus struct {
	service.BaseService
	logger log.Logger

	mtx  sync.RWMutex
	subs map[string]*Subscription
}

var _ types.EventPublisher = (*EventBus)(nil)

// NewDefault returns a new event bus.
func NewDefault(l log.Logger) *EventBus {
	logger := l.With("module", "eventbus")
	b := &EventBus{
		logger: logger,
		subs:   make(map[string]*Subscription),
	}
	b.BaseService = *service.NewBaseService(logger, "EventBus", b)
	return b
}

// OnStart implements service.Implementation.
func (b *EventBus) OnStart(context.Context) error { return nil }

// OnStop cancels every remaining subscription with ErrStopped.
func (b *EventBus) OnStop() {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	for id, s := range b.subs {
		s.cancel(ErrStopped)
		delete(b.subs, id)
	}
}

// Subscribe registers for the given event types, or for every event type
// when none are given. capacity sets the size of the delivery channel: 0
// means unbuffered, so publishing blocks until the subscriber receives and
// no event is ever dropped. Buffered subscribers that stop pulling are
// canceled with ErrOutOfCapacity instead of blocking the publisher.
func (b *EventBus) Subscribe(capacity int, eventTypes ...string) (*Subscription, error) {
	if !b.IsRunning() {
		return nil, errors.New("event bus is not running")
	}
	if capacity < 0 {
		return nil, fmt.Errorf("negative capacity %d", capacity)
	}
	for _, et := range eventTypes {
		if _, ok := validEventTypes[et]; !ok {
			return nil, fmt.Errorf("unknown event type %q", et)
		}
	}

	s := newSubscription(capacity, eventTypes)
	b.mtx.Lock()
	b.subs[s.id] = s
	b.mtx.Unlock()
	return s, nil
}

// Unsubscribe terminates the subscription with the given id.
func (b *EventBus) Unsubscribe(id string) error {
	b.mtx.Lock()
	s, ok := b.subs[id]
	if ok {
		delete(b.subs, id)
	}
	b.mtx.Unlock()

	if !ok {
		return ErrSubscriptionNotFound
	}
	s.cancel(ErrUnsubscribed)
	return nil
}

// NumSubscribers returns the number of live subscriptions.
func (b *EventBus) NumSubscribers() int {
	b.mtx.RLock()
	defer b.mtx.RUnlock()
	return len(b.subs)
}

// PublishEventSubmission implements types.EventPublisher.
func (b *EventBus) PublishEventSubmission(data types.EventDataSubmission) error {
	return b.publish(data)
}

// PublishEventFraud implements types.EventPublisher.
func (b *EventBus) PublishEventFraud(data types.EventDataFraud) error {
	return b.publish(data)
}

// PublishEventFinalize implements types.EventPublisher.
func (b *EventBus) PublishEventFinalize(data types.EventDataFinalize) error {
	return b.publish(data)
}

// PublishEventPrune implements types.EventPublisher.
func (b *EventBus) PublishEventPrune(data types.EventDataPrune) error {
	return b.publish(data)
}

func (b *EventBus) publish(data types.EventData) error {
	if !b.IsRunning() {
		return errors.New("event bus is not running")
	}

	b.mtx.RLock()
	matched := make([]*Subscription, 0, len(b.subs))
	for _, s := range b.subs {
		if s.matches(data.TypeTag()) {
			matched = append(matched, s)
		}
	}
	b.mtx.RUnlock()

	for _, s := range matched {
		msg := Message{subID: s.id, data: data}
		if cap(s.out) == 0 {
			// Block until the subscriber receives or goes away. Delivery
			// happens outside the bus lock, so a blocked publisher never
			// prevents an unsubscribe from releasing it.
			select {
			case s.out <- msg:
			case <-s.canceled:
			}
			continue
		}
		select {
		case s.out <- msg:
		default:
			s.cancel(ErrOutOfCapacity)
			b.mtx.Lock()
			delete(b.subs, s.id)
			b.mtx.Unlock()
			b.logger.Error("canceled slow subscriber", "id", s.id, "event", data.TypeTag())
		}
	}
	return nil
}
