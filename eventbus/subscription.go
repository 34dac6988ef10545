package eventbus

import (
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/oprelay/oprelay/types"
)

var (
	// ErrUnsubscribed is returned by Err when the client unsubscribed.
	ErrUnsubscribed = errors.New("client unsubscribed")

	// ErrOutOfCapacity is returned by Err when a buffered subscriber is not
	// pulling messages fast enough. The subscription is terminated.
	ErrOutOfCapacity = errors.New("client is not pulling messages fast enough")

	// ErrStopped is returned by Err when the event bus was stopped.
	ErrStopped = errors.New("event bus stopped")
)

// A Subscription represents a client subscription for a set of event types
// and consists of three things:
// 1) channel onto which messages are published
// 2) channel which is closed if the client is too slow or chooses to
// unsubscribe
// 3) err indicating the reason for (2)
type Subscription struct {
	id         string
	eventTypes map[string]struct{} // empty means every event type
	out        chan Message

	canceled chan struct{}
	mtx      sync.RWMutex
	err      error
}

func newSubscription(outCapacity int, eventTypes []string) *Subscription {
	s := &Subscription{
		id:         uuid.NewString(),
		eventTypes: make(map[string]struct{}, len(eventTypes)),
		out:        make(chan Message, outCapacity),
		canceled:   make(chan struct{}),
	}
	for _, et := range eventTypes {
		s.eventTypes[et] = struct{}{}
	}
	return s
}

// ID returns the unique subscription identifier.
func (s *Subscription) ID() string { return s.id }

// Out returns a channel onto which messages are published.
// Unsubscribe does not close the channel, so clients never receive a zero
// message.
func (s *Subscription) Out() <-chan Message { return s.out }

// Canceled returns a channel that's closed when the subscription is
// terminated; it is meant for use in a select statement.
func (s *Subscription) Canceled() <-chan struct{} { return s.canceled }

// Err returns nil while the subscription is live. Once the channel returned
// by Canceled is closed, Err returns the reason: ErrUnsubscribed,
// ErrOutOfCapacity or ErrStopped. Successive calls return the same error.
func (s *Subscription) Err() error {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	return s.err
}

func (s *Subscription) matches(eventType string) bool {
	if len(s.eventTypes) == 0 {
		return true
	}
	_, ok := s.eventTypes[eventType]
	return ok
}

func (s *Subscription) cancel(err error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if s.err != nil {
		return
	}
	s.err = err
	close(s.canceled)
}

// Message is one published event together with the id of the subscription
// that delivered it.
type Message struct {
	subID string
	data  types.EventData
}

// SubscriptionID returns the unique identifier for the subscription that
// produced this message.
func (msg Message) SubscriptionID() string { return msg.subID }

// Data returns the published event data.
func (msg Message) Data() types.EventData { return msg.data }
